package platform

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// LinkedIn extracts public post cards. Guest-visible pages hydrate
// slowly and expose no load event worth waiting on, so the plan just
// sleeps before the snapshot. Reaction and comment totals ride on data
// attributes; follower counts usually need the author profile.
type LinkedIn struct{}

func NewLinkedIn() *LinkedIn { return &LinkedIn{} }

func (l *LinkedIn) Platform() Platform { return PlatformLinkedIn }

func (l *LinkedIn) Plan(url string) ([]task.Step, error) {
	return []task.Step{
		{Kind: task.StepNavigate, URL: url},
		{Kind: task.StepSleep, Duration: 5 * time.Second},
		{Kind: task.StepExtract},
	}, nil
}

func (l *LinkedIn) Parse(doc, url string) *Metrics {
	m := &Metrics{
		Platform: string(PlatformLinkedIn),
		URL:      url,
		Likes:    I64(0),
		Comments: I64(0),
	}

	page, err := LoadHTML(doc)
	if err != nil {
		m.Error = Str("Parse error: " + err.Error())
		return m
	}

	author := page.Find("a.text-sm.link-styled").First()
	if author.Length() > 0 {
		if name := NormalizeWhitespace(author.Text()); name != "" {
			m.Author = Str(name)
		}
		if href, ok := author.Attr("href"); ok {
			m.profileURL = strings.TrimSpace(href)
		}
	}

	if n, ok := attrInt(page.Find(`a[data-test-id="social-actions__reactions"]`).First(), "data-num-reactions"); ok {
		m.Likes = I64(n)
	}
	if n, ok := attrInt(page.Find(`a[data-test-id="social-actions__comments"]`).First(), "data-num-comments"); ok {
		m.Comments = I64(n)
	}

	if c := cleanText(page.Find(`p[data-test-id="main-feed-activity-card__commentary"]`).First().Text()); c != nil {
		m.Content = c
	}

	page.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(strings.ToLower(text), "followers") {
			return true
		}
		if n, ok := ParseCount(text); ok {
			m.Followers = I64(n)
			return false
		}
		return true
	})

	return m
}

// FollowUp loads the author profile when the post card never carried a
// usable follower count. Zero counts as missing: guest post pages
// sometimes render the tag before hydration fills it.
func (l *LinkedIn) FollowUp(m *Metrics) ([]task.Step, bool) {
	if (m.Followers != nil && *m.Followers != 0) || m.profileURL == "" {
		return nil, false
	}
	profile := m.profileURL
	if !strings.HasPrefix(profile, "http") {
		profile = "https://www.linkedin.com" + profile
	}
	return []task.Step{
		{Kind: task.StepNavigate, URL: profile},
		{Kind: task.StepSleep, Duration: 5 * time.Second},
		{Kind: task.StepExtract},
	}, true
}

func (l *LinkedIn) ParseFollowUp(doc string, m *Metrics) {
	page, err := LoadHTML(doc)
	if err != nil {
		return
	}
	page.Find("span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(strings.ToLower(text), "followers") {
			return true
		}
		if n, ok := ParseCount(text); ok {
			m.Followers = I64(n)
			return false
		}
		return true
	})
}
