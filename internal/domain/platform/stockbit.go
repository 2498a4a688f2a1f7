package platform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// Stockbit extracts stream posts. Guest pages render the engagement
// footer late, so the plan waits on a broad selector set before the
// snapshot. Follower counts only appear on the author's profile page,
// which the follow-up visit covers.
type Stockbit struct{}

func NewStockbit() *Stockbit { return &Stockbit{} }

func (s *Stockbit) Platform() Platform { return PlatformStockbit }

var (
	stockbitTitleRe     = regexp.MustCompile(`([^()]+?)\s*\(?([^()]+)\)?\s*on\s*Stockbit`)
	stockbitFollowersRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*Followers`),
		regexp.MustCompile(`(?i)Followers\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*Pengikut`),
		regexp.MustCompile(`(?i)Pengikut\s*(\d+)`),
	}
)

func (s *Stockbit) Plan(url string) ([]task.Step, error) {
	return []task.Step{
		{Kind: task.StepNavigate, URL: url},
		{Kind: task.StepWait, Selector: `[data-cy="post-guest-footer"], .post-guest-footer, [class*="like"], [class*="comment"]`, Timeout: 10 * time.Second},
		{Kind: task.StepScroll, Pixels: 500},
		{Kind: task.StepSleep, Duration: 2 * time.Second},
		{Kind: task.StepExtract},
	}, nil
}

func (s *Stockbit) Parse(doc, url string) *Metrics {
	m := &Metrics{
		Platform:  string(PlatformStockbit),
		URL:       url,
		Date:      Str("N/A"),
		Author:    Str("N/A"),
		Content:   Str("N/A"),
		Likes:     I64(0),
		Comments:  I64(0),
		Followers: I64(0),
	}

	page, err := LoadHTML(doc)
	if err != nil {
		m.Error = Str(fmt.Sprintf("Parse error: %v", err))
		return m
	}

	footer := page.Find(`div[data-cy="post-guest-footer"]`).First()
	if footer.Length() > 0 {
		if n, ok := firstInt(footer.Find(`a[class*="post-guest-footer-likes"]`).First().Text()); ok {
			m.Likes = I64(n)
		}
		if n, ok := firstInt(footer.Find(`a[class*="post-guest-footer-replies"]`).First().Text()); ok {
			m.Comments = I64(n)
		}
	}

	if match := stockbitTitleRe.FindStringSubmatch(page.Find("title").Text()); match != nil {
		author := strings.TrimSpace(match[2])
		if author == "" {
			author = strings.TrimSpace(match[1])
		}
		if author != "" {
			m.Author = Str(author)
		}
	}

	if desc, ok := page.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if c := cleanText(desc); c != nil {
			m.Content = c
		}
	}

	posted := page.Find("time").First()
	if posted.Length() > 0 {
		if dt, ok := posted.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			m.Date = Str(strings.TrimSpace(dt))
		} else if t := NormalizeWhitespace(posted.Text()); t != "" {
			m.Date = Str(t)
		}
	}

	return m
}

// FollowUp visits the author profile for the follower count. Skipped
// when the post page never yielded a usable username.
func (s *Stockbit) FollowUp(m *Metrics) ([]task.Step, bool) {
	if m.Author == nil || *m.Author == "N/A" || strings.ContainsAny(*m.Author, " /") {
		return nil, false
	}
	return []task.Step{
		{Kind: task.StepNavigate, URL: "https://stockbit.com/" + *m.Author + "?source="},
		{Kind: task.StepSleep, Duration: 3 * time.Second},
		{Kind: task.StepScroll, Pixels: 300},
		{Kind: task.StepSleep, Duration: time.Second},
		{Kind: task.StepExtract},
	}, true
}

func (s *Stockbit) ParseFollowUp(doc string, m *Metrics) {
	page, err := LoadHTML(doc)
	if err != nil {
		return
	}
	text := page.Text()
	for _, re := range stockbitFollowersRe {
		if match := re.FindStringSubmatch(text); match != nil {
			if n, ok := firstInt(match[1]); ok {
				m.Followers = I64(n)
				return
			}
		}
	}
}
