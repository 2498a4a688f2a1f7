package platform

import (
	"regexp"
	"time"

	"github.com/antchfx/htmlquery"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// YouTube extracts watch pages. Views, publish date, and author ride
// on itemprop meta tags; the like count only exists inside the
// ytInitialData blob, so it is pulled with a regex over the raw
// document instead of a DOM walk.
type YouTube struct{}

func NewYouTube() *YouTube { return &YouTube{} }

func (y *YouTube) Platform() Platform { return PlatformYouTube }

var likeCountRe = regexp.MustCompile(`"likeCount"\s*:\s*"?(\d+)"?`)

func (y *YouTube) Plan(url string) ([]task.Step, error) {
	videoID, err := VideoID(url)
	if err != nil {
		return nil, err
	}
	return []task.Step{
		{Kind: task.StepNavigate, URL: "https://www.youtube.com/watch?v=" + videoID},
		{Kind: task.StepWait, Selector: `meta[itemprop="interactionCount"]`, Timeout: 10 * time.Second},
		{Kind: task.StepExtract},
	}, nil
}

func (y *YouTube) Parse(doc, url string) *Metrics {
	m := &Metrics{Platform: string(PlatformYouTube), URL: url}

	node, err := LoadHTMLNode(doc)
	if err != nil {
		m.Error = Str("Parse error: " + err.Error())
		return m
	}

	if views, ok := metaContent(node, "itemprop", "interactionCount"); ok {
		if n, ok := ParseCount(views); ok {
			m.Views = I64(n)
		}
	}
	if published, ok := metaContent(node, "itemprop", "datePublished"); ok {
		m.Date = Str(formatISODate(published))
	}
	if link := htmlquery.FindOne(node, `//link[@itemprop="name"]`); link != nil {
		if name := NormalizeWhitespace(htmlquery.SelectAttr(link, "content")); name != "" {
			m.Author = Str(name)
		}
	}
	if desc, ok := metaContent(node, "property", "og:description"); ok {
		m.Content = cleanText(desc)
	}
	if match := likeCountRe.FindStringSubmatch(doc); match != nil {
		if n, ok := firstInt(match[1]); ok {
			m.Likes = I64(n)
		}
	}

	return m
}

// formatISODate renders a datePublished value in the report's date
// layout, passing unparseable input through untouched.
func formatISODate(s string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 02, 2006")
		}
	}
	return s
}
