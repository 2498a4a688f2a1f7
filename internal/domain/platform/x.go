package platform

import (
	"regexp"
	"strings"
	"time"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// X extracts tweet permalinks. Logged-out pages expose only the og
// meta pair: author handle inside the title, text in the description.
// Engagement counts need an authenticated session and stay null.
type X struct{}

func NewX() *X { return &X{} }

func (x *X) Platform() Platform { return PlatformX }

var xHandleRe = regexp.MustCompile(`\(@([A-Za-z0-9_]+)\)`)

func (x *X) Plan(url string) ([]task.Step, error) {
	if _, err := TweetID(url); err != nil {
		return nil, err
	}
	return []task.Step{
		{Kind: task.StepNavigate, URL: url},
		{Kind: task.StepWait, Selector: "article", Timeout: 10 * time.Second},
		{Kind: task.StepExtract},
	}, nil
}

func (x *X) Parse(doc, url string) *Metrics {
	m := &Metrics{Platform: string(PlatformX), URL: url}

	node, err := LoadHTMLNode(doc)
	if err != nil {
		m.Error = Str("Parse error: " + err.Error())
		return m
	}

	if title, ok := metaContent(node, "property", "og:title"); ok {
		if match := xHandleRe.FindStringSubmatch(title); match != nil {
			m.Author = Str(match[1])
		}
	}
	if desc, ok := metaContent(node, "property", "og:description"); ok {
		desc = strings.TrimPrefix(desc, "“")
		desc = strings.TrimSuffix(desc, "”")
		m.Content = cleanText(desc)
	}

	return m
}
