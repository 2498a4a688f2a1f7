package platform

import (
	"regexp"
	"strings"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

// Instagram extracts post and reel permalinks. Logged-out pages pack
// everything into og:description ("12K likes, 301 comments - author on
// January 1, 2024: “caption”"), so parsing is one regex over
// that tag.
type Instagram struct{}

func NewInstagram() *Instagram { return &Instagram{} }

func (i *Instagram) Platform() Platform { return PlatformInstagram }

var instagramDescRe = regexp.MustCompile(`(?i)^([\d.,]+[KM]?)\s+likes?,\s*([\d.,]+[KM]?)\s+comments?\s*-\s*(.+?)\s+on\s+([^:]+)`)

func (i *Instagram) Plan(url string) ([]task.Step, error) {
	if _, err := Shortcode(url); err != nil {
		return nil, err
	}
	return []task.Step{
		{Kind: task.StepNavigate, URL: url},
		{Kind: task.StepExtract},
	}, nil
}

func (i *Instagram) Parse(doc, url string) *Metrics {
	m := &Metrics{Platform: string(PlatformInstagram), URL: url}

	node, err := LoadHTMLNode(doc)
	if err != nil {
		m.Error = Str("Parse error: " + err.Error())
		return m
	}

	desc, ok := metaContent(node, "property", "og:description")
	if !ok {
		m.Error = Str("No og:description: post may be private or removed")
		return m
	}

	if match := instagramDescRe.FindStringSubmatch(desc); match != nil {
		if n, ok := ParseCount(match[1]); ok {
			m.Likes = I64(n)
		}
		if n, ok := ParseCount(match[2]); ok {
			m.Comments = I64(n)
		}
		if author := NormalizeWhitespace(match[3]); author != "" {
			m.Author = Str(author)
		}
		if date := NormalizeWhitespace(match[4]); date != "" {
			m.Date = Str(date)
		}
	}

	// caption trails the metadata as: “caption”
	if _, caption, found := strings.Cut(desc, ": “"); found {
		caption = strings.TrimSuffix(strings.TrimSpace(caption), "”")
		if c := cleanText(caption); c != nil {
			m.Content = c
		}
	} else if m.Likes == nil && m.Comments == nil {
		// description without the engagement prefix is just the caption
		m.Content = cleanText(desc)
	}

	return m
}
