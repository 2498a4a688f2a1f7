package platform

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits parsed documents to 10MB to prevent memory
// exhaustion on hostile pages.
const MaxHTMLSize = 10 * 1024 * 1024

var sanitizer = bluemonday.StrictPolicy()

// ValidateHTML rejects empty or oversized documents before parsing.
func ValidateHTML(doc string) error {
	if len(doc) == 0 {
		return fmt.Errorf("html content required")
	}
	if len(doc) > MaxHTMLSize {
		return fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return nil
}

// DetectCharset guesses the document charset from its bytes.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// LoadHTML parses a document into goquery with charset detection.
func LoadHTML(doc string) (*goquery.Document, error) {
	if err := ValidateHTML(doc); err != nil {
		return nil, err
	}

	data := []byte(doc)
	utf8Reader, err := charset.NewReader(bytes.NewReader(data), DetectCharset(data))
	if err != nil {
		return goquery.NewDocumentFromReader(strings.NewReader(doc))
	}
	return goquery.NewDocumentFromReader(utf8Reader)
}

// LoadHTMLNode parses a document into an xpath-compatible node tree.
func LoadHTMLNode(doc string) (*html.Node, error) {
	if err := ValidateHTML(doc); err != nil {
		return nil, err
	}

	data := []byte(doc)
	utf8Reader, err := charset.NewReader(bytes.NewReader(data), DetectCharset(data))
	if err != nil {
		return htmlquery.Parse(strings.NewReader(doc))
	}
	return htmlquery.Parse(utf8Reader)
}

// metaContent reads a <meta> tag's content attribute by property or
// name, xpath style.
func metaContent(node *html.Node, attr, value string) (string, bool) {
	n := htmlquery.FindOne(node, fmt.Sprintf(`//meta[@%s=%q]`, attr, value))
	if n == nil {
		return "", false
	}
	content := htmlquery.SelectAttr(n, "content")
	return content, content != ""
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText strips markup and flattens whitespace; nil when nothing
// meaningful remains.
func cleanText(s string) *string {
	s = html.UnescapeString(sanitizer.Sanitize(s))
	s = NormalizeWhitespace(strings.ReplaceAll(s, "\n", " "))
	if s == "" {
		return nil
	}
	return &s
}

var digitsRe = regexp.MustCompile(`\d+`)

// firstInt returns the first run of digits in the text.
func firstInt(s string) (int64, bool) {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// attrInt reads an integer attribute off a goquery selection.
func attrInt(sel *goquery.Selection, attr string) (int64, bool) {
	v, ok := sel.Attr(attr)
	if !ok {
		return 0, false
	}
	return firstInt(v)
}
