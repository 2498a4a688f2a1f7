package platform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\t b\n\nc  "))
	assert.Equal(t, "", NormalizeWhitespace("   \n\t "))
}

func TestCleanText(t *testing.T) {
	got := cleanText("  Hello\n<b>world</b> &amp; friends ")
	require.NotNil(t, got)
	assert.Equal(t, "Hello world & friends", *got)

	assert.Nil(t, cleanText("  \n "))
	assert.Nil(t, cleanText("<script>alert(1)</script>"))
}

func TestFirstInt(t *testing.T) {
	n, ok := firstInt("12 Likes and 3 replies")
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	_, ok = firstInt("no numbers here")
	assert.False(t, ok)
}

func TestValidateHTML(t *testing.T) {
	assert.NoError(t, ValidateHTML("<html><body>ok</body></html>"))
	assert.Error(t, ValidateHTML(""))
	assert.Error(t, ValidateHTML(strings.Repeat("x", MaxHTMLSize+1)))
}

func TestLoadHTMLAndQuery(t *testing.T) {
	doc, err := LoadHTML(`<html><body><a class="x" data-count="7">seven</a></body></html>`)
	require.NoError(t, err)

	sel := doc.Find("a.x").First()
	assert.Equal(t, "seven", sel.Text())

	n, ok := attrInt(sel, "data-count")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = attrInt(sel, "data-missing")
	assert.False(t, ok)
}

func TestMetaContent(t *testing.T) {
	node, err := LoadHTMLNode(`<html><head>
		<meta property="og:title" content="A Title">
		<meta itemprop="interactionCount" content="123">
		<meta property="og:empty" content="">
	</head><body></body></html>`)
	require.NoError(t, err)

	title, ok := metaContent(node, "property", "og:title")
	require.True(t, ok)
	assert.Equal(t, "A Title", title)

	count, ok := metaContent(node, "itemprop", "interactionCount")
	require.True(t, ok)
	assert.Equal(t, "123", count)

	_, ok = metaContent(node, "property", "og:empty")
	assert.False(t, ok)

	_, ok = metaContent(node, "property", "og:absent")
	assert.False(t, ok)
}

func TestDetectCharset(t *testing.T) {
	assert.NotEmpty(t, DetectCharset([]byte("<html><body>plain ascii</body></html>")))
}
