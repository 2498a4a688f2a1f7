package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
)

const stockbitPostHTML = `<html><head>
<title>Budi Santoso (budisan) on Stockbit: $BBCA analysis</title>
<meta name="description" content="Analisa  saham $BBCA   hari ini">
</head><body>
<div data-cy="post-guest-footer">
  <a class="post-guest-footer-likes-button">12 Likes</a>
  <a class="post-guest-footer-replies-button">3 Replies</a>
</div>
<time datetime="2024-05-01T10:00:00Z">1 May 2024</time>
</body></html>`

func TestStockbitPlan(t *testing.T) {
	steps, err := NewStockbit().Plan("https://stockbit.com/post/123")
	require.NoError(t, err)
	require.Len(t, steps, 5)
	assert.Equal(t, task.StepNavigate, steps[0].Kind)
	assert.Equal(t, task.StepWait, steps[1].Kind)
	assert.Contains(t, steps[1].Selector, "post-guest-footer")
	assert.Equal(t, task.StepScroll, steps[2].Kind)
	assert.Equal(t, 500, steps[2].Pixels)
	assert.Equal(t, task.StepExtract, steps[4].Kind)
}

func TestStockbitParse(t *testing.T) {
	m := NewStockbit().Parse(stockbitPostHTML, "https://stockbit.com/post/123")

	assert.False(t, m.Failed())
	assert.Equal(t, "budisan", *m.Author)
	assert.Equal(t, int64(12), *m.Likes)
	assert.Equal(t, int64(3), *m.Comments)
	assert.Equal(t, "Analisa saham $BBCA hari ini", *m.Content)
	assert.Equal(t, "2024-05-01T10:00:00Z", *m.Date)
	assert.Equal(t, int64(0), *m.Followers)
}

func TestStockbitParseEmptyPage(t *testing.T) {
	m := NewStockbit().Parse("<html><body></body></html>", "u")

	// missing pieces fall back to the row defaults instead of failing
	assert.False(t, m.Failed())
	assert.Equal(t, "N/A", *m.Author)
	assert.Equal(t, "N/A", *m.Content)
	assert.Equal(t, int64(0), *m.Likes)
}

func TestStockbitFollowUp(t *testing.T) {
	sb := NewStockbit()

	m := &Metrics{Author: Str("budisan")}
	steps, ok := sb.FollowUp(m)
	require.True(t, ok)
	require.Len(t, steps, 5)
	assert.Equal(t, "https://stockbit.com/budisan?source=", steps[0].URL)

	_, ok = sb.FollowUp(&Metrics{Author: Str("N/A")})
	assert.False(t, ok)
	_, ok = sb.FollowUp(&Metrics{Author: Str("not a/handle")})
	assert.False(t, ok)

	sb.ParseFollowUp(`<html><body><div>4821 Followers</div></body></html>`, m)
	require.NotNil(t, m.Followers)
	assert.Equal(t, int64(4821), *m.Followers)

	id := &Metrics{Author: Str("budisan")}
	sb.ParseFollowUp(`<html><body><span>Pengikut 321</span></body></html>`, id)
	require.NotNil(t, id.Followers)
	assert.Equal(t, int64(321), *id.Followers)
}

const linkedinPostHTML = `<html><body>
<a class="text-sm link-styled" href="/company/acme">Acme Corp</a>
<a data-test-id="social-actions__reactions" data-num-reactions="42"></a>
<a data-test-id="social-actions__comments" data-num-comments="7"></a>
<p data-test-id="main-feed-activity-card__commentary">We shipped  a thing</p>
<p>12,345 followers</p>
</body></html>`

func TestLinkedInParse(t *testing.T) {
	m := NewLinkedIn().Parse(linkedinPostHTML, "https://www.linkedin.com/posts/acme_announce")

	assert.Equal(t, "Acme Corp", *m.Author)
	assert.Equal(t, int64(42), *m.Likes)
	assert.Equal(t, int64(7), *m.Comments)
	assert.Equal(t, "We shipped a thing", *m.Content)
	require.NotNil(t, m.Followers)
	assert.Equal(t, int64(12345), *m.Followers)
	assert.Nil(t, m.Date)

	_, ok := NewLinkedIn().FollowUp(m)
	assert.False(t, ok, "followers already known")
}

func TestLinkedInFollowUp(t *testing.T) {
	li := NewLinkedIn()

	m := li.Parse(`<html><body>
<a class="text-sm link-styled" href="/company/acme">Acme Corp</a>
</body></html>`, "u")
	require.Nil(t, m.Followers)

	steps, ok := li.FollowUp(m)
	require.True(t, ok)
	assert.Equal(t, "https://www.linkedin.com/company/acme", steps[0].URL)

	li.ParseFollowUp(`<html><body><span>22K followers</span></body></html>`, m)
	require.NotNil(t, m.Followers)
	assert.Equal(t, int64(22000), *m.Followers)

	// no profile link means nothing to visit
	_, ok = li.FollowUp(&Metrics{})
	assert.False(t, ok)
}

const youtubeWatchHTML = `<html><head>
<meta itemprop="interactionCount" content="123456">
<meta itemprop="datePublished" content="2024-01-15">
<link itemprop="name" content="Channel Name">
<meta property="og:description" content="A video about things.">
</head><body>
<script>var ytInitialData = {"videoActions":{"likeCount":"789"}};</script>
</body></html>`

func TestYouTubePlan(t *testing.T) {
	steps, err := NewYouTube().Plan("https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", steps[0].URL)
	assert.Equal(t, task.StepWait, steps[1].Kind)

	_, err = NewYouTube().Plan("https://www.youtube.com/feed/subscriptions")
	assert.Error(t, err)
}

func TestYouTubeParse(t *testing.T) {
	m := NewYouTube().Parse(youtubeWatchHTML, "https://youtu.be/dQw4w9WgXcQ")

	assert.Equal(t, int64(123456), *m.Views)
	assert.Equal(t, "Jan 15, 2024", *m.Date)
	assert.Equal(t, "Channel Name", *m.Author)
	assert.Equal(t, "A video about things.", *m.Content)
	assert.Equal(t, int64(789), *m.Likes)
	assert.Nil(t, m.Followers)
}

func TestFormatISODate(t *testing.T) {
	assert.Equal(t, "Jan 15, 2024", formatISODate("2024-01-15"))
	assert.Equal(t, "Jan 15, 2024", formatISODate("2024-01-15T08:30:00Z"))
	assert.Equal(t, "sometime", formatISODate("sometime"))
}

const xPostHTML = `<html><head>
<meta property="og:title" content="Jane Doe (@janedoe) on X">
<meta property="og:description" content="` + "“" + `hello world` + "”" + `">
</head><body><article></article></body></html>`

func TestXPlan(t *testing.T) {
	steps, err := NewX().Plan("https://x.com/janedoe/status/179055")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "article", steps[1].Selector)

	_, err = NewX().Plan("https://x.com/janedoe")
	assert.Error(t, err)
}

func TestXParse(t *testing.T) {
	m := NewX().Parse(xPostHTML, "https://x.com/janedoe/status/179055")

	assert.Equal(t, "janedoe", *m.Author)
	assert.Equal(t, "hello world", *m.Content)
	assert.Nil(t, m.Likes)
	assert.Nil(t, m.Date)
}

const instagramPostHTML = `<html><head>
<meta property="og:description" content="1,234 likes, 56 comments - janedoe on January 1, 2024: ` + "“" + `Sunset vibes` + "”" + `">
</head><body></body></html>`

func TestInstagramPlan(t *testing.T) {
	steps, err := NewInstagram().Plan("https://www.instagram.com/p/C8abc/")
	require.NoError(t, err)
	require.Len(t, steps, 2)

	_, err = NewInstagram().Plan("https://www.instagram.com/janedoe/")
	assert.Error(t, err)
}

func TestInstagramParse(t *testing.T) {
	m := NewInstagram().Parse(instagramPostHTML, "https://www.instagram.com/p/C8abc/")

	assert.Equal(t, int64(1234), *m.Likes)
	assert.Equal(t, int64(56), *m.Comments)
	assert.Equal(t, "janedoe", *m.Author)
	assert.Equal(t, "January 1, 2024", *m.Date)
	assert.Equal(t, "Sunset vibes", *m.Content)
}

func TestInstagramParsePrivatePost(t *testing.T) {
	m := NewInstagram().Parse("<html><head></head><body></body></html>", "u")
	assert.True(t, m.Failed())
	assert.Contains(t, *m.Error, "og:description")
}

func TestInstagramParseCaptionOnly(t *testing.T) {
	m := NewInstagram().Parse(`<html><head>
<meta property="og:description" content="Just a caption, nothing else">
</head></html>`, "u")

	assert.False(t, m.Failed())
	assert.Nil(t, m.Likes)
	require.NotNil(t, m.Content)
	assert.Equal(t, "Just a caption, nothing else", *m.Content)
}
