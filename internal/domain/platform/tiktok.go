package platform

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// TikTok is the one static-fetch platform: watch pages embed the full
// video state as JSON, so a browser session would be wasted on it.
type TikTok struct {
	fetcher Fetcher
}

func NewTikTok(fetcher Fetcher) *TikTok { return &TikTok{fetcher: fetcher} }

func (t *TikTok) Platform() Platform { return PlatformTikTok }

// Embedded state blobs, newest page generation first.
var (
	universalDataRe = regexp.MustCompile(`(?s)<script[^>]*id="__UNIVERSAL_DATA_FOR_REHYDRATION__"[^>]*>(.*?)</script>`)
	sigiStateRe     = regexp.MustCompile(`(?s)<script[^>]*id="SIGI_STATE"[^>]*>(.*?)</script>`)
	nextDataRe      = regexp.MustCompile(`(?s)<script[^>]*id="__NEXT_DATA__"[^>]*>(.*?)</script>`)
)

// Extract fetches the page and tries each embedded-state generation in
// order. Photo URLs are rewritten to their video twins, which carry
// the same item struct.
func (t *TikTok) Extract(ctx context.Context, rawURL string) (*Metrics, error) {
	fetchURL := strings.Replace(rawURL, "m.tiktok.com/", "www.tiktok.com/", 1)
	if strings.Contains(fetchURL, "/photo/") && !strings.Contains(fetchURL, "/video/") {
		fetchURL = strings.Replace(fetchURL, "/photo/", "/video/", 1)
	}

	doc, err := t.fetcher.GetHTML(ctx, fetchURL)
	if err != nil {
		return nil, err
	}

	for _, parse := range []func(string) *Metrics{parseUniversalData, parseSIGIState, parseNextData} {
		if m := parse(doc); m != nil {
			m.URL = rawURL
			return m, nil
		}
	}
	return nil, errors.New("no embedded video data: page may be geo-blocked, private, or require a cookie")
}

func parseUniversalData(doc string) *Metrics {
	match := universalDataRe.FindStringSubmatch(doc)
	if match == nil || !gjson.Valid(match[1]) {
		return nil
	}
	data := match[1]
	for _, scope := range []string{`webapp\.video-detail`, `webapp\.photo-detail`} {
		item := gjson.Get(data, "__DEFAULT_SCOPE__."+scope+".itemInfo.itemStruct")
		if item.IsObject() {
			return rowFromItem(item)
		}
	}
	return nil
}

func parseSIGIState(doc string) *Metrics {
	match := sigiStateRe.FindStringSubmatch(doc)
	if match == nil || !gjson.Valid(match[1]) {
		return nil
	}
	data := match[1]

	module := gjson.Get(data, "ItemModule")
	if !module.IsObject() {
		return nil
	}
	var item gjson.Result
	module.ForEach(func(_, v gjson.Result) bool {
		item = v
		return false
	})
	if !item.IsObject() {
		return nil
	}

	row := rowFromItem(item)
	if row.Followers == nil && row.Author != nil {
		// older pages keep follower counts in a separate user module
		key := strings.ReplaceAll(*row.Author, ".", `\.`)
		row.Followers = jsonInt(gjson.Get(data, "UserModule.stats."+key+".followerCount"))
	}
	return row
}

func parseNextData(doc string) *Metrics {
	match := nextDataRe.FindStringSubmatch(doc)
	if match == nil || !gjson.Valid(match[1]) {
		return nil
	}
	item := gjson.Get(match[1], "props.pageProps.itemInfo.itemStruct")
	if !item.IsObject() {
		return nil
	}
	return rowFromItem(item)
}

func rowFromItem(item gjson.Result) *Metrics {
	stats := item.Get("stats")
	caption := NormalizeWhitespace(strings.ReplaceAll(item.Get("desc").String(), "\n", " "))

	row := &Metrics{
		Platform:  string(PlatformTikTok),
		Content:   Str(caption),
		Views:     jsonInt(stats.Get("playCount"), stats.Get("playCountV2")),
		Likes:     jsonInt(stats.Get("diggCount"), stats.Get("diggCountV2")),
		Shares:    jsonInt(stats.Get("shareCount")),
		Comments:  jsonInt(stats.Get("commentCount")),
		Saves:     jsonInt(stats.Get("collectCount")),
		Followers: jsonInt(item.Get("authorStats.followerCount")),
	}
	if author := item.Get("author.uniqueId").String(); author != "" {
		row.Author = Str(author)
	}
	if ct := jsonInt(item.Get("createTime")); ct != nil {
		row.Date = formatEpoch(*ct)
	}
	return row
}

// jsonInt returns the first result that parses as an integer. Numeric
// strings tolerate thousands separators; everything else is nil.
func jsonInt(results ...gjson.Result) *int64 {
	for _, r := range results {
		if !r.Exists() {
			continue
		}
		switch r.Type {
		case gjson.Number:
			return I64(r.Int())
		case gjson.String:
			s := strings.ReplaceAll(strings.TrimSpace(r.String()), ",", "")
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return I64(n)
			}
		}
	}
	return nil
}
