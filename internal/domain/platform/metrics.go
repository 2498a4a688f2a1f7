package platform

import (
	"strconv"
	"strings"
	"time"
)

// Metrics is one engagement row. Nullable fields are pointers and every
// key is always emitted; consumers key off null, not absence.
type Metrics struct {
	Date      *string `json:"date"`
	URL       string  `json:"url"`
	Author    *string `json:"author"`
	Content   *string `json:"content"`
	Followers *int64  `json:"followers"`
	Views     *int64  `json:"views"`
	Likes     *int64  `json:"likes"`
	Comments  *int64  `json:"comments"`
	Saves     *int64  `json:"saves"`
	Shares    *int64  `json:"shares"`
	Reposts   *int64  `json:"reposts"`
	Platform  string  `json:"platform"`
	Error     *string `json:"error"`

	// profileURL carries the author's profile link between the first
	// parse and a follow-up task; never serialized.
	profileURL string
}

// Failed reports whether the row carries an extraction error.
func (m *Metrics) Failed() bool { return m != nil && m.Error != nil }

// ErrorRow builds the row emitted when extraction fails outright.
func ErrorRow(url string, p Platform, msg string) *Metrics {
	return &Metrics{URL: url, Platform: string(p), Error: Str(msg)}
}

// UnsupportedRow is the row for URLs that match no platform.
func UnsupportedRow(url string) *Metrics {
	return ErrorRow(url, PlatformUnknown, "Unsupported platform")
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// I64 returns a pointer to n.
func I64(n int64) *int64 { return &n }

// ParseCount converts human counts to integers: "2,799", "22K
// followers", "1.2M". Returns false for anything non-numeric.
func ParseCount(text string) (int64, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimSpace(strings.ReplaceAll(t, "followers", ""))
	if t == "" {
		return 0, false
	}

	mult := float64(1)
	switch {
	case strings.Contains(t, "k"):
		mult = 1_000
		t = strings.ReplaceAll(t, "k", "")
	case strings.Contains(t, "m"):
		mult = 1_000_000
		t = strings.ReplaceAll(t, "m", "")
	}
	t = strings.TrimSpace(strings.ReplaceAll(t, ",", ""))

	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return int64(f * mult), true
}

// formatEpoch renders a unix timestamp the way rows have always carried
// dates: "Jan 02, 2006" in the service's home timezone.
func formatEpoch(ts int64) *string {
	if ts <= 0 {
		return nil
	}
	s := time.Unix(ts, 0).In(homeZone).Format("Jan 02, 2006")
	return &s
}

// homeZone is Asia/Jakarta, degrading to a fixed UTC+7 when tzdata is
// unavailable in the container.
var homeZone = loadHomeZone()

func loadHomeZone() *time.Location {
	if loc, err := time.LoadLocation("Asia/Jakarta"); err == nil {
		return loc
	}
	return time.FixedZone("WIB", 7*60*60)
}
