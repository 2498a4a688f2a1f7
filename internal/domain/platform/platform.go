package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies a supported social network.
type Platform string

const (
	PlatformX         Platform = "x"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformStockbit  Platform = "stockbit"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformUnknown   Platform = "unknown"
)

// DisplayName returns the label shown on the platforms endpoint.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformX:
		return "X/Twitter"
	case PlatformYouTube:
		return "YouTube"
	case PlatformTikTok:
		return "TikTok"
	case PlatformStockbit:
		return "Stockbit"
	case PlatformInstagram:
		return "Instagram"
	case PlatformLinkedIn:
		return "LinkedIn"
	default:
		return "Unknown"
	}
}

// Detect maps a URL to its platform by hostname substring. Unknown
// URLs are still processed; they just produce an unsupported-platform
// error row.
func Detect(rawURL string) Platform {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "twitter.com") || strings.Contains(u, "x.com"):
		return PlatformX
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(u, "tiktok.com"):
		return PlatformTikTok
	case strings.Contains(u, "stockbit.com"):
		return PlatformStockbit
	case strings.Contains(u, "instagram.com"):
		return PlatformInstagram
	case strings.Contains(u, "linkedin.com"):
		return PlatformLinkedIn
	default:
		return PlatformUnknown
	}
}

var (
	tweetURLRe     = regexp.MustCompile(`(?:twitter|x)\.com/\w+/statuses?/(\d+)`)
	instagramURLRe = regexp.MustCompile(`instagram\.com/(?:p|reel|tv)/([A-Za-z0-9_-]+)`)
	youtubeIDRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// TweetID pulls the numeric status ID out of a post URL.
func TweetID(rawURL string) (string, error) {
	m := tweetURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("not a valid X/Twitter post URL: %s", rawURL)
	}
	return m[1], nil
}

// Shortcode pulls the post shortcode out of an Instagram URL.
func Shortcode(rawURL string) (string, error) {
	m := instagramURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("not a valid Instagram post URL: %s", rawURL)
	}
	return m[1], nil
}

// VideoID extracts a YouTube video ID from the URL shapes in the wild:
// youtu.be short links, /shorts/, /watch?v=, /embed/, and a bare
// 11-character ID as the last path segment.
func VideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	if u.Host == "youtu.be" {
		if vid := strings.TrimPrefix(u.Path, "/"); vid != "" {
			return vid, nil
		}
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		if parts := strings.Split(u.Path, "/"); len(parts) > 2 && parts[2] != "" {
			return parts[2], nil
		}
	}
	if u.Path == "/watch" {
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
	}
	if strings.HasPrefix(u.Path, "/embed/") {
		if parts := strings.Split(u.Path, "/"); len(parts) > 2 && parts[2] != "" {
			return parts[2], nil
		}
	}

	segments := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if youtubeIDRe.MatchString(last) {
		return last, nil
	}
	return "", fmt.Errorf("could not extract video ID from: %s", rawURL)
}
