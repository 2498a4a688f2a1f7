package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/resilience"
)

// Browser-shaped headers; static fetches get blocked outright without
// them on most of the hosts this service talks to.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

var defaultHeaders = map[string]string{
	"User-Agent":                defaultUserAgent,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
}

// Client fetches static pages for platforms that embed their state in
// the served HTML. It wraps resty with a retry transport, a client-side
// rate limiter, and a circuit breaker so a misbehaving host cannot eat
// the whole batch.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	cookie  string
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewClient builds the fetch client. The TikTok cookie, when
// configured, is attached only to tiktok.com requests.
func NewClient(cfg config.FetchConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second)
	restyClient.SetTransport(retryClient.HTTPClient.Transport)
	for k, v := range defaultHeaders {
		restyClient.SetHeader(k, v)
	}
	restyClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	breaker := resilience.New("fetch-external", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// pages flake; only a sustained failure run should trip
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
		breaker: breaker,
		cookie:  cfg.TikTokCookie,
		logger:  logger,
	}
}

// WithMetrics attaches fetch instrumentation.
func (c *Client) WithMetrics(m *monitoring.Metrics) *Client {
	c.metrics = m
	return c
}

// SetRateLimit caps outbound requests per second; zero or negative
// removes the cap.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// GetHTML fetches a page and returns its body decoded to UTF-8. Only
// HTML-ish content types come back; anything else is an error so JSON
// error pages never reach the parsers.
func (c *Client) GetHTML(ctx context.Context, rawURL string) (string, error) {
	host := hostLabel(rawURL)

	if c.breaker.State() == resilience.StateOpen {
		c.record(host, "breaker_open")
		return "", fmt.Errorf("fetch %s: %w", host, resilience.ErrCircuitOpen)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("fetch %s: %w", host, err)
	}

	req := c.resty.R().SetContext(ctx)
	// transparent transport gzip is off once we ask for it ourselves
	req.SetHeader("Accept-Encoding", "gzip")
	if c.cookie != "" && host == "tiktok" {
		req.SetHeader("Cookie", c.cookie)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := req.Get(rawURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("status %d %s", resp.StatusCode(), http.StatusText(resp.StatusCode()))
		}
		return resp, nil
	})
	if err != nil {
		c.record(host, "error")
		c.logger.Warn("Static fetch failed",
			zap.String("host", host),
			zap.Error(err))
		return "", fmt.Errorf("fetch %s: %w", host, err)
	}
	resp := result.(*resty.Response)

	body, err := maybeGunzip(resp.Body(), resp.Header().Get("Content-Encoding"))
	if err != nil {
		c.record(host, "error")
		return "", fmt.Errorf("fetch %s: decompress: %w", host, err)
	}

	if err := guardContentType(resp.Header().Get("Content-Type"), body); err != nil {
		c.record(host, "error")
		return "", fmt.Errorf("fetch %s: %w", host, err)
	}

	c.record(host, "ok")
	return decodeToUTF8(body), nil
}

func (c *Client) record(host, status string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(host, status)
	}
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip decompresses gzip bodies. The magic-byte check covers
// servers that compress without declaring it and proxies that strip
// the header after decompressing.
func maybeGunzip(body []byte, encoding string) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		if strings.Contains(encoding, "gzip") {
			return nil, err
		}
		return body, nil
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

var htmlContentTypes = []string{"text/html", "text/plain", "xhtml"}

func guardContentType(header string, body []byte) error {
	ct := strings.ToLower(header)
	if ct == "" {
		ct = mimetype.Detect(body).String()
	}
	for _, allowed := range htmlContentTypes {
		if strings.Contains(ct, allowed) {
			return nil
		}
	}
	return fmt.Errorf("unexpected content type %q", header)
}

// decodeToUTF8 converts the body using its detected charset, falling
// back to the raw bytes when detection or conversion fails.
func decodeToUTF8(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	cs := "utf-8"
	if result, err := chardet.NewTextDetector().DetectBest(body); err == nil && result != nil {
		cs = strings.ToLower(result.Charset)
	}
	reader, err := charset.NewReader(bytes.NewReader(body), cs)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// hostLabel reduces a URL to a low-cardinality metric label:
// "https://www.tiktok.com/@x/video/1" becomes "tiktok".
func hostLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	host := u.Hostname()
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
