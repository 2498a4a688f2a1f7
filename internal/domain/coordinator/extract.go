package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanreynaldy/social-media-api/internal/domain/browser"
	"github.com/bryanreynaldy/social-media-api/internal/domain/platform"
	"github.com/bryanreynaldy/social-media-api/internal/domain/pool"
	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
	"github.com/bryanreynaldy/social-media-api/internal/storage/history"
)

// busyErr reports capacity conditions that deserve backpressure rather
// than an error row alone.
func busyErr(err error) bool {
	return errors.Is(err, pool.ErrPoolExhausted) ||
		errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, browser.ErrStartupTimeout)
}

// ExtractPost runs the full pipeline for one post URL: detect the
// platform, check the cache, extract under the platform's rate gate,
// then store and record. Failures land in the row's error field; the
// returned row is never nil. The error return is reserved for capacity
// conditions (pool exhausted, session startup timeout) so callers can
// apply backpressure instead of treating them as data.
func (c *Coordinator) ExtractPost(ctx context.Context, rawURL string) (*platform.Metrics, error) {
	rawURL = strings.TrimSpace(rawURL)

	p := platform.Detect(rawURL)
	ext, ok := c.registry.Get(p)
	if p == platform.PlatformUnknown || !ok {
		c.recordExtraction(platform.PlatformUnknown, "unsupported", 0)
		return platform.UnsupportedRow(rawURL), nil
	}

	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return platform.ErrorRow(rawURL, p, fmt.Sprintf("invalid URL: %s", rawURL)), nil
	} else if !c.hostAllowed(u.Hostname()) {
		return platform.ErrorRow(rawURL, p, fmt.Sprintf("host %s not in allowlist", u.Hostname())), nil
	}

	if row, err := c.cache.GetRow(ctx, rawURL); err == nil {
		c.logger.Debug("Extraction served from cache", zap.String("url", rawURL))
		return row, nil
	}

	start := time.Now()
	row, err := c.gate.Do(ctx, p, func(ctx context.Context) (*platform.Metrics, error) {
		return c.extractOnce(ctx, ext, rawURL)
	})
	if err != nil {
		row = platform.ErrorRow(rawURL, p, err.Error())
		if !busyErr(err) {
			err = nil
		}
	}
	elapsed := time.Since(start)

	status := "success"
	if row.Failed() {
		status = "error"
	}
	c.recordExtraction(p, status, elapsed)
	c.logger.Info("Extraction finished",
		zap.String("url", rawURL),
		zap.String("platform", string(p)),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed),
	)

	if cerr := c.cache.SetRow(ctx, rawURL, row); cerr != nil {
		c.logger.Debug("Cache store failed", zap.String("url", rawURL), zap.Error(cerr))
	}
	c.recordExtractHistory(rawURL, p, row, elapsed)
	return row, err
}

// ExtractBatch fans URLs out across the pool, bounded by the batch
// concurrency, and preserves input order in the result slice. Per-URL
// failures stay in their rows; the batch itself always completes.
func (c *Coordinator) ExtractBatch(ctx context.Context, urls []string) ([]*platform.Metrics, platform.Summary) {
	bid := id.NewBatchID()
	c.hub.Publish(Event{Type: EventBatchStarted, BatchID: bid.String(), Count: len(urls)})
	start := time.Now()

	rows := make([]*platform.Metrics, len(urls))
	durations := make([]float64, 0, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.BatchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			linkStart := time.Now()
			// Capacity problems still produce an error row; a batch
			// never fails as a whole.
			rows[i], _ = c.ExtractPost(gctx, u)
			mu.Lock()
			durations = append(durations, time.Since(linkStart).Seconds())
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	summary := platform.Summarize(rows, durations)
	c.hub.Publish(Event{Type: EventBatchFinished, BatchID: bid.String(), Count: len(urls)})
	c.logger.Info("Batch extraction finished",
		zap.String("batch_id", bid.String()),
		zap.Int("urls", len(urls)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, summary
}

// extractOnce performs one extraction attempt. Deterministic failures
// (bad post URL, parse trouble) come back inside the row; transport and
// browser failures come back as errors so the gate can judge whether
// they look like throttling.
func (c *Coordinator) extractOnce(ctx context.Context, ext platform.Extractor, rawURL string) (*platform.Metrics, error) {
	switch e := ext.(type) {
	case platform.StaticExtractor:
		return e.Extract(ctx, rawURL)

	case platform.PageExtractor:
		steps, err := e.Plan(rawURL)
		if err != nil {
			return platform.ErrorRow(rawURL, e.Platform(), err.Error()), nil
		}

		res, err := c.runTask(ctx, task.Descriptor{ID: id.NewTaskID(), Steps: steps})
		if err != nil {
			return nil, err
		}
		if !res.Succeeded() {
			return nil, fmt.Errorf("browser extraction failed: %s", failureReason(res))
		}
		doc, ok := res.Document()
		if !ok {
			return nil, errors.New("browser extraction returned no document")
		}

		row := e.Parse(doc, rawURL)
		c.followUp(ctx, e, row)
		return row, nil

	default:
		return platform.UnsupportedRow(rawURL), nil
	}
}

// followUp runs the optional second browser pass (typically the
// author's profile page). A failed follow-up leaves the row as parsed;
// it never invalidates the first pass.
func (c *Coordinator) followUp(ctx context.Context, ext platform.PageExtractor, row *platform.Metrics) {
	fu, ok := ext.(platform.FollowUpExtractor)
	if !ok || row == nil {
		return
	}
	steps, need := fu.FollowUp(row)
	if !need {
		return
	}

	res, err := c.runTask(ctx, task.Descriptor{ID: id.NewTaskID(), Steps: steps})
	if err != nil || !res.Succeeded() {
		c.logger.Debug("Follow-up task failed",
			zap.String("url", row.URL),
			zap.String("platform", row.Platform),
		)
		return
	}
	if doc, ok := res.Document(); ok {
		fu.ParseFollowUp(doc, row)
	}
}

func failureReason(res task.Result) string {
	if res.Reason != "" {
		return res.Reason
	}
	return string(res.Outcome)
}

func (c *Coordinator) recordExtraction(p platform.Platform, status string, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordExtraction(string(p), status, elapsed)
	}
}

func (c *Coordinator) recordExtractHistory(rawURL string, p platform.Platform, row *platform.Metrics, elapsed time.Duration) {
	rec := &history.TaskRecord{
		TaskID:    id.NewTaskID().String(),
		URL:       rawURL,
		Platform:  string(p),
		Outcome:   "success",
		ElapsedMS: elapsed.Milliseconds(),
	}
	if row.Failed() {
		rec.Outcome = "error"
		rec.Reason = row.Error
	}
	if payload, err := sonic.MarshalString(row); err == nil {
		rec.Payload = payload
	}
	c.writeHistory(rec)
}
