package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

var (
	// ErrNotLeased marks an Execute on a handle the pool has not leased
	// out. Steps only run on busy handles.
	ErrNotLeased = errors.New("session not leased")

	// ErrTerminated marks an Execute on a handle that was already torn
	// down.
	ErrTerminated = errors.New("session terminated")
)

const killWait = 3 * time.Second

// Handle owns one browser process and its devtools connection. A handle
// is leased to exactly one task at a time; the pool serializes leases,
// so Execute never races with itself. Crash detection is a closed
// channel: the process watcher trips it, and every path that touches
// the channel afterwards reports ErrCrashed.
type Handle struct {
	id       id.SessionID
	cmd      *exec.Cmd
	userDir  string
	devtools string
	logger   *logging.Logger

	conn   *rpcc.Conn
	client *cdp.Client

	mu     sync.Mutex
	status Status

	exited   chan struct{}
	exitErr  error
	termOnce sync.Once
}

// ID returns the pool-unique session identifier.
func (h *Handle) ID() id.SessionID { return h.id }

// DebugURL returns the devtools HTTP endpoint, useful in logs.
func (h *Handle) DebugURL() string { return h.devtools }

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// MarkLeased flips the handle to busy. Called by the pool on lease.
func (h *Handle) MarkLeased() { h.transition(StatusBusy) }

// MarkIdle flips the handle back to ready. Called by the pool after a
// clean release.
func (h *Handle) MarkIdle() { h.transition(StatusReady) }

func (h *Handle) transition(s Status) {
	h.mu.Lock()
	if h.status != StatusTerminated && h.status != StatusUnhealthy {
		h.status = s
	}
	h.mu.Unlock()
}

// Alive reports whether the browser process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// watch reaps the process and flips the handle unhealthy if the exit
// was not a deliberate Terminate.
func (h *Handle) watch() {
	err := h.cmd.Wait()
	h.exitErr = err
	close(h.exited)

	h.mu.Lock()
	crashed := h.status != StatusTerminated
	if crashed {
		h.status = StatusUnhealthy
	}
	h.mu.Unlock()

	if crashed {
		h.logger.Warn("Browser process exited unexpectedly",
			zap.String("session_id", h.id.String()),
			zap.Error(err),
		)
	}
}

// Reset navigates back to a blank page so the next lease starts clean.
func (h *Handle) Reset(ctx context.Context) error {
	if !h.Alive() {
		return fmt.Errorf("%w: process exited", task.ErrCrashed)
	}
	return h.navigate(ctx, "about:blank")
}

// Terminate tears the handle down: devtools connection, process, and
// profile directory. Safe to call multiple times and from any state.
func (h *Handle) Terminate() {
	h.termOnce.Do(func() {
		h.setStatus(StatusTerminated)
		if h.conn != nil {
			h.conn.Close()
		}
		if h.cmd != nil && h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		select {
		case <-h.exited:
		case <-time.After(killWait):
			h.logger.Warn("Browser process did not exit after kill",
				zap.String("session_id", h.id.String()),
			)
		}
		if h.userDir != "" {
			os.RemoveAll(h.userDir)
		}
		h.logger.Debug("Browser session terminated",
			zap.String("session_id", h.id.String()),
		)
	})
}

// channelErr classifies devtools transport failures. A dead process or
// a closing connection means the browser is gone; anything else (most
// often a context deadline) passes through for the executor to map.
func (h *Handle) channelErr(err error) error {
	if err == nil {
		return nil
	}
	if !h.Alive() || errors.Is(err, rpcc.ErrConnClosing) {
		return fmt.Errorf("%w: %v", task.ErrCrashed, err)
	}
	return err
}
