package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

var (
	// ErrStartupTimeout marks a browser that did not expose a working
	// devtools endpoint within the startup budget.
	ErrStartupTimeout = errors.New("browser startup timed out")

	// ErrNoBinary marks a host with no usable Chrome or Chromium.
	ErrNoBinary = errors.New("no chrome or chromium binary found")
)

// Binaries probed in PATH order when BROWSER_BINARY is unset.
var binaryCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

const (
	probeInterval = 150 * time.Millisecond
	portSpan      = 512
)

// Launcher spawns isolated headless browser processes and attaches a
// devtools client to each. One launcher serves the whole pool; binary
// discovery happens once at construction so a missing install fails the
// boot, not the first request.
type Launcher struct {
	cfg     config.BrowserConfig
	logger  *logging.Logger
	binary  string
	portSeq atomic.Int64
}

// NewLauncher resolves the browser binary and prepares the launcher.
func NewLauncher(cfg config.BrowserConfig, logger *logging.Logger) (*Launcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	binary := cfg.Binary
	if binary == "" {
		found, err := discoverBinary()
		if err != nil {
			return nil, err
		}
		binary = found
	} else if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBinary, binary)
	}

	logger.Info("Browser binary resolved", zap.String("binary", binary))
	return &Launcher{cfg: cfg, logger: logger, binary: binary}, nil
}

func discoverBinary() (string, error) {
	for _, name := range binaryCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoBinary
}

// Start launches one browser process, waits for its devtools endpoint,
// and returns a ready handle. The whole sequence is bounded by the
// configured startup timeout; on any failure the process is reaped and
// its profile directory removed.
func (l *Launcher) Start(ctx context.Context) (*Handle, error) {
	sid := id.NewSessionID()
	port := l.allocPort()

	profileDir, err := os.MkdirTemp("", "browser-profile-")
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	cmd := exec.Command(l.binary, l.args(port, profileDir)...)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	h := &Handle{
		id:       sid,
		cmd:      cmd,
		userDir:  profileDir,
		devtools: "http://127.0.0.1:" + strconv.Itoa(port),
		logger:   l.logger,
		status:   StatusStarting,
		exited:   make(chan struct{}),
	}
	go h.watch()

	startupCtx, cancel := context.WithTimeout(ctx, l.cfg.StartupTimeout)
	defer cancel()

	if err := l.attach(startupCtx, h); err != nil {
		h.Terminate()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrStartupTimeout, err)
		}
		return nil, err
	}

	h.setStatus(StatusReady)
	l.logger.Info("Browser session started",
		zap.String("session_id", sid.String()),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("devtools_port", port),
	)
	return h, nil
}

// attach polls the devtools HTTP endpoint until the browser answers,
// then dials the page target over its websocket.
func (l *Launcher) attach(ctx context.Context, h *Handle) error {
	devt := devtool.New(h.devtools)

	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		if _, err := devt.Version(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.exited:
			return fmt.Errorf("%w: process exited during startup", task.ErrCrashed)
		case <-ticker.C:
		}
	}

	target, err := devt.Get(ctx, devtool.Page)
	if err != nil {
		target, err = devt.Create(ctx)
		if err != nil {
			return fmt.Errorf("create page target: %w", err)
		}
	}

	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial devtools: %w", err)
	}

	client := cdp.NewClient(conn)
	if err := client.Page.Enable(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("enable page events: %w", err)
	}

	h.conn = conn
	h.client = client
	return nil
}

// args assembles the launch flags. Isolation comes from the per-handle
// profile directory and debugging port; everything else mirrors a
// conventional headless scraping setup.
func (l *Launcher) args(port int, profileDir string) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + profileDir,
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--window-size=1920,1080",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if l.cfg.Headless {
		args = append(args, "--headless")
	}
	if l.cfg.UserAgent != "" {
		args = append(args, "--user-agent="+l.cfg.UserAgent)
	}
	args = append(args, l.cfg.ExtraArgs...)
	return append(args, "about:blank")
}

// allocPort hands out debugging ports round-robin above the base so
// overlapping restarts do not collide.
func (l *Launcher) allocPort() int {
	n := l.portSeq.Add(1)
	return l.cfg.DebugPortBase + int(n%portSpan)
}
