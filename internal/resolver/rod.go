package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/iconidentify/xstash/internal/config"
	"github.com/iconidentify/xstash/internal/domain"
)

const snapshotScript = `() => {
  const onHost = (src) => src && src.indexOf('pbs.twimg.com/media/') >= 0;
  const images = Array.from(document.querySelectorAll('img, source'))
    .map((el) => el.src || el.srcset || '')
    .filter(onHost);
  const link = document.querySelector('link[rel=canonical]');
  const og = document.querySelector('meta[property="og:url"]');
  return JSON.stringify({
    images: Array.from(new Set(images)),
    canonical: (link && link.href) ? link.href : '',
    ogUrl: (og && og.content) ? og.content : '',
    locationUrl: window.location.href || ''
  });
}`

// RodBrowser is a Browser backed by a lazily launched headless Chromium.
// One browser process is shared; every Open gets its own page. The launch
// runs in the background so callers stop waiting when their context ends.
type RodBrowser struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
	start  func(ctx context.Context) (*rod.Browser, func(), error)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	pending *launch
	browser *rod.Browser
	cleanup func()
}

// launch is one browser start attempt. Its fields are set before done closes.
type launch struct {
	done    chan struct{}
	browser *rod.Browser
	err     error
}

// NewRodBrowser creates a browser adapter. Chromium starts on first use or
// on Warm.
func NewRodBrowser(cfg config.BrowserConfig, logger *slog.Logger) *RodBrowser {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &RodBrowser{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	b.start = b.launchChromium
	return b
}

func (b *RodBrowser) launchChromium(ctx context.Context) (*rod.Browser, func(), error) {
	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("blink-settings", "imagesEnabled=false")
	if b.cfg.Bin != "" {
		l = l.Bin(b.cfg.Bin)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	b.logger.Info("headless browser started", "control_url", controlURL)
	return browser, l.Cleanup, nil
}

// Warm starts Chromium if it is not running yet and waits for it until ctx
// ends. The launch itself is not bound to ctx.
func (b *RodBrowser) Warm(ctx context.Context) error {
	_, err := b.connect(ctx)
	return err
}

func (b *RodBrowser) connect(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	if b.browser != nil {
		browser := b.browser
		b.mu.Unlock()
		return browser, nil
	}
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return nil, domain.ErrBrowserUnavailable
	}
	l := b.pending
	if l == nil {
		l = &launch{done: make(chan struct{})}
		b.pending = l
		go b.run(l)
	}
	b.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for launch: %w", domain.ErrBrowserUnavailable, ctx.Err())
	}
	if l.err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBrowserUnavailable, l.err)
	}
	return l.browser, nil
}

func (b *RodBrowser) run(l *launch) {
	browser, cleanup, err := b.start(b.ctx)

	b.mu.Lock()
	switch {
	case err != nil:
		l.err = err
		b.logger.Warn("headless browser launch failed", "error", err)
	case b.ctx.Err() != nil:
		l.err = b.ctx.Err()
		browser.Close()
		if cleanup != nil {
			cleanup()
		}
	default:
		l.browser = browser
		b.browser = browser
		b.cleanup = cleanup
	}
	b.pending = nil
	b.mu.Unlock()

	close(l.done)
}

// Open implements Browser. Navigation and load are bounded by the configured
// browser timeout as well as ctx.
func (b *RodBrowser) Open(ctx context.Context, url string) (Page, error) {
	browser, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(b.ctx)

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: b.cfg.UserAgent,
		}); err != nil {
			b.logger.Debug("set user agent failed", "error", err)
		}
	}

	loadCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}
	if err := page.Context(loadCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("wait load: %w", err)
	}

	return &rodPage{page: page}, nil
}

// Close shuts the browser process down. Later Opens fail, and a launch still
// in progress is torn down when it finishes.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancel()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.cleanup != nil {
		b.cleanup()
		b.cleanup = nil
	}
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Snapshot(ctx context.Context) (Snapshot, error) {
	obj, err := p.page.Context(ctx).Eval(snapshotScript)
	if err != nil {
		return Snapshot{}, fmt.Errorf("eval snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(obj.Value.Str()), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
