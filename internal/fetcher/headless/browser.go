// Package headless drives listing pages through headless Chrome. The phone
// reveal needs a live DOM, so each listing gets its own tab that stays open
// until extraction is done.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/crawler"
)

// Config controls browser startup and navigation.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Browser implements crawler.Browser on top of a shared Chrome process.
// Open spawns a tab per listing; tabs are cheap, the process is not.
type Browser struct {
	cfg             Config
	pacer           *crawler.Pacer
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

// New launches headless Chrome and warms up the browser context so the
// first Open does not pay the startup cost.
func New(cfg Config, pacer *crawler.Pacer, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		cfg:             cfg,
		pacer:           pacer,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocatorCancel()
}

// Open navigates a fresh tab to the URL and hands back a live session.
// Navigation failures come back as FetchError{Network}; error statuses as
// FetchError{HTTPStatus}. On error the tab is already closed.
func (b *Browser) Open(ctx context.Context, url string) (crawler.Session, error) {
	if b.pacer != nil {
		if err := b.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pace open: %w", err)
		}
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	stopForward := forwardCancel(ctx, cancelTab)

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancelNav()

	tasks := chromedp.Tasks{
		network.Enable(),
		b.userAgentAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		stopForward()
		cancelTab()
		b.logger.Warn("listing navigation failed",
			zap.String("url", url), zap.Error(err))
		return nil, &crawler.FetchError{URL: url, Kind: crawler.FetchNetwork, Err: err}
	}

	if status := meta.status(); status >= http.StatusBadRequest {
		stopForward()
		cancelTab()
		b.logger.Warn("listing page returned error status",
			zap.String("url", url), zap.Int("status", status))
		return nil, &crawler.FetchError{
			URL:        url,
			Kind:       crawler.FetchHTTPStatus,
			StatusCode: status,
			Err:        fmt.Errorf("listing page returned %d", status),
		}
	}

	return &session{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		stopForward: stopForward,
	}, nil
}

func (b *Browser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// session is one open tab. All methods run against the tab context so the
// page state carries over between calls.
type session struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	stopForward func()
	closeOnce   sync.Once
}

func (s *session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("read dom: %w", err)
	}
	return html, nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// WaitVisible blocks until the selector matches a visible node or the
// timeout elapses. Timeouts map to crawler.ErrWaitTimeout so callers can
// tell them from hard failures.
func (s *session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return crawler.ErrWaitTimeout
	}
	return fmt.Errorf("wait visible %q: %w", selector, err)
}

func (s *session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible))
	if err != nil {
		return "", fmt.Errorf("read text %q: %w", selector, err)
	}
	return text, nil
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.stopForward()
		s.cancelTab()
	})
}

// run executes actions against the tab while honoring the caller's context.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// responseMeta records the main document's status. Events arrive on the
// ListenTarget goroutine while status is read from Open, so the field is
// atomic; the first document response wins.
type responseMeta struct {
	code atomic.Int32
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.code.CompareAndSwap(0, int32(resp.Response.Status))
}

func (m *responseMeta) status() int {
	if code := m.code.Load(); code != 0 {
		return int(code)
	}
	return http.StatusOK
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
