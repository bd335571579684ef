// Package static implements crawler.Fetcher using the Colly collector.
// Search-results pages render server-side, so no JavaScript pass is needed.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/autoria-tools/crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches single documents over plain HTTP.
type Fetcher struct {
	cfg           Config
	pacer         *crawler.Pacer
	baseCollector *colly.Collector
}

// New builds a Fetcher. The pacer is shared with the headless browser so
// the inter-request delay holds across both.
func New(cfg Config, pacer *crawler.Pacer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// Synchronous collection is colly's default; passing colly.Async(false)
	// would actually enable async mode on colly v2.1.0, whose Async option
	// ignores its argument.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	// The same search page is re-fetched on every daily run.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		pacer:         pacer,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Transport failures come back as
// FetchError{Network}; error statuses as FetchError{HTTPStatus}. Retrying
// is the caller's business.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx); err != nil {
			return crawler.Page{}, fmt.Errorf("pace fetch: %w", err)
		}
	}

	var (
		page   crawler.Page
		status int
	)
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		page = crawler.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	var visitErr error
	select {
	case <-ctx.Done():
		return crawler.Page{}, &crawler.FetchError{URL: url, Kind: crawler.FetchNetwork, Err: ctx.Err()}
	case visitErr = <-done:
	}
	if visitErr != nil {
		if status >= http.StatusBadRequest {
			return crawler.Page{}, &crawler.FetchError{
				URL:        url,
				Kind:       crawler.FetchHTTPStatus,
				StatusCode: status,
				Err:        visitErr,
			}
		}
		return crawler.Page{}, &crawler.FetchError{
			URL:  url,
			Kind: crawler.FetchNetwork,
			Err:  visitErr,
		}
	}
	return page, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
