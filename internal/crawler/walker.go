package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// WalkerConfig controls one pagination walk.
type WalkerConfig struct {
	StartURL string
	// MaxPages caps the walk; zero means walk to the natural end.
	MaxPages int
}

// Walker drives the fetch-extract-persist pipeline across the paginated
// result set. Pages are visited in ascending order; listings within a page
// are processed in extraction order, one at a time.
type Walker struct {
	cfg       WalkerConfig
	fetcher   Fetcher
	browser   Browser
	extractor *Extractor
	store     Store
	retry     RetryPolicy
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewWalker constructs a Walker.
func NewWalker(
	cfg WalkerConfig,
	fetcher Fetcher,
	browser Browser,
	extractor *Extractor,
	store Store,
	retry RetryPolicy,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Walker {
	return &Walker{
		cfg:       cfg,
		fetcher:   fetcher,
		browser:   browser,
		extractor: extractor,
		store:     store,
		retry:     retry,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Walk runs one full traversal. The returned Report is populated even when
// the walk aborts; the error is non-nil only for the Aborted state.
func (w *Walker) Walk(ctx context.Context) (Report, error) {
	runID, err := w.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("new run id: %w", err)
	}
	report := Report{RunID: runID, StartedAt: w.clock.Now()}
	logger := w.logger.With(zap.String("run_id", runID))
	logger.Info("crawl run starting", zap.String("start_url", w.cfg.StartURL))

	walkErr := w.walkPages(ctx, logger, &report)
	if walkErr != nil {
		report.State = WalkAborted
	} else {
		report.State = WalkDone
	}
	report.FinishedAt = w.clock.Now()
	ObserveCrawlDuration(report.FinishedAt.Sub(report.StartedAt))

	logger.Info("crawl run finished",
		zap.String("state", string(report.State)),
		zap.Int("pages", report.Pages),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, walkErr
}

func (w *Walker) walkPages(ctx context.Context, logger *zap.Logger, report *Report) error {
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		if w.cfg.MaxPages > 0 && page > w.cfg.MaxPages {
			logger.Info("page cap reached", zap.Int("max_pages", w.cfg.MaxPages))
			return nil
		}

		pageURL, err := PageURL(w.cfg.StartURL, page)
		if err != nil {
			return fmt.Errorf("build page url: %w", err)
		}

		fetched, err := w.fetchWithRetry(ctx, pageURL)
		if err != nil {
			ObservePage("failed")
			logger.Error("search page fetch failed",
				zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
			return fmt.Errorf("fetch search page %d: %w", page, err)
		}

		links, err := w.extractor.ListingLinks(fetched)
		if err != nil {
			ObservePage("failed")
			return fmt.Errorf("extract links on page %d: %w", page, err)
		}
		if len(links) == 0 {
			ObservePage("empty")
			logger.Info("empty search page, walk complete", zap.Int("page", page))
			return nil
		}
		ObservePage("ok")
		report.Pages++
		logger.Info("processing search page",
			zap.Int("page", page), zap.Int("listings", len(links)))

		for _, link := range links {
			if ctx.Err() != nil {
				return fmt.Errorf("walk canceled: %w", ctx.Err())
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}

			outcome, err := w.processListing(ctx, link)
			if err != nil {
				var perr *PersistenceError
				if errors.As(err, &perr) && perr.Kind == ConnectionLost {
					return fmt.Errorf("persist %s: %w", link, err)
				}
				report.Skipped++
				ObserveListing("skipped")
				logger.Warn("listing skipped",
					zap.String("url", link), zap.Error(err))
				continue
			}
			switch outcome {
			case UpsertInserted:
				report.Inserted++
			case UpsertUpdated:
				report.Updated++
			}
			ObserveListing(string(outcome))
		}
	}
}

func (w *Walker) fetchWithRetry(ctx context.Context, pageURL string) (Page, error) {
	var fetched Page
	attempt := 0
	err := w.retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			ObserveRetry()
		}
		page, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return err
		}
		fetched = page
		return nil
	})
	return fetched, err
}

func (w *Walker) processListing(ctx context.Context, link string) (UpsertOutcome, error) {
	var sess Session
	attempt := 0
	err := w.retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			ObserveRetry()
		}
		opened, err := w.browser.Open(ctx, link)
		if err != nil {
			return err
		}
		sess = opened
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("open listing: %w", err)
	}
	defer sess.Close()

	listing, err := w.extractor.ExtractListing(ctx, link, sess)
	if err != nil {
		return "", err
	}
	return w.store.Upsert(ctx, listing)
}

// PageURL builds the URL of the nth search-results page (1-based). Page 1
// is the start URL itself; later pages carry a page query parameter,
// replacing any that was already present.
func PageURL(startURL string, page int) (string, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse start url: %w", err)
	}
	q := u.Query()
	q.Del("page")
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
