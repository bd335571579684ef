// Package cmd defines the CLI commands for the autoria-crawler executable.
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/clock/system"
	"github.com/autoria-tools/crawler/internal/config"
	"github.com/autoria-tools/crawler/internal/crawler"
	"github.com/autoria-tools/crawler/internal/export"
	"github.com/autoria-tools/crawler/internal/fetcher/headless"
	"github.com/autoria-tools/crawler/internal/fetcher/static"
	"github.com/autoria-tools/crawler/internal/id/uuid"
	"github.com/autoria-tools/crawler/internal/logging"
	"github.com/autoria-tools/crawler/internal/storage/postgres"
)

// app bundles the long-lived services the commands share. The headless
// browser is started lazily so backup-only invocations never launch Chrome.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    *system.Clock
	store    *postgres.ListingStore
	pacer    *crawler.Pacer
	exporter *export.Exporter
	browser  *headless.Browser
}

// newApp builds everything except the browser and verifies the database is
// reachable by ensuring the schema.
var newApp = func(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	crawler.InitMetrics()

	store, err := postgres.NewListingStore(ctx, postgres.Config{DSN: cfg.DB.DSN()})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	clock := system.New()

	exporter, err := export.New(store, clock, cfg.Backup.Dir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init exporter: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		store:    store,
		pacer:    crawler.NewPacer(cfg.Crawler.RequestDelay()),
		exporter: exporter,
	}, nil
}

func (a *app) close() {
	if a.browser != nil {
		a.browser.Close()
	}
	a.store.Close()
	_ = a.logger.Sync()
}

// walker assembles the crawl pipeline, starting the browser on first use.
func (a *app) walker() (*crawler.Walker, error) {
	if a.browser == nil {
		browser, err := headless.New(headless.Config{
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout(),
		}, a.pacer, a.logger)
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		a.browser = browser
	}

	fetcher := static.New(static.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.Crawler.RequestTimeout(),
	}, a.pacer)

	extractor := crawler.NewExtractor(crawler.ExtractorConfig{
		RevealTimeout: a.cfg.Headless.RevealTimeout(),
	}, a.clock, a.logger)

	return crawler.NewWalker(
		crawler.WalkerConfig{
			StartURL: a.cfg.Crawler.StartURL,
			MaxPages: a.cfg.Crawler.MaxPages,
		},
		fetcher,
		a.browser,
		extractor,
		a.store,
		crawler.NewRetryPolicy(a.cfg.Crawler.RetryAttempts, a.cfg.Crawler.RetryDelay()),
		a.clock,
		uuid.New(),
		a.logger,
	), nil
}

// runCrawl executes one full walk.
func (a *app) runCrawl(ctx context.Context) error {
	w, err := a.walker()
	if err != nil {
		return err
	}
	report, err := w.Walk(ctx)
	if err != nil {
		return fmt.Errorf("crawl run %s aborted: %w", report.RunID, err)
	}
	return nil
}

// runBackup dumps the table in the configured formats. A failed format is
// logged; the job only fails when nothing was written at all.
func (a *app) runBackup(ctx context.Context) error {
	written, err := a.exporter.Export(ctx, exportFormats(a.cfg.Backup))
	if err != nil {
		if len(written) == 0 {
			return fmt.Errorf("backup: %w", err)
		}
		a.logger.Warn("backup finished with failed formats",
			zap.Strings("written", written), zap.Error(err))
	}
	return nil
}

func exportFormats(cfg config.BackupConfig) []export.Format {
	var formats []export.Format
	if cfg.JSON {
		formats = append(formats, export.FormatJSON)
	}
	if cfg.CSV {
		formats = append(formats, export.FormatCSV)
	}
	return formats
}
