package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/crawler"
	"github.com/autoria-tools/crawler/internal/scheduler"
)

var (
	cfgFile   string
	crawlTime string
	crawlNow  bool
	backupNow bool
)

// newRootCmd builds the root command. Running it with no subcommand starts
// the daemon: a scheduler that fires the crawl and backup jobs at their
// configured daily times.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autoria-crawler",
		Short: "Collects used-car listings from auto.ria.com into Postgres",
		Long: `autoria-crawler walks the auto.ria.com used-car search results,
extracts each listing (including the click-to-reveal phone number) with a
headless browser, and upserts the records into Postgres keyed by listing URL.
Run without a subcommand it stays resident and repeats the crawl and the
table backup once a day.`,
		SilenceUsage: true,
		RunE:         runDaemon,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env only)")
	cmd.Flags().StringVar(&crawlTime, "crawl-time", "", "override the daily crawl time (HH:MM)")
	cmd.Flags().BoolVar(&crawlNow, "crawl-now", false, "run a crawl immediately on startup")
	cmd.Flags().BoolVar(&backupNow, "backup-now", false, "run a backup immediately on startup")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newBackupCmd())

	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	crawlAtValue := a.cfg.Schedule.CrawlTime
	if crawlTime != "" {
		crawlAtValue = crawlTime
	}
	crawlAt, err := scheduler.ParseTimeOfDay(crawlAtValue)
	if err != nil {
		return fmt.Errorf("crawl time: %w", err)
	}
	backupAt, err := scheduler.ParseTimeOfDay(a.cfg.Schedule.BackupTime)
	if err != nil {
		return fmt.Errorf("backup time: %w", err)
	}

	if a.cfg.Metrics.Addr != "" {
		startMetricsServer(ctx, a.cfg.Metrics.Addr, a.logger)
	}

	sched := scheduler.New(a.clock, a.logger, crawlAt, backupAt, a.runCrawl, a.runBackup)
	if crawlNow {
		sched.TriggerCrawl()
	}
	if backupNow {
		sched.TriggerBackup()
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", crawler.MetricsHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// Execute runs the CLI and reports whether it failed.
func Execute() error {
	return newRootCmd().Execute()
}
