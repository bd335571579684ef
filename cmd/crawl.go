package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newCrawlCmd builds the one-shot crawl subcommand. A run that aborts exits
// non-zero so cron-style wrappers can tell a partial walk from a clean one.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run a single crawl and exit",
		Long: `Walks the search results once, extracting and persisting every
listing, then exits. Interrupting with SIGINT or SIGTERM stops the walk at
the next listing boundary.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.runCrawl(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}
