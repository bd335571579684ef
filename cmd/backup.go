package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newBackupCmd builds the one-shot backup subcommand.
func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Dump the listing table to timestamped files and exit",
		RunE:  runBackupCommand,
	}
}

func runBackupCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	return a.runBackup(ctx)
}
