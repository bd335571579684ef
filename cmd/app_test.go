package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/config"
	"github.com/autoria-tools/crawler/internal/export"
	"github.com/autoria-tools/crawler/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newBackupApp(t *testing.T, dir string) *app {
	t.Helper()
	clock := fixedClock{now: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)}
	exporter, err := export.New(memory.NewListingStore(), clock, dir, zap.NewNop())
	require.NoError(t, err)

	var cfg config.Config
	cfg.Backup.JSON = true
	cfg.Backup.CSV = true
	return &app{cfg: cfg, logger: zap.NewNop(), exporter: exporter}
}

func TestRunBackupSurvivesPartialFormatFailure(t *testing.T) {
	dir := t.TempDir()
	a := newBackupApp(t, dir)

	// Occupy the CSV target with a directory so that format alone fails.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cars_20240601_230000.csv"), 0o750))

	require.NoError(t, a.runBackup(context.Background()))

	_, err := os.Stat(filepath.Join(dir, "cars_20240601_230000.json"))
	require.NoError(t, err, "the surviving format must still be written")
}

func TestRunBackupFailsWhenEveryFormatFails(t *testing.T) {
	dir := t.TempDir()
	a := newBackupApp(t, dir)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "cars_20240601_230000.json"), 0o750))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cars_20240601_230000.csv"), 0o750))

	require.Error(t, a.runBackup(context.Background()))
}
