// Package export writes point-in-time dumps of the listing table to disk.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/crawler"
)

// Format names a dump encoding.
type Format string

// Supported dump formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

const timestampLayout = "20060102_150405"

// Exporter dumps the full listing table into timestamped flat files.
type Exporter struct {
	store  crawler.Store
	clock  crawler.Clock
	dir    string
	logger *zap.Logger
}

// New returns an Exporter rooted at dir, creating it when missing.
func New(store crawler.Store, clock crawler.Clock, dir string, logger *zap.Logger) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", dir, err)
	}
	return &Exporter{store: store, clock: clock, dir: dir, logger: logger}, nil
}

// Export reads the whole table once and writes one file per requested
// format, all sharing the same timestamp. A failed format does not stop
// the others; the paths of the files that were written come back alongside
// the joined errors.
func (e *Exporter) Export(ctx context.Context, formats []Format) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}

	listings, err := e.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listings for export: %w", err)
	}

	stamp := e.clock.Now().Format(timestampLayout)
	var (
		written []string
		errs    []error
	)
	for _, format := range formats {
		path := filepath.Join(e.dir, fmt.Sprintf("cars_%s.%s", stamp, format))
		var writeErr error
		switch format {
		case FormatJSON:
			writeErr = writeJSON(path, listings)
		case FormatCSV:
			writeErr = writeCSV(path, listings)
		default:
			writeErr = fmt.Errorf("unknown format %q", format)
		}
		if writeErr != nil {
			crawler.ObserveExport(string(format), "failed")
			e.logger.Error("export failed",
				zap.String("format", string(format)), zap.Error(writeErr))
			errs = append(errs, &crawler.ExportError{Format: string(format), Err: writeErr})
			continue
		}
		crawler.ObserveExport(string(format), "ok")
		e.logger.Info("export written",
			zap.String("format", string(format)),
			zap.String("path", path),
			zap.Int("listings", len(listings)))
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

func writeJSON(path string, listings []crawler.Listing) error {
	if listings == nil {
		listings = []crawler.Listing{}
	}
	payload, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal listings: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var csvHeader = []string{
	"url", "title", "price_usd", "odometer_km", "seller_name",
	"phone_number", "primary_image_url", "image_count", "plate_number",
	"vin", "collected_at",
}

func writeCSV(path string, listings []crawler.Listing) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, listing := range listings {
		record := []string{
			listing.URL,
			listing.Title,
			floatField(listing.PriceUSD),
			intField(listing.OdometerKM),
			stringField(listing.SellerName),
			stringField(listing.PhoneNumber),
			stringField(listing.PrimaryImageURL),
			strconv.Itoa(listing.ImageCount),
			stringField(listing.PlateNumber),
			stringField(listing.VIN),
			listing.CollectedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Absent fields render as empty cells, never as zero values.
func stringField(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatField(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func intField(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}
