// Package postgres provides the Postgres-backed listing store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoria-tools/crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ListingStore persists listings keyed by their page URL.
type ListingStore struct {
	pool querier
}

// NewListingStore connects a pool using the provided config.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: pool}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewListingStoreWithPool(pool querier) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS cars (
	id                BIGSERIAL PRIMARY KEY,
	url               TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL,
	price_usd         DOUBLE PRECISION,
	odometer_km       BIGINT,
	seller_name       TEXT,
	phone_number      TEXT,
	primary_image_url TEXT,
	image_count       INTEGER NOT NULL DEFAULT 0,
	plate_number      TEXT,
	vin               TEXT,
	collected_at      TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the cars table when it does not exist yet.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return mapPgError("ensure schema", err)
	}
	return nil
}

const upsertQuery = `
INSERT INTO cars (
	url, title, price_usd, odometer_km, seller_name, phone_number,
	primary_image_url, image_count, plate_number, vin, collected_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (url) DO UPDATE SET
	title             = EXCLUDED.title,
	price_usd         = EXCLUDED.price_usd,
	odometer_km       = EXCLUDED.odometer_km,
	seller_name       = EXCLUDED.seller_name,
	phone_number      = EXCLUDED.phone_number,
	primary_image_url = EXCLUDED.primary_image_url,
	image_count       = EXCLUDED.image_count,
	plate_number      = EXCLUDED.plate_number,
	vin               = EXCLUDED.vin,
	collected_at      = EXCLUDED.collected_at
RETURNING (xmax = 0)`

// Upsert writes a listing, updating the existing row when the URL is
// already present. The xmax trick distinguishes a fresh insert from an
// update on the same round trip.
func (s *ListingStore) Upsert(ctx context.Context, listing crawler.Listing) (crawler.UpsertOutcome, error) {
	if listing.URL == "" {
		return "", &crawler.PersistenceError{
			Kind: crawler.ConstraintViolation,
			Err:  fmt.Errorf("listing url is required"),
		}
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, upsertQuery,
		listing.URL,
		listing.Title,
		listing.PriceUSD,
		listing.OdometerKM,
		listing.SellerName,
		listing.PhoneNumber,
		listing.PrimaryImageURL,
		listing.ImageCount,
		listing.PlateNumber,
		listing.VIN,
		listing.CollectedAt,
	).Scan(&inserted)
	if err != nil {
		return "", mapPgError("upsert listing", err)
	}
	if inserted {
		return crawler.UpsertInserted, nil
	}
	return crawler.UpsertUpdated, nil
}

const fetchAllQuery = `
SELECT
	url, title, price_usd, odometer_km, seller_name, phone_number,
	primary_image_url, image_count, plate_number, vin, collected_at
FROM cars
ORDER BY id`

// FetchAll returns every stored listing in insertion order.
func (s *ListingStore) FetchAll(ctx context.Context) ([]crawler.Listing, error) {
	rows, err := s.pool.Query(ctx, fetchAllQuery)
	if err != nil {
		return nil, mapPgError("fetch listings", err)
	}
	defer rows.Close()

	var listings []crawler.Listing
	for rows.Next() {
		var (
			listing  crawler.Listing
			price    sql.NullFloat64
			odometer sql.NullInt64
			seller   sql.NullString
			phone    sql.NullString
			image    sql.NullString
			plate    sql.NullString
			vin      sql.NullString
		)
		err := rows.Scan(
			&listing.URL,
			&listing.Title,
			&price,
			&odometer,
			&seller,
			&phone,
			&image,
			&listing.ImageCount,
			&plate,
			&vin,
			&listing.CollectedAt,
		)
		if err != nil {
			return nil, mapPgError("scan listing", err)
		}
		if price.Valid {
			listing.PriceUSD = &price.Float64
		}
		if odometer.Valid {
			listing.OdometerKM = &odometer.Int64
		}
		if seller.Valid {
			listing.SellerName = &seller.String
		}
		if phone.Valid {
			listing.PhoneNumber = &phone.String
		}
		if image.Valid {
			listing.PrimaryImageURL = &image.String
		}
		if plate.Valid {
			listing.PlateNumber = &plate.String
		}
		if vin.Valid {
			listing.VIN = &vin.String
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("iterate listings", err)
	}
	return listings, nil
}

// CountAll returns the number of stored listings.
func (s *ListingStore) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cars`).Scan(&count); err != nil {
		return 0, mapPgError("count listings", err)
	}
	return count, nil
}

// mapPgError folds driver errors into the persistence taxonomy. Unique
// violations become ConstraintViolation; connection-class failures become
// ConnectionLost, which aborts the walk upstream.
func mapPgError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return &crawler.PersistenceError{Kind: crawler.ConstraintViolation, Err: wrapped}
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return &crawler.PersistenceError{Kind: crawler.ConnectionLost, Err: wrapped}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &crawler.PersistenceError{Kind: crawler.ConnectionLost, Err: wrapped}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &crawler.PersistenceError{Kind: crawler.ConnectionLost, Err: wrapped}
	}

	return wrapped
}
