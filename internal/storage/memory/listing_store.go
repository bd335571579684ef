// Package memory provides an in-memory listing store for development and
// testing.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/autoria-tools/crawler/internal/crawler"
)

var errMissingURL = errors.New("listing url is required")

// ListingStore keeps listings in a map keyed by URL, preserving first-seen
// insertion order for FetchAll.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[string]crawler.Listing
	order    []string
}

// NewListingStore constructs an empty ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		listings: make(map[string]crawler.Listing),
	}
}

// Upsert stores the listing, replacing any existing row with the same URL.
func (s *ListingStore) Upsert(_ context.Context, listing crawler.Listing) (crawler.UpsertOutcome, error) {
	if listing.URL == "" {
		return "", &crawler.PersistenceError{
			Kind: crawler.ConstraintViolation,
			Err:  errMissingURL,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.listings[listing.URL]
	s.listings[listing.URL] = listing
	if exists {
		return crawler.UpsertUpdated, nil
	}
	s.order = append(s.order, listing.URL)
	return crawler.UpsertInserted, nil
}

// FetchAll returns every stored listing in first-seen order.
func (s *ListingStore) FetchAll(_ context.Context) ([]crawler.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Listing, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.listings[url])
	}
	return out, nil
}

// CountAll returns the number of stored listings.
func (s *ListingStore) CountAll(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.listings)), nil
}
