package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	pages    map[string]Page
	failures map[string][]error
	calls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.calls = append(f.calls, url)
	if errs := f.failures[url]; len(errs) > 0 {
		err := errs[0]
		f.failures[url] = errs[1:]
		return Page{}, err
	}
	page, ok := f.pages[url]
	if !ok {
		return Page{}, &FetchError{URL: url, Kind: FetchHTTPStatus, StatusCode: 404}
	}
	return page, nil
}

type fakeBrowser struct {
	sessions map[string]*fakeSession
	openErr  map[string]error
}

func (b *fakeBrowser) Open(_ context.Context, url string) (Session, error) {
	if err := b.openErr[url]; err != nil {
		return nil, err
	}
	sess, ok := b.sessions[url]
	if !ok {
		return nil, &FetchError{URL: url, Kind: FetchHTTPStatus, StatusCode: 404}
	}
	return sess, nil
}

type fakeStore struct {
	upserts   []Listing
	seen      map[string]bool
	upsertErr map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool), upsertErr: make(map[string]error)}
}

func (s *fakeStore) Upsert(_ context.Context, listing Listing) (UpsertOutcome, error) {
	if err := s.upsertErr[listing.URL]; err != nil {
		return "", err
	}
	s.upserts = append(s.upserts, listing)
	if s.seen[listing.URL] {
		return UpsertUpdated, nil
	}
	s.seen[listing.URL] = true
	return UpsertInserted, nil
}

func (s *fakeStore) FetchAll(context.Context) ([]Listing, error) {
	return append([]Listing(nil), s.upserts...), nil
}

func (s *fakeStore) CountAll(context.Context) (int64, error) {
	return int64(len(s.seen)), nil
}

type fixedIDs struct{ id string }

func (g fixedIDs) NewID() (string, error) { return g.id, nil }

func searchPage(url string, hrefs ...string) Page {
	body := "<html><body>"
	for _, href := range hrefs {
		body += fmt.Sprintf(`<a class="m-link-ticket" href=%q>x</a>`, href)
	}
	body += "</body></html>"
	return Page{URL: url, StatusCode: 200, Body: []byte(body)}
}

func listingPage(title string) *fakeSession {
	return &fakeSession{html: fmt.Sprintf(
		`<html><body><h1 class="head">%s</h1></body></html>`, title)}
}

func newTestWalker(fetcher Fetcher, browser Browser, store Store) *Walker {
	clock := fixedClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	extractor := NewExtractor(ExtractorConfig{RevealTimeout: time.Millisecond}, clock, zap.NewNop())
	return NewWalker(
		WalkerConfig{StartURL: "https://auto.ria.com/uk/car/used"},
		fetcher,
		browser,
		extractor,
		store,
		NewRetryPolicy(2, 0),
		clock,
		fixedIDs{id: "run-1"},
		zap.NewNop(),
	)
}

func TestWalkVisitsPagesUntilEmpty(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]Page{
		"https://auto.ria.com/uk/car/used": searchPage(
			"https://auto.ria.com/uk/car/used",
			"/auto_one_1.html", "/auto_two_2.html"),
		"https://auto.ria.com/uk/car/used?page=2": searchPage(
			"https://auto.ria.com/uk/car/used?page=2",
			"/auto_three_3.html"),
		"https://auto.ria.com/uk/car/used?page=3": searchPage(
			"https://auto.ria.com/uk/car/used?page=3"),
	}}
	browser := &fakeBrowser{sessions: map[string]*fakeSession{
		"https://auto.ria.com/auto_one_1.html":   listingPage("One"),
		"https://auto.ria.com/auto_two_2.html":   listingPage("Two"),
		"https://auto.ria.com/auto_three_3.html": listingPage("Three"),
	}}
	store := newFakeStore()

	report, err := newTestWalker(fetcher, browser, store).Walk(context.Background())
	require.NoError(t, err)

	require.Equal(t, WalkDone, report.State)
	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, 2, report.Pages)
	require.Equal(t, 3, report.Inserted)
	require.Zero(t, report.Updated)
	require.Zero(t, report.Skipped)
	require.Len(t, store.upserts, 3)
	require.Equal(t, "One", store.upserts[0].Title)
	require.Equal(t, "Three", store.upserts[2].Title)
}

func TestWalkSkipsFailedListings(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]Page{
		"https://auto.ria.com/uk/car/used": searchPage(
			"https://auto.ria.com/uk/car/used",
			"/auto_bad_1.html", "/auto_good_2.html"),
		"https://auto.ria.com/uk/car/used?page=2": searchPage(
			"https://auto.ria.com/uk/car/used?page=2"),
	}}
	browser := &fakeBrowser{sessions: map[string]*fakeSession{
		// No title, extraction fails.
		"https://auto.ria.com/auto_bad_1.html":  {html: "<html><body></body></html>"},
		"https://auto.ria.com/auto_good_2.html": listingPage("Good"),
	}}
	store := newFakeStore()

	report, err := newTestWalker(fetcher, browser, store).Walk(context.Background())
	require.NoError(t, err)

	require.Equal(t, WalkDone, report.State)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Inserted)
	require.Len(t, store.upserts, 1)
	require.Equal(t, "Good", store.upserts[0].Title)
}

func TestWalkAbortsWhenDatabaseConnectionLost(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]Page{
		"https://auto.ria.com/uk/car/used": searchPage(
			"https://auto.ria.com/uk/car/used",
			"/auto_one_1.html", "/auto_two_2.html"),
	}}
	browser := &fakeBrowser{sessions: map[string]*fakeSession{
		"https://auto.ria.com/auto_one_1.html": listingPage("One"),
		"https://auto.ria.com/auto_two_2.html": listingPage("Two"),
	}}
	store := newFakeStore()
	store.upsertErr["https://auto.ria.com/auto_one_1.html"] = &PersistenceError{
		Kind: ConnectionLost,
		Err:  errors.New("server closed the connection"),
	}

	report, err := newTestWalker(fetcher, browser, store).Walk(context.Background())
	require.Error(t, err)
	require.Equal(t, WalkAborted, report.State)
	// The failure stops the walk before the second listing is touched.
	require.Empty(t, store.upserts)
}

func TestWalkDeduplicatesAcrossPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]Page{
		"https://auto.ria.com/uk/car/used": searchPage(
			"https://auto.ria.com/uk/car/used",
			"/auto_one_1.html"),
		"https://auto.ria.com/uk/car/used?page=2": searchPage(
			"https://auto.ria.com/uk/car/used?page=2",
			"/auto_one_1.html"),
		"https://auto.ria.com/uk/car/used?page=3": searchPage(
			"https://auto.ria.com/uk/car/used?page=3"),
	}}
	browser := &fakeBrowser{sessions: map[string]*fakeSession{
		"https://auto.ria.com/auto_one_1.html": listingPage("One"),
	}}
	store := newFakeStore()

	report, err := newTestWalker(fetcher, browser, store).Walk(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Inserted)
	require.Len(t, store.upserts, 1)
}

func TestWalkRetriesTransientPageFetch(t *testing.T) {
	start := "https://auto.ria.com/uk/car/used"
	fetcher := &fakeFetcher{
		pages: map[string]Page{
			start: searchPage(start),
		},
		failures: map[string][]error{
			start: {&FetchError{URL: start, Kind: FetchNetwork, Err: errors.New("reset")}},
		},
	}
	store := newFakeStore()

	report, err := newTestWalker(fetcher, &fakeBrowser{}, store).Walk(context.Background())
	require.NoError(t, err)
	require.Equal(t, WalkDone, report.State)
	require.Equal(t, []string{start, start}, fetcher.calls)
}

func TestWalkAbortsWhenSearchPageRetriesExhausted(t *testing.T) {
	start := "https://auto.ria.com/uk/car/used"
	// More transient failures than the two attempts the policy allows.
	fetcher := &fakeFetcher{
		failures: map[string][]error{
			start: {
				&FetchError{URL: start, Kind: FetchNetwork, Err: errors.New("reset")},
				&FetchError{URL: start, Kind: FetchHTTPStatus, StatusCode: 503, Err: errors.New("unavailable")},
			},
		},
	}
	store := newFakeStore()

	report, err := newTestWalker(fetcher, &fakeBrowser{}, store).Walk(context.Background())
	require.Error(t, err)
	require.Equal(t, WalkAborted, report.State)
	require.Equal(t, []string{start, start}, fetcher.calls)
	require.Empty(t, store.upserts)
}

func TestWalkRespectsMaxPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]Page{
		"https://auto.ria.com/uk/car/used": searchPage(
			"https://auto.ria.com/uk/car/used",
			"/auto_one_1.html"),
	}}
	browser := &fakeBrowser{sessions: map[string]*fakeSession{
		"https://auto.ria.com/auto_one_1.html": listingPage("One"),
	}}
	store := newFakeStore()

	clock := fixedClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	extractor := NewExtractor(ExtractorConfig{RevealTimeout: time.Millisecond}, clock, zap.NewNop())
	walker := NewWalker(
		WalkerConfig{StartURL: "https://auto.ria.com/uk/car/used", MaxPages: 1},
		fetcher, browser, extractor, store,
		NewRetryPolicy(1, 0), clock, fixedIDs{id: "run-1"}, zap.NewNop(),
	)

	report, err := walker.Walk(context.Background())
	require.NoError(t, err)
	require.Equal(t, WalkDone, report.State)
	require.Equal(t, 1, report.Pages)
	require.Equal(t, 1, report.Inserted)
}

func TestPageURL(t *testing.T) {
	first, err := PageURL("https://auto.ria.com/uk/car/used", 1)
	require.NoError(t, err)
	require.Equal(t, "https://auto.ria.com/uk/car/used", first)

	second, err := PageURL("https://auto.ria.com/uk/car/used", 2)
	require.NoError(t, err)
	require.Equal(t, "https://auto.ria.com/uk/car/used?page=2", second)

	replaced, err := PageURL("https://auto.ria.com/uk/car/used?page=9&brand=audi", 3)
	require.NoError(t, err)
	require.Equal(t, "https://auto.ria.com/uk/car/used?brand=audi&page=3", replaced)
}
