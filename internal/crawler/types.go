// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// Listing is one advertisement snapshot extracted from a car page.
// Nullable fields are pointers: nil means the value was absent or
// unparseable, never a sentinel.
type Listing struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	PriceUSD        *float64  `json:"price_usd"`
	OdometerKM      *int64    `json:"odometer_km"`
	SellerName      *string   `json:"seller_name"`
	PhoneNumber     *string   `json:"phone_number"`
	PrimaryImageURL *string   `json:"primary_image_url"`
	ImageCount      int       `json:"image_count"`
	PlateNumber     *string   `json:"plate_number"`
	VIN             *string   `json:"vin"`
	CollectedAt     time.Time `json:"collected_at"`
}

// UpsertOutcome reports whether an upsert created a new row or replaced
// an existing one.
type UpsertOutcome string

// Upsert outcomes returned by the persistence gateway.
const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertUpdated  UpsertOutcome = "updated"
)

// WalkState is the terminal state of a pagination walk.
type WalkState string

// Terminal walk states.
const (
	// WalkDone means the walk reached an empty results page or the page cap.
	WalkDone WalkState = "done"
	// WalkAborted means a search-results page could not be fetched after
	// exhausting retries.
	WalkAborted WalkState = "aborted"
)

// Page is a fetched document snapshot.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Report summarizes a completed walk.
type Report struct {
	RunID      string    `json:"run_id"`
	State      WalkState `json:"state"`
	Pages      int       `json:"pages"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
