package scraper

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Session is a scoped network session owned by a single scrape attempt.
type Session interface {
	Fetcher
	Close() error
}

// SessionFactory opens a fresh Session per scrape attempt.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// ResultSink persists scrape results and returns a location URI.
type ResultSink interface {
	Save(ctx context.Context, request SaveRequest) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// TournamentStore persists extracted tournament rows.
type TournamentStore interface {
	StoreTournaments(ctx context.Context, runID string, scrapedAt time.Time, records []Tournament) error
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
