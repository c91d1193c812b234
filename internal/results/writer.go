// Package results persists scrape output: a JSON document in blob storage,
// optional tournament rows in Postgres and an optional completion event.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/clock/system"
	"github.com/JakeFAU/dartsatlas-scraper/internal/hash/sha256"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// EventCompleted is the event name published after a successful save.
const EventCompleted = "scrape.completed"

const (
	defaultPrefix = "results"
	contentType   = "application/json"
	isoMillis     = "2006-01-02T15:04:05.000Z07:00"
)

// Hasher digests the stored document.
type Hasher interface {
	Hash(data []byte) string
}

// Config controls where and how results are written.
type Config struct {
	// Prefix is the object path prefix inside the blob store.
	Prefix string
	// Topic receives completion events; empty disables publishing.
	Topic string
}

// Document is the JSON layout of a stored result file.
type Document struct {
	Metadata    Metadata             `json:"metadata"`
	Tournaments []scraper.Tournament `json:"tournaments"`
}

// Metadata describes a stored result file.
type Metadata struct {
	RunID            string `json:"runId,omitempty"`
	ScrapedAt        string `json:"scrapedAt"`
	Source           string `json:"source"`
	TotalTournaments int    `json:"totalTournaments"`
}

// CompletedEvent is published once a result file has been written.
type CompletedEvent struct {
	Event            string `json:"event"`
	RunID            string `json:"runId"`
	URI              string `json:"uri"`
	Checksum         string `json:"checksum"`
	TotalTournaments int    `json:"totalTournaments"`
	ScrapedAt        string `json:"scrapedAt"`
}

// Writer implements scraper.ResultSink.
type Writer struct {
	cfg       Config
	blobs     scraper.BlobStore
	store     scraper.TournamentStore
	publisher scraper.Publisher
	hasher    Hasher
	clock     scraper.Clock
	logger    *zap.Logger
}

// New creates a Writer. store and publisher are optional.
func New(
	cfg Config,
	blobs scraper.BlobStore,
	store scraper.TournamentStore,
	publisher scraper.Publisher,
	clock scraper.Clock,
	logger *zap.Logger,
) (*Writer, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		cfg:       cfg,
		blobs:     blobs,
		store:     store,
		publisher: publisher,
		hasher:    sha256.New(),
		clock:     clock,
		logger:    logger,
	}, nil
}

// DefaultFilename names a result file after the scrape time.
func DefaultFilename(t time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(isoMillis))
	return fmt.Sprintf("darts-atlas-tournaments-%s.json", ts)
}

// ObjectPath returns the blob path for filename. Directory components in
// filename are dropped.
func (w *Writer) ObjectPath(filename string) string {
	return path.Join(w.cfg.Prefix, path.Base(path.Clean("/"+filename)))
}

// Save writes the result document and returns its URI. Only the document
// write can fail the call; row storage and publishing failures are logged.
func (w *Writer) Save(ctx context.Context, req scraper.SaveRequest) (string, error) {
	now := w.clock.Now()
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = DefaultFilename(now)
	}
	objectPath := w.ObjectPath(filename)

	tournaments := req.Tournaments
	if tournaments == nil {
		tournaments = []scraper.Tournament{}
	}
	doc := Document{
		Metadata: Metadata{
			RunID:            req.RunID,
			ScrapedAt:        now.UTC().Format(isoMillis),
			Source:           req.Source,
			TotalTournaments: len(tournaments),
		},
		Tournaments: tournaments,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	uri, err := w.blobs.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	checksum := w.hasher.Hash(data)
	logger := w.logger.With(zap.String("run_id", req.RunID), zap.String("uri", uri))
	logger.Info("results written", zap.Int("tournaments", len(tournaments)), zap.String("checksum", checksum))

	if w.store != nil {
		if err := w.store.StoreTournaments(ctx, req.RunID, now, tournaments); err != nil {
			logger.Warn("storing tournament rows failed", zap.Error(err))
		}
	}

	if w.publisher != nil && w.cfg.Topic != "" {
		event := CompletedEvent{
			Event:            EventCompleted,
			RunID:            req.RunID,
			URI:              uri,
			Checksum:         checksum,
			TotalTournaments: len(tournaments),
			ScrapedAt:        doc.Metadata.ScrapedAt,
		}
		if id, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
			logger.Warn("publishing completion event failed", zap.Error(err))
		} else {
			logger.Debug("completion event published", zap.String("message_id", id))
		}
	}
	return uri, nil
}
