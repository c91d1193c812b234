// Package postgres stores extracted tournaments in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

const defaultTable = "tournaments"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for tournament rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// TournamentStore upserts tournament rows keyed by run and position.
type TournamentStore struct {
	pool  pool
	table string
}

// NewTournamentStore connects a pool using cfg.
func NewTournamentStore(ctx context.Context, cfg Config) (*TournamentStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewTournamentStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewTournamentStoreWithPool constructs a store from an existing pool.
func NewTournamentStoreWithPool(p pool, table string) (*TournamentStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TournamentStore{pool: p, table: table}, nil
}

// EnsureSchema creates the tournament table when it does not exist.
func (s *TournamentStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id             TEXT        NOT NULL,
	position           INTEGER     NOT NULL,
	page_local_id      INTEGER     NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL,
	name               TEXT        NOT NULL,
	location           TEXT        NOT NULL,
	event_date         TEXT        NOT NULL,
	full_date          TEXT        NOT NULL,
	venue              TEXT        NOT NULL,
	venue_address      TEXT        NOT NULL,
	link               TEXT        NOT NULL,
	entries_count      INTEGER,
	record             JSONB       NOT NULL,
	PRIMARY KEY (run_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StoreTournaments upserts records in one transaction. Rows are keyed by
// run id and the record's position in the run, since page-local ids repeat
// across pages.
func (s *TournamentStore) StoreTournaments(ctx context.Context, runID string, scrapedAt time.Time, records []scraper.Tournament) (err error) {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, position, page_local_id, scraped_at, name, location, event_date,
	full_date, venue, venue_address, link, entries_count, record
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (run_id, position) DO UPDATE SET
	page_local_id = EXCLUDED.page_local_id,
	scraped_at = EXCLUDED.scraped_at,
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	event_date = EXCLUDED.event_date,
	full_date = EXCLUDED.full_date,
	venue = EXCLUDED.venue,
	venue_address = EXCLUDED.venue_address,
	link = EXCLUDED.link,
	entries_count = EXCLUDED.entries_count,
	record = EXCLUDED.record`, s.table)

	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal tournament %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, query,
			runID,
			i+1,
			rec.ID,
			scrapedAt,
			rec.Name,
			rec.Location,
			rec.Date,
			rec.FullDate,
			rec.Venue,
			rec.VenueAddress,
			rec.Link,
			rec.EntriesCount,
			raw,
		); err != nil {
			return fmt.Errorf("upsert tournament %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tournaments: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *TournamentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
