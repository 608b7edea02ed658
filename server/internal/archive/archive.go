package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/hydrostack/hydrostack/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	station TEXT             NOT NULL,
	label   TEXT             NOT NULL,
	ts      TIMESTAMPTZ      NOT NULL,
	value   DOUBLE PRECISION NOT NULL,
	units   TEXT             NOT NULL DEFAULT '',
	quality TEXT             NOT NULL,
	PRIMARY KEY (station, label, ts)
);
CREATE TABLE IF NOT EXISTS events (
	id      TEXT             PRIMARY KEY,
	station TEXT             NOT NULL,
	label   TEXT             NOT NULL,
	ts      TIMESTAMPTZ      NOT NULL,
	value   DOUBLE PRECISION NOT NULL,
	message TEXT             NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_station_ts ON events (station, ts);
`

const (
	insertReading = `INSERT INTO readings (station, label, ts, value, units, quality)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
	insertEvent = `INSERT INTO events (id, station, label, ts, value, message)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
	selectReadings = `SELECT label, ts, value, units, quality FROM readings
WHERE station = $1 AND label = $2 AND ts >= $3 AND ts <= $4 ORDER BY ts`
)

// maxPendingBatches bounds the rows held while the database is unreachable.
const maxPendingBatches = 20

// Archive batches rows into Postgres. It is safe for concurrent use.
type Archive struct {
	db        *sql.DB
	batchSize int
	flush     time.Duration

	mu       sync.Mutex
	readings []types.Reading
	events   []types.Event
	kick     chan struct{}

	// OnDrop, if set, is called with the number of rows discarded when the
	// pending queue overflows.
	OnDrop func(n int)
}

// Open connects to Postgres using dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	return db, nil
}

// New wraps db. batchSize and flush fall back to 500 rows and 5s.
func New(db *sql.DB, batchSize int, flush time.Duration) *Archive {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flush <= 0 {
		flush = 5 * time.Second
	}
	return &Archive{
		db:        db,
		batchSize: batchSize,
		flush:     flush,
		kick:      make(chan struct{}, 1),
	}
}

// Init creates the archive tables.
func (a *Archive) Init(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: init schema: %w", err)
	}
	return nil
}

// AddReading queues r.
func (a *Archive) AddReading(r types.Reading) {
	a.mu.Lock()
	a.readings = trimOldest(a, append(a.readings, r))
	n := len(a.readings) + len(a.events)
	a.mu.Unlock()
	a.maybeKick(n)
}

// AddEvent queues e.
func (a *Archive) AddEvent(e types.Event) {
	a.mu.Lock()
	a.events = trimOldest(a, append(a.events, e))
	n := len(a.readings) + len(a.events)
	a.mu.Unlock()
	a.maybeKick(n)
}

// Pending returns the number of queued rows.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.readings) + len(a.events)
}

// trimOldest drops the oldest rows beyond the pending limit. Callers hold a.mu.
func trimOldest[T any](a *Archive, rows []T) []T {
	over := len(rows) - a.batchSize*maxPendingBatches
	if over <= 0 {
		return rows
	}
	a.dropped(over)
	return rows[over:]
}

func (a *Archive) dropped(n int) {
	slog.Warn("archive: pending queue full, dropped oldest rows", "rows", n)
	if a.OnDrop != nil {
		a.OnDrop(n)
	}
}

func (a *Archive) maybeKick(pending int) {
	if pending < a.batchSize {
		return
	}
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run flushes queued rows until ctx is cancelled, then makes a final flush.
func (a *Archive) Run(ctx context.Context) {
	t := time.NewTicker(a.flush)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.Flush(final); err != nil {
				slog.Error("archive: final flush failed", "err", err, "pending", a.Pending())
			}
			cancel()
			return
		case <-t.C:
		case <-a.kick:
		}
		if err := a.Flush(ctx); err != nil {
			slog.Error("archive: flush failed, will retry", "err", err, "pending", a.Pending())
		}
	}
}

// Flush writes queued rows in batches of at most batchSize. Rows of a
// failed batch go back to the front of the queue.
func (a *Archive) Flush(ctx context.Context) error {
	for {
		a.mu.Lock()
		nr := min(len(a.readings), a.batchSize)
		ne := min(len(a.events), a.batchSize-nr)
		rs := append([]types.Reading(nil), a.readings[:nr]...)
		es := append([]types.Event(nil), a.events[:ne]...)
		a.readings = a.readings[nr:]
		a.events = a.events[ne:]
		a.mu.Unlock()

		if len(rs) == 0 && len(es) == 0 {
			return nil
		}
		if err := a.insert(ctx, rs, es); err != nil {
			a.mu.Lock()
			a.readings = trimOldest(a, append(rs, a.readings...))
			a.events = trimOldest(a, append(es, a.events...))
			a.mu.Unlock()
			return err
		}
		slog.Debug("archive: batch written", "readings", len(rs), "events", len(es))
	}
}

func (a *Archive) insert(ctx context.Context, rs []types.Reading, es []types.Event) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(rs) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertReading)
		if err != nil {
			return fmt.Errorf("archive: prepare readings: %w", err)
		}
		defer stmt.Close()
		for _, r := range rs {
			if _, err := stmt.ExecContext(ctx, r.Station, r.Label, r.Time.UTC(), r.Value, r.Units, r.Quality); err != nil {
				return fmt.Errorf("archive: insert reading %s/%s: %w", r.Station, r.Label, err)
			}
		}
	}
	if len(es) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertEvent)
		if err != nil {
			return fmt.Errorf("archive: prepare events: %w", err)
		}
		defer stmt.Close()
		for _, e := range es {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Station, e.Label, e.Time.UTC(), e.Value, e.Message); err != nil {
				return fmt.Errorf("archive: insert event %s: %w", e.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Readings returns the archived readings for station and label with
// from <= time <= to, oldest first.
func (a *Archive) Readings(ctx context.Context, station, label string, from, to time.Time) ([]types.Reading, error) {
	rows, err := a.db.QueryContext(ctx, selectReadings, station, label, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("archive: query readings: %w", err)
	}
	defer rows.Close()

	var out []types.Reading
	for rows.Next() {
		r := types.Reading{Station: station}
		if err := rows.Scan(&r.Label, &r.Time, &r.Value, &r.Units, &r.Quality); err != nil {
			return nil, fmt.Errorf("archive: scan reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: read rows: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}
