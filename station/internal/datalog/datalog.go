package datalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hydrostack/hydrostack/station/internal/datalog/migrations"
)

// Quality flags.
const (
	Good = "G"
	Bad  = "B"
)

// ErrNoReadings is returned when a query matches nothing.
var ErrNoReadings = errors.New("datalog: no readings")

// Reading is one logged measurement value.
type Reading struct {
	Time    time.Time
	Label   string
	Value   float64
	Units   string
	Quality string
}

// Good reports whether the reading carries the good quality flag.
func (r Reading) Good() bool { return r.Quality == Good }

// Event is one logged program event.
type Event struct {
	Time    time.Time
	Label   string
	Value   float64
	Message string
}

// Sample records one sampler trigger.
type Sample struct {
	Time    time.Time
	Pacing  float64
	Bottle  int
	Aliquot int
}

// Log is a SQLite-backed datalog.
type Log struct {
	db *sql.DB
}

func toMillis(t time.Time) int64   { return t.UTC().UnixMilli() }
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the datalog at path and applies migrations.
func Open(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("datalog: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("datalog: open: %w", err)
	}
	// One writer; readers go through the same handle.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datalog: ping: %w", err)
	}
	if err := migrate(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datalog: migrate: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// AppendReading logs r. A zero time is replaced with now and an empty
// quality with Good.
func (l *Log) AppendReading(ctx context.Context, r Reading) error {
	if r.Label == "" {
		return fmt.Errorf("datalog: reading label is required")
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if r.Quality == "" {
		r.Quality = Good
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO readings (ts, label, value, units, quality) VALUES (?, ?, ?, ?, ?)`,
		toMillis(r.Time), r.Label, r.Value, r.Units, r.Quality)
	if err != nil {
		return fmt.Errorf("datalog: append reading %q: %w", r.Label, err)
	}
	return nil
}

// AppendEvent logs e.
func (l *Log) AppendEvent(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (ts, label, value, message) VALUES (?, ?, ?, ?)`,
		toMillis(e.Time), e.Label, e.Value, e.Message)
	if err != nil {
		return fmt.Errorf("datalog: append event %q: %w", e.Label, err)
	}
	return nil
}

// AppendSample logs a sampler trigger record.
func (l *Log) AppendSample(ctx context.Context, s Sample) error {
	if s.Time.IsZero() {
		s.Time = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO samples (ts, pacing, bottle, aliquot) VALUES (?, ?, ?, ?)`,
		toMillis(s.Time), s.Pacing, s.Bottle, s.Aliquot)
	if err != nil {
		return fmt.Errorf("datalog: append sample: %w", err)
	}
	return nil
}

// Readings returns readings of label with from <= time <= to, oldest first.
// An empty label matches every label.
func (l *Log) Readings(ctx context.Context, label string, from, to time.Time) ([]Reading, error) {
	q := `SELECT ts, label, value, units, quality FROM readings WHERE ts >= ? AND ts <= ?`
	args := []any{toMillis(from), toMillis(to)}
	if label != "" {
		q += ` AND label = ?`
		args = append(args, label)
	}
	q += ` ORDER BY ts, id`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("datalog: query readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			r  Reading
			ts int64
		)
		if err := rows.Scan(&ts, &r.Label, &r.Value, &r.Units, &r.Quality); err != nil {
			return nil, fmt.Errorf("datalog: scan reading: %w", err)
		}
		r.Time = fromMillis(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the newest reading of label.
func (l *Log) Latest(ctx context.Context, label string) (Reading, error) {
	var (
		r  Reading
		ts int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT ts, label, value, units, quality FROM readings WHERE label = ? ORDER BY ts DESC, id DESC LIMIT 1`,
		label).Scan(&ts, &r.Label, &r.Value, &r.Units, &r.Quality)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, fmt.Errorf("%w for %q", ErrNoReadings, label)
	}
	if err != nil {
		return Reading{}, fmt.Errorf("datalog: latest %q: %w", label, err)
	}
	r.Time = fromMillis(ts)
	return r, nil
}

// Events returns events with from <= time <= to, oldest first.
func (l *Log) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ts, label, value, message FROM events WHERE ts >= ? AND ts <= ? ORDER BY ts, id`,
		toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("datalog: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e  Event
			ts int64
		)
		if err := rows.Scan(&ts, &e.Label, &e.Value, &e.Message); err != nil {
			return nil, fmt.Errorf("datalog: scan event: %w", err)
		}
		e.Time = fromMillis(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Samples returns sampler trigger records with from <= time <= to.
func (l *Log) Samples(ctx context.Context, from, to time.Time) ([]Sample, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ts, pacing, bottle, aliquot FROM samples WHERE ts >= ? AND ts <= ? ORDER BY ts, id`,
		toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("datalog: query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s  Sample
			ts int64
		)
		if err := rows.Scan(&ts, &s.Pacing, &s.Bottle, &s.Aliquot); err != nil {
			return nil, fmt.Errorf("datalog: scan sample: %w", err)
		}
		s.Time = fromMillis(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// migrate applies each *.sql file in mfs once, in name order.
func migrate(db *sql.DB, mfs fs.FS) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(mfs, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var n int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		body, err := fs.ReadFile(mfs, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin %s: %w", name, err)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}
	return nil
}
