// Package checklog persists the outcome of each validation served by the
// HTTP route so operators can list recent checks. It is write-mostly and
// never on the critical path: callers log store failures and move on.
package checklog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/urlgate/dbopen"
	"github.com/hazyhaar/urlgate/idgen"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("checklog: entry not found")

// DefaultLimit and MaxLimit bound Recent.
const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// Entry is one recorded validation.
type Entry struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Host           string `json:"host"`
	Exists         bool   `json:"exists"`
	Accessible     bool   `json:"accessible"`
	Method         string `json:"method"`
	Attempts       int    `json:"attempts"`
	StatusCode     int    `json:"statusCode,omitempty"`
	ResponseTimeMs int64  `json:"responseTime,omitempty"`
	TraceID        string `json:"traceId,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// Store is the checklog database handle.
type Store struct {
	DB *sql.DB

	// NewID generates entry IDs. Nil means idgen.Default (UUIDv7).
	NewID idgen.Generator
}

// Open opens (or creates) the checklog database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("checklog: open: %w", err)
	}
	return &Store{DB: db}, nil
}

// New wraps an already opened database. Schema must have been applied.
func New(db *sql.DB) *Store { return &Store{DB: db} }

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Record inserts e, filling ID, Host and CreatedAt when empty.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		gen := s.NewID
		if gen == nil {
			gen = idgen.Default
		}
		e.ID = gen()
	}
	if e.Host == "" {
		e.Host = hostOf(e.URL)
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}

	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO checks
			(id, url, host, exists_, accessible, method, attempts,
			 status_code, response_time_ms, trace_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.URL, e.Host, e.Exists, e.Accessible, e.Method, e.Attempts,
		e.StatusCode, e.ResponseTimeMs, e.TraceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("checklog: record: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, url, host, exists_, accessible, method, attempts,
	       status_code, response_time_ms, trace_id, created_at
	FROM checks`

// Get returns the entry with the given ID or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(s.DB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checklog: get: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means
// DefaultLimit; values above MaxLimit are clamped.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	return s.list(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit))
}

// ByHost returns up to limit entries for host, newest first.
func (s *Store) ByHost(ctx context.Context, host string, limit int) ([]*Entry, error) {
	return s.list(ctx, selectColumns+` WHERE host = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		strings.ToLower(host), clampLimit(limit))
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var n int64
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM checks WHERE id NOT IN (
				SELECT id FROM checks ORDER BY created_at DESC, id DESC LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("checklog: prune: %w", err)
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("checklog: list: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("checklog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.ID, &e.URL, &e.Host, &e.Exists, &e.Accessible, &e.Method, &e.Attempts,
		&e.StatusCode, &e.ResponseTimeMs, &e.TraceID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
