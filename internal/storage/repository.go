package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Dialect selects SQL flavor details.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const dayLayout = "2006-01-02"

// Entry is one manifest row: a published day partition.
type Entry struct {
	Day        time.Time `json:"day"`
	Prefix     string    `json:"prefix"`
	Path       string    `json:"path"`
	RemoteKey  string    `json:"remote_key,omitempty"`
	RowCount   int       `json:"row_count"`
	ByteSize   int64     `json:"byte_size"`
	RunID      string    `json:"run_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PartitionsRepository defines contract for manifest operations.
type PartitionsRepository interface {
	UpsertPartition(ctx context.Context, e Entry) error
	HasPartition(ctx context.Context, day time.Time, prefix string) (bool, error)
	ListPartitions(ctx context.Context, prefix string, start, end *time.Time) ([]Entry, error)
	DeletePartition(ctx context.Context, day time.Time, prefix string) error
	Ping(ctx context.Context) error
}

type partitionsRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewPartitionsRepository(db *sql.DB, dialect Dialect) PartitionsRepository {
	return &partitionsRepository{db: db, dialect: dialect}
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// q adapts $N placeholders to the dialect. SQLite gets ?N.
func (r *partitionsRepository) q(query string) string {
	if r.dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

// UpsertPartition records (or replaces) the manifest entry for a day and prefix.
func (r *partitionsRepository) UpsertPartition(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO partition_log (day, prefix, path, remote_key, row_count, byte_size, run_id, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (day, prefix)
		DO UPDATE SET path = EXCLUDED.path,
					  remote_key = EXCLUDED.remote_key,
					  row_count = EXCLUDED.row_count,
					  byte_size = EXCLUDED.byte_size,
					  run_id = EXCLUDED.run_id,
					  ingested_at = EXCLUDED.ingested_at
	`), e.Day.UTC().Format(dayLayout), e.Prefix, e.Path, e.RemoteKey, e.RowCount, e.ByteSize, e.RunID, e.IngestedAt.UTC())
	return err
}

// HasPartition checks if a partition was already recorded for a day and prefix.
func (r *partitionsRepository) HasPartition(ctx context.Context, day time.Time, prefix string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, r.q(`SELECT EXISTS(SELECT 1 FROM partition_log WHERE day = $1 AND prefix = $2)`),
		day.UTC().Format(dayLayout), prefix).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// DeletePartition removes the entry for a day and prefix.
func (r *partitionsRepository) DeletePartition(ctx context.Context, day time.Time, prefix string) error {
	_, err := r.db.ExecContext(ctx, r.q(`DELETE FROM partition_log WHERE day = $1 AND prefix = $2`),
		day.UTC().Format(dayLayout), prefix)
	return err
}

// ListPartitions returns entries for a prefix ordered by day, optionally bounded (inclusive).
func (r *partitionsRepository) ListPartitions(ctx context.Context, prefix string, start, end *time.Time) ([]Entry, error) {
	// $1 is always prefix. Subsequent placeholders depend on provided dates.
	conditions := []string{"prefix = $1"}
	args := []any{prefix}
	if start != nil {
		args = append(args, start.UTC().Format(dayLayout))
		conditions = append(conditions, fmt.Sprintf("day >= $%d", len(args)))
	}
	if end != nil {
		args = append(args, end.UTC().Format(dayLayout))
		conditions = append(conditions, fmt.Sprintf("day <= $%d", len(args)))
	}
	query := fmt.Sprintf(`
		SELECT day, prefix, path, remote_key, row_count, byte_size, run_id, ingested_at
		FROM partition_log
		WHERE %s
		ORDER BY day`, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			day, at any
		)
		if err := rows.Scan(&day, &e.Prefix, &e.Path, &e.RemoteKey, &e.RowCount, &e.ByteSize, &e.RunID, &at); err != nil {
			return nil, err
		}
		if e.Day, err = scanTime(day); err != nil {
			return nil, fmt.Errorf("partition_log.day: %w", err)
		}
		if e.IngestedAt, err = scanTime(at); err != nil {
			return nil, fmt.Errorf("partition_log.ingested_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *partitionsRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	dayLayout,
}

// scanTime accepts the representations drivers return for DATE and TIMESTAMPTZ
// columns: time.Time from lib/pq, text or time.Time from SQLite.
func scanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

// nopRepository is used when no manifest database is configured.
type nopRepository struct{}

// NewNopRepository returns a repository that stores nothing.
func NewNopRepository() PartitionsRepository { return nopRepository{} }

func (nopRepository) UpsertPartition(context.Context, Entry) error { return nil }

func (nopRepository) HasPartition(context.Context, time.Time, string) (bool, error) {
	return false, nil
}

func (nopRepository) ListPartitions(context.Context, string, *time.Time, *time.Time) ([]Entry, error) {
	return nil, nil
}

func (nopRepository) DeletePartition(context.Context, time.Time, string) error { return nil }

func (nopRepository) Ping(context.Context) error { return nil }
