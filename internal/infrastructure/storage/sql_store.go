package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const recordsTable = "provider_records"

// Dialect selects placeholder style and migrations.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore persists provider records in SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ ports.RecordStore = (*SQLStore)(nil)

// OpenSQLite opens (or creates) the cache database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store, err := NewSQLStore(ctx, db, DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewSQLStore(ctx, db, DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wires an open sql.DB and applies migrations.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	switch dialect {
	case DialectSQLite:
	case DialectPostgres:
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("%w: unknown sql dialect %q", domain.ErrConfiguration, dialect)
	}
	store := &SQLStore{db: db, dialect: dialect, builder: builder}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + recordsTable + ` (
			provider_id  TEXT NOT NULL,
			title        TEXT NOT NULL,
			year         INTEGER NOT NULL,
			status       TEXT NOT NULL,
			raw_value    TEXT NOT NULL DEFAULT '',
			review_count BIGINT,
			fetched_at   BIGINT NOT NULL,
			expires_at   BIGINT NOT NULL,
			record       TEXT NOT NULL,
			PRIMARY KEY (provider_id, title, year)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provider_records_expires ON ` + recordsTable + ` (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect, err)
		}
	}
	return nil
}

func keyEq(key domain.RecordKey) sq.Eq {
	return sq.Eq{
		"provider_id": key.ProviderID,
		"title":       key.Movie.Title,
		"year":        key.Movie.Year,
	}
}

// Get loads the record stored under key, fresh or not.
func (s *SQLStore) Get(ctx context.Context, key domain.RecordKey) (domain.ProviderRecord, time.Time, bool, error) {
	query, args, err := s.builder.
		Select("record", "expires_at").
		From(recordsTable).
		Where(keyEq(key)).
		ToSql()
	if err != nil {
		return domain.ProviderRecord{}, time.Time{}, false, fmt.Errorf("build select: %w", err)
	}

	var (
		payload   string
		expiresAt int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProviderRecord{}, time.Time{}, false, nil
	}
	if err != nil {
		return domain.ProviderRecord{}, time.Time{}, false, fmt.Errorf("select record %s: %w", key, err)
	}

	var rec domain.ProviderRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.ProviderRecord{}, time.Time{}, false, fmt.Errorf("decode record %s: %w", key, err)
	}
	return rec, time.UnixMilli(expiresAt).UTC(), true, nil
}

// Set upserts rec under key.
func (s *SQLStore) Set(ctx context.Context, key domain.RecordKey, rec domain.ProviderRecord, expiresAt time.Time) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}

	var reviewCount any
	if rec.ReviewCount != nil {
		reviewCount = int64(*rec.ReviewCount)
	}

	query, args, err := s.builder.
		Insert(recordsTable).
		Columns("provider_id", "title", "year", "status", "raw_value", "review_count", "fetched_at", "expires_at", "record").
		Values(key.ProviderID, key.Movie.Title, key.Movie.Year, string(rec.Status), rec.RawValue, reviewCount,
			rec.FetchedAt.UnixMilli(), expiresAt.UnixMilli(), string(payload)).
		Suffix(`ON CONFLICT (provider_id, title, year) DO UPDATE SET
			status = excluded.status,
			raw_value = excluded.raw_value,
			review_count = excluded.review_count,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at,
			record = excluded.record`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert record %s: %w", key, err)
	}
	return nil
}

// HasFresh reports whether key holds a record that has not expired at now.
func (s *SQLStore) HasFresh(ctx context.Context, key domain.RecordKey, now time.Time) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From(recordsTable).
		Where(keyEq(key)).
		Where(sq.Gt{"expires_at": now.UnixMilli()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check fresh %s: %w", key, err)
	}
	return true, nil
}

// Purge deletes records that expired at or before now.
func (s *SQLStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := s.builder.
		Delete(recordsTable).
		Where(sq.LtOrEq{"expires_at": now.UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
