package gcsfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// StaleSessionAge is how long an upload session record is kept. Cloud
// Storage expires resumable sessions after a week.
const StaleSessionAge = 7 * 24 * time.Hour

// cleanThrottle limits lazy stale-session cleanup to once per interval.
const cleanThrottle = time.Hour

const (
	sqlLoadSession = `SELECT id, bucket, object_key, local_path, fingerprint,
		file_size, state, created_at, updated_at
		FROM upload_sessions
		WHERE bucket = ? AND object_key = ? AND local_path = ?`

	sqlListSessions = `SELECT id, bucket, object_key, local_path, fingerprint,
		file_size, state, created_at, updated_at
		FROM upload_sessions
		ORDER BY updated_at DESC`

	sqlUpsertSession = `INSERT INTO upload_sessions
		(id, bucket, object_key, local_path, fingerprint, file_size, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, object_key, local_path) DO UPDATE SET
		 fingerprint = excluded.fingerprint,
		 file_size = excluded.file_size,
		 state = excluded.state,
		 updated_at = excluded.updated_at`

	sqlDeleteSession = `DELETE FROM upload_sessions
		WHERE bucket = ? AND object_key = ? AND local_path = ?`

	sqlDeleteStale = `DELETE FROM upload_sessions WHERE updated_at < ?`
)

// SessionRecord is a persisted resumable upload of one local file to one
// object. State is the blob returned by the last successful commit.
type SessionRecord struct {
	ID          string
	Bucket      string
	ObjectKey   string
	LocalPath   string
	Fingerprint string // identifies the local file content the session was started for
	FileSize    int64
	State       []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionStore persists upload sessions in SQLite so an interrupted upload
// can continue after a process restart. Records are keyed by
// (bucket, object key, local path).
type SessionStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time

	cleanMu   sync.Mutex
	lastClean time.Time
}

// OpenSessionStore opens or creates the session database at dbPath and
// applies pending migrations.
func OpenSessionStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("gcsfs: opening session database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: one connection serializes all statements.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("session store opened", slog.String("db_path", dbPath))

	return &SessionStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Load returns the session for the given key, or nil, nil when none exists.
func (s *SessionStore) Load(ctx context.Context, bucket, objectKey, localPath string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, sqlLoadSession, bucket, objectKey, localPath)

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("gcsfs: loading upload session: %w", err)
	}

	return rec, nil
}

// Save inserts or replaces the session for rec's key. A missing ID is
// generated; CreatedAt of an existing record is kept. Stale records are
// cleaned lazily, at most once per hour.
func (s *SessionStore) Save(ctx context.Context, rec *SessionRecord) error {
	now := s.nowFunc().UTC()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, sqlUpsertSession,
		rec.ID, rec.Bucket, rec.ObjectKey, rec.LocalPath, rec.Fingerprint,
		rec.FileSize, rec.State, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("gcsfs: saving upload session: %w", err)
	}

	s.cleanIfDue(ctx)

	return nil
}

// Delete removes the session for the given key. A missing record is not an
// error.
func (s *SessionStore) Delete(ctx context.Context, bucket, objectKey, localPath string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteSession, bucket, objectKey, localPath); err != nil {
		return fmt.Errorf("gcsfs: deleting upload session: %w", err)
	}

	return nil
}

// List returns every stored session, most recently updated first.
func (s *SessionStore) List(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlListSessions)
	if err != nil {
		return nil, fmt.Errorf("gcsfs: listing upload sessions: %w", err)
	}
	defer rows.Close()

	var recs []SessionRecord

	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("gcsfs: scanning upload session: %w", err)
		}

		recs = append(recs, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gcsfs: listing upload sessions: %w", err)
	}

	return recs, nil
}

// CleanStale removes sessions not updated within maxAge and returns how many
// were removed. The remote sessions are left to expire on their own.
func (s *SessionStore) CleanStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.nowFunc().Add(-maxAge).UnixNano()

	res, err := s.db.ExecContext(ctx, sqlDeleteStale, cutoff)
	if err != nil {
		return 0, fmt.Errorf("gcsfs: cleaning stale upload sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("gcsfs: counting cleaned upload sessions: %w", err)
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int64("count", n))
	}

	return int(n), nil
}

func (s *SessionStore) cleanIfDue(ctx context.Context) {
	s.cleanMu.Lock()

	now := s.nowFunc()
	if now.Sub(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = now
	s.cleanMu.Unlock()

	if _, err := s.CleanStale(ctx, StaleSessionAge); err != nil {
		s.logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec                  SessionRecord
		createdAt, updatedAt int64
	)

	err := row.Scan(&rec.ID, &rec.Bucket, &rec.ObjectKey, &rec.LocalPath, &rec.Fingerprint,
		&rec.FileSize, &rec.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &rec, nil
}
