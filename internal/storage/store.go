package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	defaultBusyTimeout = 5000

	// DefaultDSN keeps the ledger in memory for the life of the process.
	DefaultDSN = "file:syncstream?mode=memory&cache=shared"
)

// Store wraps the SQLite handle that backs the upload ledger.
type Store struct {
	db *sql.DB
}

// Upload is one stored media file and the room it belongs to.
type Upload struct {
	Filename     string
	OriginalName string
	Size         int64
	MimeType     string
	UploadedBy   string
	RoomID       string
	UploadedAt   time.Time
}

// ErrUploadExists is returned when inserting a filename that is already recorded.
var ErrUploadExists = errors.New("upload already recorded")

// NewStore opens the SQLite database named by dsn. An empty dsn uses the
// in-memory DefaultDSN. Call Close when done.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", buildDSN(dsn))
	if err != nil {
		return nil, err
	}
	// A single connection keeps a shared-cache memory database alive and
	// serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			filename TEXT PRIMARY KEY,
			original_name TEXT NOT NULL,
			size INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			uploaded_by TEXT NOT NULL,
			room_id TEXT NOT NULL,
			uploaded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_room ON uploads(room_id);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_at ON uploads(uploaded_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertUpload records a stored file. ErrUploadExists is returned on conflicts.
func (s *Store) InsertUpload(ctx context.Context, u Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads(filename, original_name, size, mime_type, uploaded_by, room_id, uploaded_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		u.Filename, u.OriginalName, u.Size, u.MimeType, u.UploadedBy, u.RoomID, u.UploadedAt.UnixMilli())
	if err != nil {
		if isConstraintError(err) {
			return ErrUploadExists
		}
		return err
	}
	return nil
}

// ListUploadsByRoom returns every record owned by roomID, oldest first.
func (s *Store) ListUploadsByRoom(ctx context.Context, roomID string) ([]Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, original_name, size, mime_type, uploaded_by, room_id, uploaded_at
		FROM uploads WHERE room_id = ?
		ORDER BY uploaded_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	return collectUploads(rows)
}

// ListUploadsBefore returns records uploaded strictly before cutoff, oldest first.
func (s *Store) ListUploadsBefore(ctx context.Context, cutoff time.Time) ([]Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, original_name, size, mime_type, uploaded_by, room_id, uploaded_at
		FROM uploads WHERE uploaded_at < ?
		ORDER BY uploaded_at ASC`, cutoff.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectUploads(rows)
}

// DeleteUpload removes a record and reports whether this call removed it.
// Callers use the result to claim a file for deletion exactly once.
func (s *Store) DeleteUpload(ctx context.Context, filename string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE filename = ?`, filename)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountUploads returns the number of recorded files.
func (s *Store) CountUploads(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM uploads`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (Upload, error) {
	var (
		u  Upload
		at int64
	)
	if err := row.Scan(&u.Filename, &u.OriginalName, &u.Size, &u.MimeType, &u.UploadedBy, &u.RoomID, &at); err != nil {
		return Upload{}, err
	}
	u.UploadedAt = time.UnixMilli(at)
	return u, nil
}

func collectUploads(rows *sql.Rows) ([]Upload, error) {
	defer rows.Close()
	var out []Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Code carries the extended result code; the low byte is the primary one.
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
