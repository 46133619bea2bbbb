package checkpointer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const sqliteScheme = "sqlite://"

// SQLitePath returns the path of the checkpoint database in root
func SQLitePath(root string) string {
	return filepath.Join(root, "checkpoints.db")
}

// SQLiteStore stores checkpoints as rows of a SQLite database. The
// handle of a checkpoint is sqlite://<database path>#<checkpoint id>.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens the database at path, creating it if needed
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("newSQLiteStore: sqlite path is required")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("newSQLiteStore: %w", err)
	}
	if err := mkdirFor(path); err != nil {
		return nil, fmt.Errorf("newSQLiteStore: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("newSQLiteStore: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("newSQLiteStore: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("newSQLiteStore: could not create tables: %w",
			err)
	}

	return &SQLiteStore{path: path, db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			created TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}

// Save inserts the checkpoint inside a transaction
func (s *SQLiteStore) Save(ctx context.Context, obj Serializable,
	meta Meta) (Handle, error) {
	db, err := s.getDB()
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	payload, err := encode(obj, meta)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, run_id, iteration, created, payload)
		VALUES (?, ?, ?, ?, ?)
	`, id, meta.RunID, meta.Iteration,
		meta.Created.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save: %w", err)
	}

	return Handle(fmt.Sprintf("%v%v#%v", sqliteScheme, s.path, id)), nil
}

// Restore decodes the checkpoint h into obj
func (s *SQLiteStore) Restore(ctx context.Context, obj Serializable,
	h Handle, want Meta) error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	path, id, err := parseSQLiteHandle(h)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if filepath.Clean(path) != filepath.Clean(s.path) {
		return fmt.Errorf("restore: %w: %v is not in database %v",
			ErrNotFound, h, s.path)
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE id = ?`,
		id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("restore: %w: %v", ErrNotFound, h)
	} else if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	if err := restore(payload, obj, want); err != nil {
		return fmt.Errorf("restore: %v: %w", h, err)
	}
	return nil
}

// List returns the metadata of all checkpoints in the database, oldest
// first
func (s *SQLiteStore) List(ctx context.Context) ([]Meta, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM checkpoints`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}

		env, err := decode(payload)
		if err != nil {
			return nil, fmt.Errorf("list: checkpoint %v: %w", id, err)
		}
		env.Meta.Handle = Handle(fmt.Sprintf("%v%v#%v", sqliteScheme, s.path,
			id))
		metas = append(metas, env.Meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	sortMetas(metas)
	return metas, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is closed")
	}
	return s.db, nil
}

// parseSQLiteHandle splits a handle into its database path and
// checkpoint id
func parseSQLiteHandle(h Handle) (path, id string, err error) {
	rest, ok := strings.CutPrefix(string(h), sqliteScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a sqlite handle",
			ErrNotFound, h)
	}

	i := strings.LastIndex(rest, "#")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: malformed sqlite handle %q",
			ErrNotFound, h)
	}
	return rest[:i], rest[i+1:], nil
}
