package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/semindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a move would overwrite an existing vector
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements VectorStore using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ VectorStore = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; :memory: needs one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath and applies migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Initialize applies pending migrations. It is safe to call repeatedly.
func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return ApplyMigrations(ctx, s.db)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const vectorColumns = `id, path, chunk_index, vector, metadata`

// Vector reads

func (s *SQLiteStorage) queryVectors(ctx context.Context, q querier, where string, args ...interface{}) ([]*types.EmbeddingVector, error) {
	query := `SELECT ` + vectorColumns + ` FROM vectors WHERE ` + where + ` ORDER BY path, chunk_index`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	vectors := make([]*types.EmbeddingVector, 0)
	for rows.Next() {
		v, err := scanVector(rows)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVector(row rowScanner) (*types.EmbeddingVector, error) {
	var v types.EmbeddingVector
	var blob []byte
	var meta string
	if err := row.Scan(&v.ID, &v.Path, &v.ChunkIndex, &blob, &meta); err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		v.Vector = deserializeVector(blob)
	}
	if err := json.Unmarshal([]byte(meta), &v.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", v.ID, err)
	}
	return &v, nil
}

func (s *SQLiteStorage) GetVectorsByPath(ctx context.Context, path string) ([]*types.EmbeddingVector, error) {
	return s.queryVectors(ctx, s.db, "path = ?", path)
}

func (s *SQLiteStorage) GetVector(ctx context.Context, id string) (*types.EmbeddingVector, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vectorColumns+` FROM vectors WHERE id = ?`, id)
	v, err := scanVector(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *SQLiteStorage) GetVectorsByNamespace(ctx context.Context, namespace string) ([]*types.EmbeddingVector, error) {
	return s.queryVectors(ctx, s.db, "namespace = ?", namespace)
}

func (s *SQLiteStorage) GetVectorsByNamespacePrefix(ctx context.Context, prefix string) ([]*types.EmbeddingVector, error) {
	return s.queryVectors(ctx, s.db, "substr(namespace, 1, ?) = ?", len(prefix), prefix)
}

func (s *SQLiteStorage) GetVectorsByContentHash(ctx context.Context, hash string) ([]*types.EmbeddingVector, error) {
	if hash == "" {
		return []*types.EmbeddingVector{}, nil
	}
	return s.queryVectors(ctx, s.db, "content_hash = ?", hash)
}

// GetRootVectors returns chunk 0 of every document in the namespace.
func (s *SQLiteStorage) GetRootVectors(ctx context.Context, namespace string) ([]*types.EmbeddingVector, error) {
	return s.queryVectors(ctx, s.db, "namespace = ? AND chunk_index = 0", namespace)
}

func (s *SQLiteStorage) GetDistinctPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT path FROM vectors ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CountVectors counts vectors in a namespace, or all vectors when namespace is empty.
func (s *SQLiteStorage) CountVectors(ctx context.Context, namespace string) (int, error) {
	var n int
	var err error
	if namespace == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE namespace = ?`, namespace).Scan(&n)
	}
	return n, err
}

// Vector writes

// StoreVectors validates every vector, then upserts them in one transaction.
// Any invalid vector rejects the whole call.
func (s *SQLiteStorage) StoreVectors(ctx context.Context, vectors []*types.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}
	for _, v := range vectors {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid vector: %w", err)
		}
		ns, path, idx, err := types.ParseVectorID(v.ID)
		if err != nil {
			return err
		}
		if path != v.Path || idx != v.ChunkIndex {
			return fmt.Errorf("%w: id %s does not match path %s chunk %d", types.ErrInvalidVectorID, v.ID, v.Path, v.ChunkIndex)
		}
		if v.Metadata.Namespace != "" && v.Metadata.Namespace != ns {
			return fmt.Errorf("%w: id %s does not match namespace %s", types.ErrInvalidVectorID, v.ID, v.Metadata.Namespace)
		}
	}

	return s.withTx(ctx, func(q querier) error {
		for _, v := range vectors {
			if err := upsertVectorWithQuerier(ctx, q, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertVectorWithQuerier(ctx context.Context, q querier, v *types.EmbeddingVector) error {
	ns, _, _, err := types.ParseVectorID(v.ID)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	var blob []byte
	if len(v.Vector) > 0 {
		blob = serializeVector(v.Vector)
	}

	query := `
		INSERT INTO vectors (id, namespace, path, chunk_index, vector, dimension, content_hash, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		v.ID, ns, v.Path, v.ChunkIndex, blob, len(v.Vector), v.Metadata.ContentHash,
		string(meta), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", v.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) RemoveByPath(ctx context.Context, path string) (int, error) {
	return execCount(ctx, s.db, `DELETE FROM vectors WHERE path = ?`, path)
}

// RemoveByPathExceptIDs deletes every vector of path whose id is not in keep.
func (s *SQLiteStorage) RemoveByPathExceptIDs(ctx context.Context, path string, keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	removed := 0
	err := s.withTx(ctx, func(q querier) error {
		ids, err := idsWhere(ctx, q, "path = ?", path)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := keepSet[id]; ok {
				continue
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete vector %s: %w", id, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *SQLiteStorage) RemoveByDirectory(ctx context.Context, dir string) (int, error) {
	prefix := dirPrefix(dir)
	return execCount(ctx, s.db, `DELETE FROM vectors WHERE substr(path, 1, ?) = ?`, len(prefix), prefix)
}

func (s *SQLiteStorage) RemoveByNamespacePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("namespace prefix cannot be empty")
	}
	return execCount(ctx, s.db, `DELETE FROM vectors WHERE substr(namespace, 1, ?) = ?`, len(prefix), prefix)
}

// MoveVectorID rewrites one vector's id, path and chunk index. The target
// id must not exist.
func (s *SQLiteStorage) MoveVectorID(ctx context.Context, oldID, newID string) error {
	ns, path, idx, err := types.ParseVectorID(newID)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE id = ?`, newID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, newID)
		}
		n, err := execCount(ctx, q,
			`UPDATE vectors SET id = ?, namespace = ?, path = ?, chunk_index = ? WHERE id = ?`,
			newID, ns, path, idx, oldID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RenameByPath moves every vector of oldPath to newPath, replacing anything
// already stored under newPath.
func (s *SQLiteStorage) RenameByPath(ctx context.Context, oldPath, newPath string) (int, error) {
	if oldPath == newPath {
		return 0, nil
	}
	moved := 0
	err := s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM vectors WHERE path = ?`, newPath); err != nil {
			return fmt.Errorf("failed to clear rename target: %w", err)
		}
		n, err := renameRows(ctx, q, "path = ?", []interface{}{oldPath}, func(string) string { return newPath })
		moved = n
		return err
	})
	return moved, err
}

// RenameByDirectory moves every vector under oldDir to the same relative
// location under newDir.
func (s *SQLiteStorage) RenameByDirectory(ctx context.Context, oldDir, newDir string) (int, error) {
	oldPrefix, newPrefix := dirPrefix(oldDir), dirPrefix(newDir)
	if oldPrefix == newPrefix {
		return 0, nil
	}
	moved := 0
	err := s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM vectors WHERE substr(path, 1, ?) = ?`, len(newPrefix), newPrefix); err != nil {
			return fmt.Errorf("failed to clear rename target: %w", err)
		}
		n, err := renameRows(ctx, q, "substr(path, 1, ?) = ?", []interface{}{len(oldPrefix), oldPrefix}, func(p string) string {
			return newPrefix + strings.TrimPrefix(p, oldPrefix)
		})
		moved = n
		return err
	})
	return moved, err
}

type renameRow struct {
	id, namespace, path string
	chunkIndex          int
}

func renameRows(ctx context.Context, q querier, where string, args []interface{}, rename func(string) string) (int, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, namespace, path, chunk_index FROM vectors WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query vectors: %w", err)
	}
	var pending []renameRow
	for rows.Next() {
		var r renameRow
		if err := rows.Scan(&r.id, &r.namespace, &r.path, &r.chunkIndex); err != nil {
			_ = rows.Close()
			return 0, err
		}
		pending = append(pending, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, r := range pending {
		newPath := rename(r.path)
		newID := types.VectorID(r.namespace, newPath, r.chunkIndex)
		_, err := q.ExecContext(ctx, `UPDATE OR REPLACE vectors SET id = ?, path = ? WHERE id = ?`, newID, newPath, r.id)
		if err != nil {
			return 0, fmt.Errorf("failed to rename vector %s: %w", r.id, err)
		}
	}
	return len(pending), nil
}

// Failed-files ledger

func (s *SQLiteStorage) UpsertFailedFile(ctx context.Context, f *FailedFile) error {
	signals, err := json.Marshal(nonNilStrings(f.Signals))
	if err != nil {
		return err
	}
	indices, err := json.Marshal(nonNilInts(f.ChunkIndices))
	if err != nil {
		return err
	}
	failedAt := f.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now()
	}

	query := `
		INSERT INTO failed_files (path, code, message, retryable, signals, chunk_indices, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			code = excluded.code,
			message = excluded.message,
			retryable = excluded.retryable,
			signals = excluded.signals,
			chunk_indices = excluded.chunk_indices,
			failed_at = excluded.failed_at
	`
	_, err = s.db.ExecContext(ctx, query, f.Path, f.Code, f.Message, f.Retryable,
		string(signals), string(indices), failedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record failed file %s: %w", f.Path, err)
	}
	return nil
}

const failedColumns = `path, code, message, retryable, signals, chunk_indices, failed_at`

func scanFailedFile(row rowScanner) (*FailedFile, error) {
	var f FailedFile
	var signals, indices string
	var failedAt int64
	if err := row.Scan(&f.Path, &f.Code, &f.Message, &f.Retryable, &signals, &indices, &failedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(signals), &f.Signals); err != nil {
		return nil, fmt.Errorf("failed to decode signals for %s: %w", f.Path, err)
	}
	if err := json.Unmarshal([]byte(indices), &f.ChunkIndices); err != nil {
		return nil, fmt.Errorf("failed to decode chunk indices for %s: %w", f.Path, err)
	}
	f.FailedAt = time.UnixMilli(failedAt)
	return &f, nil
}

func (s *SQLiteStorage) GetFailedFile(ctx context.Context, path string) (*FailedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+failedColumns+` FROM failed_files WHERE path = ?`, path)
	f, err := scanFailedFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStorage) DeleteFailedFile(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM failed_files WHERE path = ?`, path)
	return err
}

func (s *SQLiteStorage) ListFailedFiles(ctx context.Context) ([]*FailedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+failedColumns+` FROM failed_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]*FailedFile, 0)
	for rows.Next() {
		f, err := scanFailedFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// RenameFailedFiles moves ledger entries for a file, or for everything under
// a directory when directory is true.
func (s *SQLiteStorage) RenameFailedFiles(ctx context.Context, oldPath, newPath string, directory bool) (int, error) {
	if !directory {
		return execCount(ctx, s.db, `UPDATE OR REPLACE failed_files SET path = ? WHERE path = ?`, newPath, oldPath)
	}

	oldPrefix, newPrefix := dirPrefix(oldPath), dirPrefix(newPath)
	files, err := s.ListFailedFiles(ctx)
	if err != nil {
		return 0, err
	}
	moved := 0
	err = s.withTx(ctx, func(q querier) error {
		for _, f := range files {
			if !strings.HasPrefix(f.Path, oldPrefix) {
				continue
			}
			target := newPrefix + strings.TrimPrefix(f.Path, oldPrefix)
			if _, err := q.ExecContext(ctx, `UPDATE OR REPLACE failed_files SET path = ? WHERE path = ?`, target, f.Path); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	return moved, err
}

// Helpers

func execCount(ctx context.Context, q querier, query string, args ...interface{}) (int, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func idsWhere(ctx context.Context, q querier, where string, args ...interface{}) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM vectors WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

func dirPrefix(dir string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return ""
	}
	return dir + "/"
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
