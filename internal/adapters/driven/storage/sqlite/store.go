package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nomadai/kbase/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driven"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "kbase.db"

// Ensure Store implements the interface.
var _ driven.FileStore = (*Store)(nil)

// Store is a SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.kbase/data/kbase.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kbase", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStorage, err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL lets readers proceed while an ingestion is writing
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStorage, err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrStorage, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations, each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_documents.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.apply(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) apply(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

const documentColumns = `id, file_name, file_type, file_size, content_hash, created_at, chunk_count, is_csv, csv_info`

// FindByHash returns the earliest saved document with the given content hash, or nil.
func (s *Store) FindByHash(ctx context.Context, hash string) (*domain.Document, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE content_hash = ?
		ORDER BY created_at ASC, id ASC LIMIT 1
	`, hash)

	doc, err := scanDocument(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// Save stores or replaces a document and its content.
func (s *Store) Save(ctx context.Context, doc *domain.Document, content string) (*domain.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}
	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}

	var csvInfo sql.NullString
	if stored.CSVInfo != nil {
		data, err := json.Marshal(stored.CSVInfo)
		if err != nil {
			return nil, fmt.Errorf("%w: marshalling csv info: %w", domain.ErrStorage, err)
		}
		csvInfo = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			is_csv = excluded.is_csv,
			csv_info = excluded.csv_info,
			content = excluded.content
	`, stored.ID, stored.FileName, stored.FileType, stored.FileSize, stored.ContentHash,
		stored.CreatedAt.UnixNano(), stored.ChunkCount, stored.IsCSV, csvInfo, content)
	if err != nil {
		return nil, fmt.Errorf("%w: saving document: %w", domain.ErrStorage, err)
	}
	return stored.Clone(), nil
}

// GetMeta retrieves a document by ID.
func (s *Store) GetMeta(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// GetContent retrieves a document's raw text by ID.
func (s *Store) GetContent(ctx context.Context, id string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, "SELECT content FROM documents WHERE id = ?", id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading content: %w", domain.ErrStorage, err)
	}
	return content, nil
}

// Delete removes a document. Returns false for unknown ids.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %w", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: deleting document: %w", domain.ErrStorage, err)
	}
	return n > 0, nil
}

// GetAll returns every document, oldest first.
func (s *Store) GetAll(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying documents: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating documents: %w", domain.ErrStorage, err)
	}
	return docs, nil
}

// Search returns documents whose file name contains query, ignoring case.
// Matching happens in Go because SQLite's lower() only folds ASCII.
func (s *Store) Search(ctx context.Context, query string) ([]domain.Document, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	matched := all[:0]
	for _, doc := range all {
		if strings.Contains(strings.ToLower(doc.FileName), q) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var createdAt int64
	var csvInfo sql.NullString

	if err := row.Scan(&doc.ID, &doc.FileName, &doc.FileType, &doc.FileSize, &doc.ContentHash,
		&createdAt, &doc.ChunkCount, &doc.IsCSV, &csvInfo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning document: %w", domain.ErrStorage, err)
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()

	if csvInfo.Valid && csvInfo.String != "" {
		var info domain.CSVInfo
		if err := json.Unmarshal([]byte(csvInfo.String), &info); err != nil {
			return nil, fmt.Errorf("%w: unmarshalling csv info: %w", domain.ErrStorage, err)
		}
		doc.CSVInfo = &info
	}
	return &doc, nil
}
