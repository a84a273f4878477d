package transfer

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Embed migration SQL files for schema versioning.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one interrupted upload the journal knows how to resume: the
// session URI the server issued and the last offset it confirmed.
type Entry struct {
	ID         string
	Path       string
	Size       int64
	SessionURI string
	Offset     int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Journal persists upload sessions in an embedded SQLite database so an
// interrupted transfer can resume across process restarts instead of
// re-initiating from zero. Rows exist only while an upload is in flight;
// terminal success or failure deletes them.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries.
	find, upsert, setOffset, remove, list, clear *sql.Stmt
}

// OpenJournal opens (creating if needed) the journal database at dbPath and
// applies pending migrations. Use ":memory:" for tests.
func OpenJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening resume journal", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening journal: %w", err)
	}

	// Sole-writer: SQLite serializes writers anyway, and a single
	// connection keeps in-memory databases coherent across queries.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("transfer: setting WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{db: db, logger: logger}

	if err := j.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("transfer: preparing journal statements: %w", err)
	}

	return j, nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("transfer: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("transfer: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("transfer: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (j *Journal) prepareStatements(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&j.find, `SELECT id, path, size, session_uri, confirmed_offset, created_at, updated_at
			FROM uploads WHERE path = ? AND size = ?`},
		{&j.upsert, `INSERT INTO uploads (id, path, size, session_uri, confirmed_offset, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (path, size) DO UPDATE SET
				session_uri = excluded.session_uri,
				confirmed_offset = excluded.confirmed_offset,
				updated_at = excluded.updated_at`},
		{&j.setOffset, `UPDATE uploads SET confirmed_offset = ?, updated_at = ? WHERE id = ?`},
		{&j.remove, `DELETE FROM uploads WHERE id = ?`},
		{&j.list, `SELECT id, path, size, session_uri, confirmed_offset, created_at, updated_at
			FROM uploads ORDER BY created_at`},
		{&j.clear, `DELETE FROM uploads`},
	}

	for _, s := range stmts {
		stmt, err := j.db.PrepareContext(ctx, s.query)
		if err != nil {
			return err
		}

		*s.dst = stmt
	}

	return nil
}

// Pending returns the journal entry for a file, or nil when no interrupted
// upload matches the path and size.
func (j *Journal) Pending(ctx context.Context, path string, size int64) (*Entry, error) {
	e, err := scanEntry(j.find.QueryRowContext(ctx, path, size))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("transfer: querying journal: %w", err)
	}

	return e, nil
}

// Record inserts or replaces the entry for an in-flight upload and returns
// it with its assigned id.
func (j *Journal) Record(ctx context.Context, path string, size int64, sessionURI string, offset int64) (*Entry, error) {
	now := time.Now().UTC()

	e := &Entry{
		ID:         uuid.NewString(),
		Path:       path,
		Size:       size,
		SessionURI: sessionURI,
		Offset:     offset,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := j.upsert.ExecContext(ctx, e.ID, e.Path, e.Size, e.SessionURI, e.Offset,
		e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("transfer: recording upload session: %w", err)
	}

	// An upsert over an existing (path, size) row keeps the old id.
	stored, err := j.Pending(ctx, path, size)
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// UpdateOffset persists a new server-confirmed offset for an entry.
func (j *Journal) UpdateOffset(ctx context.Context, id string, offset int64) error {
	if _, err := j.setOffset.ExecContext(ctx, offset, time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("transfer: updating journal offset: %w", err)
	}

	return nil
}

// Delete removes an entry on terminal success or failure.
func (j *Journal) Delete(ctx context.Context, id string) error {
	if _, err := j.remove.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("transfer: deleting journal entry: %w", err)
	}

	return nil
}

// List returns all pending entries, oldest first.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	rows, err := j.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer: listing journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("transfer: scanning journal row: %w", scanErr)
		}

		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transfer: iterating journal rows: %w", err)
	}

	return entries, nil
}

// Clear drops all pending entries.
func (j *Journal) Clear(ctx context.Context) error {
	if _, err := j.clear.ExecContext(ctx); err != nil {
		return fmt.Errorf("transfer: clearing journal: %w", err)
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (j *Journal) Close() error {
	for _, stmt := range []*sql.Stmt{j.find, j.upsert, j.setOffset, j.remove, j.list, j.clear} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return j.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e                    Entry
		createdAt, updatedAt string
	)

	if err := row.Scan(&e.ID, &e.Path, &e.Size, &e.SessionURI, &e.Offset, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error

	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &e, nil
}
