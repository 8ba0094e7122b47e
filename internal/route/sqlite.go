package route

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists route definitions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) the route database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize route schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		uri TEXT NOT NULL,
		predicates TEXT NOT NULL DEFAULT '',
		filters TEXT,
		enabled INTEGER NOT NULL DEFAULT 1
	)`)
	return err
}

func (s *SQLiteStore) ListEnabled(ctx context.Context) ([]Row, error) {
	return s.list(ctx, `SELECT id, uri, predicates, COALESCE(filters, ''), enabled
		FROM routes WHERE enabled = 1 ORDER BY id`)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Row, error) {
	return s.list(ctx, `SELECT id, uri, predicates, COALESCE(filters, ''), enabled
		FROM routes ORDER BY id`)
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var enabled int
		if err := rows.Scan(&r.ID, &r.URI, &r.Predicates, &r.Filters, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Row, bool, error) {
	var r Row
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, uri, predicates, COALESCE(filters, ''), enabled FROM routes WHERE id = ?`,
		id).Scan(&r.ID, &r.URI, &r.Predicates, &r.Filters, &enabled)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("failed to load route %s: %w", id, err)
	}
	r.Enabled = enabled != 0
	return r, true, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, row Row) error {
	var filters any
	if row.Filters != "" {
		filters = row.Filters
	}
	enabled := 0
	if row.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO routes (id, uri, predicates, filters, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			predicates = excluded.predicates,
			filters = excluded.filters,
			enabled = excluded.enabled`,
		row.ID, row.URI, row.Predicates, filters, enabled)
	if err != nil {
		return fmt.Errorf("failed to save route %s: %w", row.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete route %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
