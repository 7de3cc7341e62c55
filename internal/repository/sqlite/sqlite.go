// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and ":memory:" databases make every test fully isolated.
//
// One *DB owns the connection pool. Each aggregate gets its own small store
// type (UserDB, ProjectDB, SnippetDB, ...) that shares the pool, so method
// names stay short (Create, GetByID) without colliding across aggregates.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/devspace/internal/repository"
)

// DB wraps a sql.DB connection pool and hands out the per-aggregate stores.
type DB struct {
	conn *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx so helpers like setTags
// can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/devspace.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
//
// PRAGMAs go into the DSN rather than a one-off Exec: foreign_keys and
// busy_timeout are per-connection settings, and the pool may open several.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same schema.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// newWithConn wraps an existing pool without migrating. Used by tests that
// drive the stores through go-sqlmock.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB                 { return &UserDB{db: db} }
func (db *DB) Projects() *ProjectDB           { return &ProjectDB{db: db} }
func (db *DB) Snippets() *SnippetDB           { return &SnippetDB{db: db} }
func (db *DB) Collaborators() *CollaboratorDB { return &CollaboratorDB{db: db} }
func (db *DB) Stars() *StarDB                 { return &StarDB{db: db} }
func (db *DB) Notifications() *NotificationDB { return &NotificationDB{db: db} }

// withTx runs fn inside a transaction, committing on success and rolling back
// on error. fn must only use tx: with a single pooled connection, touching
// db.conn inside fn would block forever.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent;
// columns added after the first release go through addColumnIfNotExists.
func (db *DB) migrate() error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				role          TEXT NOT NULL DEFAULT 'user',
				is_verified   INTEGER NOT NULL DEFAULT 0,
				github_id     INTEGER UNIQUE,
				avatar_url    TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"projects", `
			CREATE TABLE IF NOT EXISTS projects (
				id                     TEXT PRIMARY KEY,
				owner_id               TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title                  TEXT NOT NULL,
				description            TEXT NOT NULL DEFAULT '',
				is_public              INTEGER NOT NULL DEFAULT 0,
				is_collaborative       INTEGER NOT NULL DEFAULT 0,
				kind                   TEXT NOT NULL DEFAULT 'standard',
				forked_from_project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
				created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_owner_system_kind
				ON projects(owner_id, kind) WHERE kind <> 'standard';`},
		{"project_collaborators", `
			CREATE TABLE IF NOT EXISTS project_collaborators (
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role       TEXT NOT NULL DEFAULT 'viewer',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (project_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_project_collaborators_user ON project_collaborators(user_id);`},
		{"code_snippets", `
			CREATE TABLE IF NOT EXISTS code_snippets (
				id                     TEXT PRIMARY KEY,
				project_id             TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				title                  TEXT NOT NULL,
				content                TEXT NOT NULL DEFAULT '',
				language               TEXT NOT NULL,
				file_path              TEXT NOT NULL DEFAULT '',
				is_public              INTEGER NOT NULL DEFAULT 0,
				allow_collaboration    INTEGER NOT NULL DEFAULT 0,
				forked_from_snippet_id TEXT REFERENCES code_snippets(id) ON DELETE SET NULL,
				forked_from_project_id TEXT REFERENCES projects(id) ON DELETE SET NULL,
				created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_code_snippets_project ON code_snippets(project_id);
			CREATE INDEX IF NOT EXISTS idx_code_snippets_forked_from ON code_snippets(forked_from_snippet_id);
			CREATE INDEX IF NOT EXISTS idx_code_snippets_updated_at ON code_snippets(updated_at);`},
		{"code_snippet_collaborators", `
			CREATE TABLE IF NOT EXISTS code_snippet_collaborators (
				snippet_id TEXT NOT NULL REFERENCES code_snippets(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				role       TEXT NOT NULL DEFAULT 'editor',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (snippet_id, user_id)
			);`},
		{"stars", `
			CREATE TABLE IF NOT EXISTS stars (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
				snippet_id TEXT REFERENCES code_snippets(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				CHECK ((project_id IS NULL) <> (snippet_id IS NULL)),
				UNIQUE (user_id, project_id),
				UNIQUE (user_id, snippet_id)
			);
			CREATE INDEX IF NOT EXISTS idx_stars_snippet ON stars(snippet_id);
			CREATE INDEX IF NOT EXISTS idx_stars_project ON stars(project_id);`},
		{"tags", `
			CREATE TABLE IF NOT EXISTS tags (
				id   TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE
			);
			CREATE TABLE IF NOT EXISTS snippet_tags (
				snippet_id TEXT NOT NULL REFERENCES code_snippets(id) ON DELETE CASCADE,
				tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (snippet_id, tag_id)
			);
			CREATE TABLE IF NOT EXISTS project_tags (
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (project_id, tag_id)
			);`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				actor_id    TEXT NOT NULL DEFAULT '',
				type        TEXT NOT NULL,
				message     TEXT NOT NULL,
				resource_id TEXT NOT NULL DEFAULT '',
				is_read     INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read);`},
	}

	for _, s := range statements {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	// bio arrived with the profile endpoint.
	if err := db.addColumnIfNotExists("users", "bio", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding bio to users: %w", err)
	}
	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. The string check covers drivers other than modernc (sqlmock).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// likePattern escapes LIKE wildcards so a search for "50%" matches literally.
// Use with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// limitArg maps a zero limit to SQLite's "no limit".
func limitArg(opts repository.ListOptions) int {
	if opts.Limit <= 0 {
		return -1
	}
	return opts.Limit
}
