package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is the embedded relational+FTS+vector store described in spec.md
// §4.1. A single *Store is shared across all projects in the process; every
// repository method takes an explicit ProjectHash and filters by it.
type Store struct {
	db               *sql.DB
	busyTimeout      time.Duration
	hasVectorSupport bool
	log              *log.Logger
	unavailable      bool
}

// Options configures Open.
type Options struct {
	// BusyTimeout bounds how long a write waits on SQLITE_BUSY before
	// giving up. Per spec.md §4.1, at least 5 seconds.
	BusyTimeout time.Duration
	Logger      *log.Logger
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return o
}

// Open opens (or creates) the SQLite database at path, configures it for
// single-writer/many-reader concurrency, and runs all pending migrations.
// Corruption or a schema mismatch is fatal per spec.md §4.1 (§7 taxonomy
// class 4): Open returns an error and the caller must not construct a
// Store from it.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// SQLite serializes writers; one connection keeps that explicit instead
	// of relying on the driver's internal locking.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-64000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db:          db,
		busyTimeout: opts.BusyTimeout,
		log:         opts.Logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	// modernc.org/sqlite has no native vector extension; the vector index is
	// a regular table queried with an in-Go cosine loop (see
	// internal/store/vectors.go). The capability is therefore always
	// present in this build, but the flag is kept so callers honor the
	// documented degradation contract rather than assuming it.
	s.hasVectorSupport = true

	return s, nil
}

// HasVectorSupport reports whether KNN vector search is available.
// HybridSearch and other read paths use this to decide whether to skip the
// vector leg and degrade to keyword-only search.
func (s *Store) HasVectorSupport() bool {
	return !s.unavailable && s.hasVectorSupport
}

// Unavailable reports whether the Store has been marked fatally broken.
// Once true, every operation returns ErrStoreUnavailable.
func (s *Store) Unavailable() bool { return s.unavailable }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate runs every embedded migration not yet recorded in
// schema_migrations, each inside its own transaction. Migrations are
// idempotent (IF NOT EXISTS everywhere) so re-running a fresh database twice
// is a no-op, satisfying spec.md §8's round-trip law.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read embedded schema dir: %w", err)
	}

	type migration struct {
		version int
		name    string
		sql     string
	}
	migrations := make([]migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, err := versionFromFilename(e.Name())
		if err != nil {
			return fmt.Errorf("migration filename %q: %w", e.Name(), err)
		}
		data, err := schemaFS.ReadFile("schema/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %q: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{version: version, name: e.Name(), sql: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := s.withTx(context.Background(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.sql); err != nil {
				return fmt.Errorf("apply %s: %w", m.name, err)
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, time.Now().UTC(),
			)
			return err
		}); err != nil {
			return err
		}
		s.log.Printf("applied migration %s", m.name)
	}

	return nil
}

func versionFromFilename(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("missing version prefix")
	}
	return strconv.Atoi(prefix)
}

// withTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise. Every multi-statement write in this package goes
// through this helper so index updates (FTS, vectors) stay consistent with
// their base rows, per spec.md §5's shared-resource policy.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if s.unavailable {
		return ErrStoreUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyBusy(err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifyBusy(err)
	}
	return nil
}

func classifyBusy(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "busy") || strings.Contains(strings.ToLower(err.Error()), "locked") {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
