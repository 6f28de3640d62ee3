// Package cache persists the symbols of scanned files so that a rescan can
// skip files that did not change.
package cache

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"daelsp/internal/analysis"

	_ "github.com/mattn/go-sqlite3"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// busyTimeout is how long a writer waits for another session sharing the
// database file.
const busyTimeout = 5 * time.Second

// ErrNotFound is returned for paths the cache has no entry for.
var ErrNotFound = errors.New("cache: entry not found")

// Entry is what the cache knows about one file.
type Entry struct {
	Path    string
	URI     string
	ModTime int64
	Size    int64
	Symbols []analysis.Symbol
}

// Filecache is a SQLite backed symbol cache.
type Filecache struct {
	db *sql.DB
}

// NewFilecache opens (or creates) the SQLite database at the provided path,
// enables WAL mode and brings the schema up to date.
func NewFilecache(dbPath string) (*Filecache, error) {
	// immediate transactions take the write lock up front, so busy writers
	// wait out busyTimeout instead of failing on lock upgrade
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer, and ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Filecache{db: db}, nil
}

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// an outdated cache is rebuilt, not migrated
	for _, table := range []string{"symbols", "files"} {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

// withTx is a helper function to execute a function within a transaction.
func (fc *Filecache) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := fc.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Put replaces the entry of e.Path.
func (fc *Filecache) Put(e Entry) error {
	return fc.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
            INSERT INTO files (path, uri, mod_time, size) VALUES (?, ?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET uri = excluded.uri, mod_time = excluded.mod_time, size = excluded.size
        `, e.Path, e.URI, e.ModTime, e.Size); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", e.Path, err)
		}
		if _, err := tx.Exec(`DELETE FROM symbols WHERE path = ?`, e.Path); err != nil {
			return err
		}
		for _, s := range e.Symbols {
			if _, err := tx.Exec(`
                INSERT INTO symbols (path, kind, name, start_offset, end_offset,
                    start_line, start_char, end_line, end_char, detail, container)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            `, e.Path, string(s.Kind), s.Name, s.Start, s.End,
				s.Range.Start.Line, s.Range.Start.Character, s.Range.End.Line, s.Range.End.Character,
				s.Detail, s.Container); err != nil {
				return fmt.Errorf("failed to insert symbol %s: %w", s.Name, err)
			}
		}
		return nil
	})
}

// Get returns the entry of path, or ErrNotFound.
func (fc *Filecache) Get(path string) (Entry, error) {
	e := Entry{Path: path}
	err := fc.db.QueryRow(`SELECT uri, mod_time, size FROM files WHERE path = ?`, path).Scan(&e.URI, &e.ModTime, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	rows, err := fc.db.Query(`
        SELECT kind, name, start_offset, end_offset, start_line, start_char, end_line, end_char, detail, container
        FROM symbols WHERE path = ? ORDER BY rowid
    `, path)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()

	for rows.Next() {
		s := analysis.Symbol{URI: e.URI}
		var kind string
		var r protocol.Range
		if err := rows.Scan(&kind, &s.Name, &s.Start, &s.End,
			&r.Start.Line, &r.Start.Character, &r.End.Line, &r.End.Character,
			&s.Detail, &s.Container); err != nil {
			return Entry{}, err
		}
		s.Kind = analysis.SymbolKind(kind)
		s.Range = r
		e.Symbols = append(e.Symbols, s)
	}
	return e, rows.Err()
}

// Fresh returns the cached symbols of path if the file still has the given
// modification time and size.
func (fc *Filecache) Fresh(path string, modTime, size int64) ([]analysis.Symbol, bool) {
	e, err := fc.Get(path)
	if err != nil || e.ModTime != modTime || e.Size != size {
		return nil, false
	}
	return e.Symbols, true
}

func (fc *Filecache) Delete(path string) error {
	return fc.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM symbols WHERE path = ?`, path); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path)
		return err
	})
}

// Paths lists the cached paths.
func (fc *Filecache) Paths() ([]string, error) {
	rows, err := fc.db.Query(`SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (fc *Filecache) Close() error {
	return fc.db.Close()
}

// StateDir returns the XDG state directory of appName, creating it.
func StateDir(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)
	if err := os.MkdirAll(appStateDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return appStateDir, nil
}
