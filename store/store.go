// Package store keeps a library of named program images in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/cellvm/pkg/bytecode"
)

// ErrProgramNotFound is returned when no program has the requested name.
var ErrProgramNotFound = errors.New("program not found")

// Entry describes a stored program without decoding it.
type Entry struct {
	Name      string
	Size      int
	Functions int
	UpdatedAt time.Time
}

// Programs is a SQLite-backed library of CBOR program images.
type Programs struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	log    commonlog.Logger
}

// Open opens or creates the library at dbPath.
func Open(dbPath string) (*Programs, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		name TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		functions INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Programs{db: db, dbPath: dbPath, log: commonlog.GetLogger("cellvm.store")}, nil
}

// Close closes the database connection.
func (s *Programs) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put encodes p and stores it under name, replacing any previous version.
func (s *Programs) Put(name string, p *bytecode.Program) error {
	data, err := bytecode.MarshalProgram(p)
	if err != nil {
		return fmt.Errorf("encoding program %s: %w", name, err)
	}
	return s.put(name, data, len(p.Functions()))
}

// PutImage validates a CBOR image and stores it under name.
func (s *Programs) PutImage(name string, data []byte) error {
	p, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		return fmt.Errorf("program %s: %w", name, err)
	}
	return s.put(name, data, len(p.Functions()))
}

func (s *Programs) put(name string, data []byte, funcs int) error {
	if name == "" {
		return errors.New("program name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO programs (name, image, functions, updated_at) VALUES (?, ?, ?, ?)",
		name, data, funcs, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	s.log.Debugf("stored %s (%d bytes, %d functions) in %s", name, len(data), funcs, s.dbPath)
	return nil
}

// Get loads and links the program stored under name.
func (s *Programs) Get(name string) (*bytecode.Program, error) {
	data, err := s.Image(name)
	if err != nil {
		return nil, err
	}
	p, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", name, err)
	}
	return p, nil
}

// Image returns the raw CBOR image stored under name.
func (s *Programs) Image(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT image FROM programs WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}
	return data, nil
}

// List returns all stored programs ordered by name.
func (s *Programs) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, length(image), functions, updated_at FROM programs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Name, &e.Size, &e.Functions, &updated); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the program stored under name.
func (s *Programs) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM programs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return nil
}
