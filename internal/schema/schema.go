// Package schema owns the database file path, installs the initial
// schema on a fresh store, verifies the stored schema version, and opens
// the sibling attachment directory. The version check is a single
// recorded PRAGMA user_version tag rather than a numbered-migrations
// directory, since there is only ever one schema generation to install.
package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/revtree/ldb/internal/config"
	"github.com/revtree/ldb/internal/dbengine"
	"github.com/revtree/ldb/internal/types"
)

// CurrentVersion is the schema version this package knows how to install
// and read (PRAGMA user_version).
const CurrentVersion = 1

// IncompatibleThreshold is the version at or above which Open refuses to
// continue, treating it as a schema from a future, incompatible release.
const IncompatibleThreshold = 100

var statements = []string{
	`CREATE TABLE IF NOT EXISTS docs (
		doc_id INTEGER PRIMARY KEY,
		docid TEXT UNIQUE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS docs_docid ON docs(docid)`,
	`CREATE TABLE IF NOT EXISTS revs (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id INTEGER NOT NULL REFERENCES docs(doc_id) ON DELETE CASCADE,
		revid TEXT NOT NULL,
		parent INTEGER REFERENCES revs(sequence) ON DELETE SET NULL,
		current BOOLEAN,
		deleted BOOLEAN DEFAULT 0,
		json BLOB
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS revs_by_id ON revs(revid, doc_id)`,
	`CREATE INDEX IF NOT EXISTS revs_current ON revs(doc_id, current)`,
	`CREATE INDEX IF NOT EXISTS revs_parent ON revs(parent)`,
	`CREATE TABLE IF NOT EXISTS views (
		view_id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		version TEXT,
		lastsequence INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS maps (
		view_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		key TEXT NOT NULL COLLATE JSON,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		sequence INTEGER NOT NULL,
		filename TEXT NOT NULL,
		key BLOB,
		type TEXT,
		length INTEGER,
		UNIQUE(sequence, filename)
	)`,
	`CREATE TABLE IF NOT EXISTS replicators (
		remote TEXT,
		push BOOLEAN,
		last_sequence TEXT,
		UNIQUE(remote, push)
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS locals (
		docid TEXT PRIMARY KEY,
		json BLOB
	)`,
}

// Store bundles the opened engine with its file path and sibling
// attachment directory.
type Store struct {
	Engine        *dbengine.Engine
	Path          string
	AttachmentDir string
}

func attachmentDirFor(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + " attachments"
}

// Open opens (creating if absent) the database at path, installs the
// schema on a fresh store, verifies the version otherwise, applies
// PRAGMA foreign_keys = ON, and opens the sibling attachment directory.
// Any failure closes whatever was partially opened and returns a clean
// "not open" state.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithOptions(ctx, path, config.Options{})
}

// OpenWithOptions is Open with a config.Options overlay applied: a
// positive BusyTimeoutMillis overrides the engine default, and a
// non-empty SchemaDir relocates the sibling attachment directory instead
// of deriving it from path.
func OpenWithOptions(ctx context.Context, path string, opts config.Options) (*Store, error) {
	engine, err := dbengine.OpenWithTimeout(path, opts.BusyTimeoutMillis)
	if err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, engine); err != nil {
		_ = engine.Close()
		return nil, err
	}

	attachmentDir := opts.SchemaDir
	if attachmentDir == "" {
		attachmentDir = attachmentDirFor(path)
	}
	if err := os.MkdirAll(attachmentDir, 0o755); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("schema: open attachment directory: %w", err)
	}

	return &Store{Engine: engine, Path: path, AttachmentDir: attachmentDir}, nil
}

func ensureSchema(ctx context.Context, engine *dbengine.Engine) error {
	version, err := readVersion(ctx, engine)
	if err != nil {
		return err
	}
	if version >= IncompatibleThreshold {
		return fmt.Errorf("schema: stored version %d is incompatible: %w", version, types.ErrSchemaIncompatible)
	}
	if version == 0 {
		for _, stmt := range statements {
			if _, err := engine.ExecuteUpdate(ctx, stmt); err != nil {
				return fmt.Errorf("schema: install: %w", err)
			}
		}
		if err := writeVersion(ctx, engine, CurrentVersion); err != nil {
			return err
		}
	}
	return nil
}

func readVersion(ctx context.Context, engine *dbengine.Engine) (int, error) {
	cur, err := engine.ExecuteQuery(ctx, `PRAGMA user_version`)
	if err != nil {
		return 0, fmt.Errorf("schema: read version: %w", err)
	}
	defer cur.Close()
	var version int
	if cur.Next() {
		if err := cur.Scan(&version); err != nil {
			return 0, fmt.Errorf("schema: read version: %w", err)
		}
	}
	return version, nil
}

func writeVersion(ctx context.Context, engine *dbengine.Engine, version int) error {
	// PRAGMA statements don't accept bound parameters in SQLite.
	stmt := "PRAGMA user_version = " + strconv.Itoa(version)
	if _, err := engine.ExecuteUpdate(ctx, stmt); err != nil {
		return fmt.Errorf("schema: write version: %w", err)
	}
	return nil
}

// Close releases the engine. The attachment directory is left on disk
// (it is owned by the attachment collaborator, not removed by a plain
// close).
func (s *Store) Close() error {
	return s.Engine.Close()
}

// Exists reports whether the database file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DeleteDatabase closes the store (if open) and removes both the
// database file and its attachment directory.
func DeleteDatabase(s *Store, path string) error {
	if s != nil {
		if err := s.Close(); err != nil {
			return fmt.Errorf("schema: delete: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("schema: delete database file: %w", err)
	}
	if err := os.RemoveAll(attachmentDirFor(path)); err != nil {
		return fmt.Errorf("schema: delete attachment directory: %w", err)
	}
	return nil
}
