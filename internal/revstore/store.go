// Package revstore is the hard core of the database: it owns the docs
// and revs tables, enforces the revision-tree invariants, and implements
// Put, ForceInsert, GetDocument, LoadBody, GetAllRevisions,
// GetRevisionHistory, ChangesSince, FindMissingRevisions and Compact.
//
// Plain database/sql access through a thin engine wrapper,
// fmt.Errorf-wrapped sentinel errors, and one small file per concern
// rather than one monolithic store file.
package revstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/revtree/ldb/internal/config"
	"github.com/revtree/ldb/internal/dbengine"
	"github.com/revtree/ldb/internal/idutil"
	"github.com/revtree/ldb/internal/notify"
	"github.com/revtree/ldb/internal/schema"
	"github.com/revtree/ldb/internal/types"
	"github.com/revtree/ldb/internal/validation"
)

// Store is the revision store: one opened schema.Store, an optional
// validator chain, and a change-notification bus. Not safe for
// concurrent use — callers serialize their own access.
type Store struct {
	schema     *schema.Store
	engine     *dbengine.Engine
	validators *validation.Registry
	bus        *notify.Bus
}

// Options configures a new Store. Validators and Bus may be left nil;
// a nil Validators registry approves every write, and a nil Bus makes
// change notification a no-op. ConfigPath, if set,
// points at an ldb.toml overlay (busy timeout, schema dir) loaded via
// internal/config before the engine opens.
type Options struct {
	Validators *validation.Registry
	Bus        *notify.Bus
	ConfigPath string
}

// Open opens (or creates) the database at path and returns a ready
// Store.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	var cfg config.Options
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	s, err := schema.OpenWithOptions(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Validators == nil {
		opts.Validators = validation.NewRegistry()
	}
	if opts.Bus == nil {
		opts.Bus = notify.New(nil)
	}
	return &Store{schema: s, engine: s.Engine, validators: opts.Validators, bus: opts.Bus}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.schema.Close()
}

// AttachmentDir exposes the sibling attachment directory path for an
// external blob-store collaborator to use.
func (s *Store) AttachmentDir() string {
	return s.schema.AttachmentDir
}

// docRow is the raw shape of one revs row, before expansion into
// types.Revision.
type docRow struct {
	sequence int64
	docID    int64
	revID    string
	parent   sql.NullInt64
	current  bool
	deleted  bool
	json     []byte
}

// resolveDocID looks up the internal doc_numeric_id for docid, inserting
// a fresh docs row (and, if docid is empty, minting one) when
// createIfMissing is set.
func (s *Store) resolveDocID(ctx context.Context, docid string, createIfMissing bool) (int64, string, error) {
	if docid != "" {
		cur, err := s.engine.ExecuteQuery(ctx, `SELECT doc_id FROM docs WHERE docid = ?`, docid)
		if err != nil {
			return 0, "", fmt.Errorf("revstore: resolve doc id: %w", err)
		}
		defer cur.Close()
		if cur.Next() {
			var id int64
			if err := cur.Scan(&id); err != nil {
				return 0, "", fmt.Errorf("revstore: resolve doc id: %w", err)
			}
			return id, docid, nil
		}
	}
	if !createIfMissing {
		return 0, docid, nil
	}
	if docid == "" {
		docid = idutil.NewDocID()
	}
	res, err := s.engine.ExecuteUpdate(ctx, `INSERT INTO docs (docid) VALUES (?)`, docid)
	if err != nil {
		return 0, "", fmt.Errorf("revstore: insert doc: %w", err)
	}
	id, err := dbengine.LastInsertID(res)
	if err != nil {
		return 0, "", err
	}
	return id, docid, nil
}

// currentLeaves returns every current=1 row for docNumericID, most
// recent sequence first.
func (s *Store) currentLeaves(ctx context.Context, docNumericID int64) ([]docRow, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `
		SELECT sequence, doc_id, revid, parent, current, deleted, json
		FROM revs WHERE doc_id = ? AND current = 1
		ORDER BY sequence DESC`, docNumericID)
	if err != nil {
		return nil, fmt.Errorf("revstore: current leaves: %w", err)
	}
	defer cur.Close()
	return scanRows(cur)
}

func scanRows(cur *dbengine.ResultCursor) ([]docRow, error) {
	var rows []docRow
	for cur.Next() {
		var r docRow
		if err := cur.Scan(&r.sequence, &r.docID, &r.revID, &r.parent, &r.current, &r.deleted, &r.json); err != nil {
			return nil, fmt.Errorf("revstore: scan row: %w", err)
		}
		rows = append(rows, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("revstore: scan row: %w", err)
	}
	return rows, nil
}

func (s *Store) rowByRevID(ctx context.Context, docNumericID int64, revID string) (*docRow, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `
		SELECT sequence, doc_id, revid, parent, current, deleted, json
		FROM revs WHERE doc_id = ? AND revid = ?`, docNumericID, revID)
	if err != nil {
		return nil, fmt.Errorf("revstore: row by rev id: %w", err)
	}
	defer cur.Close()
	rows, err := scanRows(cur)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func toRevision(docid string, r docRow) *types.Revision {
	return &types.Revision{
		DocID:          docid,
		RevID:          r.revID,
		ParentSequence: r.parent.Int64,
		Sequence:       r.sequence,
		Deleted:        r.deleted,
		Current:        r.current,
		Body:           r.json,
	}
}

func (s *Store) rowBySequence(ctx context.Context, sequence int64) (*docRow, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `
		SELECT sequence, doc_id, revid, parent, current, deleted, json
		FROM revs WHERE sequence = ?`, sequence)
	if err != nil {
		return nil, fmt.Errorf("revstore: row by sequence: %w", err)
	}
	defer cur.Close()
	rows, err := scanRows(cur)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) docidForNumericID(ctx context.Context, docNumericID int64) (string, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `SELECT docid FROM docs WHERE doc_id = ?`, docNumericID)
	if err != nil {
		return "", fmt.Errorf("revstore: docid for numeric id: %w", err)
	}
	defer cur.Close()
	if !cur.Next() {
		return "", types.NewStatusError(404, "document not found")
	}
	var docid string
	if err := cur.Scan(&docid); err != nil {
		return "", fmt.Errorf("revstore: docid for numeric id: %w", err)
	}
	return docid, nil
}
