package revstore

import (
	"context"
	"fmt"

	"github.com/revtree/ldb/internal/types"
)

// PutLocal writes a local document: a plain key/value row that bypasses
// the revision tree entirely (no rev ids, no history, no replication).
// TouchDB/CouchDB use these for client-side checkpoints and sync
// bookkeeping that should never itself be replicated.
func (s *Store) PutLocal(ctx context.Context, docid string, body []byte) error {
	if docid == "" {
		return types.NewStatusError(400, "local document id required")
	}
	stripped, err := types.StripReserved(body)
	if err != nil {
		return err
	}
	if _, err := s.engine.ExecuteUpdate(ctx, `
		INSERT INTO locals (docid, json) VALUES (?, ?)
		ON CONFLICT (docid) DO UPDATE SET json = excluded.json
	`, docid, []byte(stripped)); err != nil {
		return types.WrapDBError("revstore: put local", err)
	}
	return nil
}

// GetLocal returns the stored body for a local document id, or
// ErrNotFound if none exists.
func (s *Store) GetLocal(ctx context.Context, docid string) ([]byte, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `SELECT json FROM locals WHERE docid = ?`, docid)
	if err != nil {
		return nil, fmt.Errorf("revstore: get local: %w", err)
	}
	defer cur.Close()
	if !cur.Next() {
		return nil, types.NewStatusError(404, "local document not found")
	}
	var body []byte
	if err := cur.Scan(&body); err != nil {
		return nil, fmt.Errorf("revstore: get local: %w", err)
	}
	return body, nil
}

// DeleteLocal removes a local document. Deleting one that does not exist
// is not an error: local documents have no revision history to conflict
// over.
func (s *Store) DeleteLocal(ctx context.Context, docid string) error {
	if _, err := s.engine.ExecuteUpdate(ctx, `DELETE FROM locals WHERE docid = ?`, docid); err != nil {
		return types.WrapDBError("revstore: delete local", err)
	}
	return nil
}
