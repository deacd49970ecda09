package revstore

import (
	"context"
	"fmt"

	"github.com/revtree/ldb/internal/types"
)

// GetDocument returns the named revision of docid (the current leaf, if
// revID is empty) with its body expanded.
func (s *Store) GetDocument(ctx context.Context, docid, revID string) (*types.Revision, error) {
	docNumericID, _, err := s.resolveDocID(ctx, docid, false)
	if err != nil {
		return nil, err
	}
	if docNumericID == 0 {
		return nil, types.NewStatusError(404, "document not found")
	}

	var row *docRow
	if revID == "" {
		leaves, err := s.currentLeaves(ctx, docNumericID)
		if err != nil {
			return nil, err
		}
		// The winning leaf is the one with the lexicographically
		// greatest rev_id token, not the most recently inserted one.
		// This misorders generations >= 10 against single digits
		// ("9-..." sorts after "10-..."); preserved as observed.
		for i := range leaves {
			if leaves[i].deleted {
				continue
			}
			if row == nil || leaves[i].revID > row.revID {
				row = &leaves[i]
			}
		}
		if row == nil {
			return nil, types.NewStatusError(404, "document not found")
		}
	} else {
		row, err = s.rowByRevID(ctx, docNumericID, revID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, types.NewStatusError(404, "revision not found")
		}
	}

	rev := toRevision(docid, *row)
	atts, err := s.attachmentsFor(ctx, row.sequence)
	if err != nil {
		return nil, err
	}
	rev.Attachments = atts
	expanded, err := rev.Expanded(false)
	if err != nil {
		return nil, err
	}
	rev.Body = expanded
	return rev, nil
}

// LoadBody returns only the raw stored body for (docid, revID), without
// expansion — used by callers that already know the envelope fields.
func (s *Store) LoadBody(ctx context.Context, docid, revID string) ([]byte, error) {
	docNumericID, _, err := s.resolveDocID(ctx, docid, false)
	if err != nil {
		return nil, err
	}
	if docNumericID == 0 {
		return nil, types.NewStatusError(404, "document not found")
	}
	row, err := s.rowByRevID(ctx, docNumericID, revID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, types.NewStatusError(404, "revision not found")
	}
	if row.json == nil {
		return nil, types.NewStatusError(410, "revision body has been compacted away")
	}
	return row.json, nil
}

// GetAllRevisions returns every revision on file for docid, whether or
// not it is a current leaf, newest-sequence first.
func (s *Store) GetAllRevisions(ctx context.Context, docid string) ([]*types.Revision, error) {
	docNumericID, _, err := s.resolveDocID(ctx, docid, false)
	if err != nil {
		return nil, err
	}
	if docNumericID == 0 {
		return nil, types.NewStatusError(404, "document not found")
	}
	cur, err := s.engine.ExecuteQuery(ctx, `
		SELECT sequence, doc_id, revid, parent, current, deleted, json
		FROM revs WHERE doc_id = ? ORDER BY sequence DESC`, docNumericID)
	if err != nil {
		return nil, fmt.Errorf("revstore: get all revisions: %w", err)
	}
	defer cur.Close()
	rows, err := scanRows(cur)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Revision, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRevision(docid, r))
	}
	return out, nil
}

// GetRevisionHistory walks the parent chain from (docid, revID) back to
// the root, returning rev ids leaf-first (the given revision itself
// comes first, the root last).
func (s *Store) GetRevisionHistory(ctx context.Context, docid, revID string) ([]string, error) {
	docNumericID, _, err := s.resolveDocID(ctx, docid, false)
	if err != nil {
		return nil, err
	}
	if docNumericID == 0 {
		return nil, types.NewStatusError(404, "document not found")
	}
	row, err := s.rowByRevID(ctx, docNumericID, revID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, types.NewStatusError(404, "revision not found")
	}

	var chain []string
	for {
		chain = append(chain, row.revID)
		if !row.parent.Valid {
			break
		}
		next, err := s.rowBySequence(ctx, row.parent.Int64)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		row = next
	}
	return chain, nil
}

// ChangesSince returns every revision whose sequence is greater than
// since, in ascending sequence order. Only current leaves are reported,
// matching a CouchDB-style "_changes" feed: an older non-leaf revision
// is never itself a change entry.
func (s *Store) ChangesSince(ctx context.Context, since int64, limit int) ([]*types.Revision, error) {
	query := `
		SELECT sequence, doc_id, revid, parent, current, deleted, json
		FROM revs WHERE sequence > ? AND current = 1
		ORDER BY sequence ASC`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	cur, err := s.engine.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("revstore: changes since: %w", err)
	}
	defer cur.Close()
	rows, err := scanRows(cur)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Revision, 0, len(rows))
	for _, r := range rows {
		docid, err := s.docidForNumericID(ctx, r.docID)
		if err != nil {
			return nil, err
		}
		out = append(out, toRevision(docid, r))
	}
	return out, nil
}
