package revstore

import (
	"context"
	"fmt"

	"github.com/revtree/ldb/internal/types"
)

// GetAllDocs lists the current, non-deleted leaf of every document, key
// order by docid. TotalRows intentionally reflects only the page
// actually returned rather than the full document count — a preserved
// quirk of the paging approach, not silently "fixed".
func (s *Store) GetAllDocs(ctx context.Context, opts types.AllDocsOptions) (*types.AllDocsResult, error) {
	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT d.docid, r.revid, r.json
		FROM docs d JOIN revs r ON r.doc_id = d.doc_id
		WHERE r.current = 1 AND r.deleted = 0
		ORDER BY d.docid %s`, order)
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Skip > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Skip)
		}
	} else if opts.Skip > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Skip)
	}

	cur, err := s.engine.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("revstore: get all docs: %w", err)
	}
	defer cur.Close()

	var rows []types.DocRow
	for cur.Next() {
		var docid, revid string
		var body []byte
		if err := cur.Scan(&docid, &revid, &body); err != nil {
			return nil, fmt.Errorf("revstore: get all docs: %w", err)
		}
		row := types.DocRow{ID: docid, Key: docid, Rev: revid}
		if opts.IncludeDocs {
			row.Doc = body
		}
		rows = append(rows, row)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("revstore: get all docs: %w", err)
	}

	result := &types.AllDocsResult{
		TotalRows: len(rows),
		Offset:    opts.Skip,
		Rows:      rows,
	}
	if opts.UpdateSeq {
		seq, err := s.LastSequence(ctx)
		if err != nil {
			return nil, err
		}
		result.UpdateSeq = seq
	}
	return result, nil
}

// LastSequence returns the maximum sequence in revs, or 0 if the store
// has no revisions yet. The replicator uses this as the upper bound of
// its own change feed.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM revs`)
	if err != nil {
		return 0, fmt.Errorf("revstore: last sequence: %w", err)
	}
	defer cur.Close()
	var seq int64
	if cur.Next() {
		if err := cur.Scan(&seq); err != nil {
			return 0, fmt.Errorf("revstore: last sequence: %w", err)
		}
	}
	return seq, cur.Err()
}

// DocumentCount returns the number of distinct documents that currently
// have at least one live (current, non-deleted) revision. Documents
// whose only current leaf is a tombstone are not counted.
func (s *Store) DocumentCount(ctx context.Context) (int64, error) {
	cur, err := s.engine.ExecuteQuery(ctx, `
		SELECT COUNT(DISTINCT doc_id) FROM revs WHERE current = 1 AND deleted = 0`)
	if err != nil {
		return 0, fmt.Errorf("revstore: document count: %w", err)
	}
	defer cur.Close()
	var count int64
	if cur.Next() {
		if err := cur.Scan(&count); err != nil {
			return 0, fmt.Errorf("revstore: document count: %w", err)
		}
	}
	return count, cur.Err()
}
