package revstore

import (
	"context"
	"fmt"

	"github.com/revtree/ldb/internal/types"
)

// FindMissingRevisions filters candidates down to the ones this store
// does not already have, the negotiation step replication pull/push uses
// to avoid re-sending bodies the peer already holds.
func (s *Store) FindMissingRevisions(ctx context.Context, candidates []types.DocRevPair) ([]types.DocRevPair, error) {
	byDoc := map[string][]string{}
	order := []string{}
	for _, c := range candidates {
		if _, ok := byDoc[c.DocID]; !ok {
			order = append(order, c.DocID)
		}
		byDoc[c.DocID] = append(byDoc[c.DocID], c.RevID)
	}

	var missing []types.DocRevPair
	for _, docid := range order {
		docNumericID, _, err := s.resolveDocID(ctx, docid, false)
		if err != nil {
			return nil, err
		}
		have := map[string]bool{}
		if docNumericID != 0 {
			cur, err := s.engine.ExecuteQuery(ctx, `SELECT revid FROM revs WHERE doc_id = ?`, docNumericID)
			if err != nil {
				return nil, fmt.Errorf("revstore: find missing revisions: %w", err)
			}
			for cur.Next() {
				var revid string
				if err := cur.Scan(&revid); err != nil {
					cur.Close()
					return nil, fmt.Errorf("revstore: find missing revisions: %w", err)
				}
				have[revid] = true
			}
			if err := cur.Err(); err != nil {
				cur.Close()
				return nil, fmt.Errorf("revstore: find missing revisions: %w", err)
			}
			cur.Close()
		}
		for _, revid := range byDoc[docid] {
			if !have[revid] {
				missing = append(missing, types.DocRevPair{DocID: docid, RevID: revid})
			}
		}
	}
	return missing, nil
}
