package revstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/revtree/ldb/internal/types"
)

// PruneRevisions trims each of docid's branches down to maxDepth
// revisions, counting its current leaf as the first (the leaf plus its
// maxDepth-1 nearest ancestors are kept), the way CouchDB's _revs_limit keeps
// long-lived documents from accumulating an unbounded history: a natural
// companion to Compact. A revision kept by any branch (shared ancestry)
// is never pruned even if another branch would have dropped it sooner.
func (s *Store) PruneRevisions(ctx context.Context, docid string, maxDepth int) (int64, error) {
	if maxDepth <= 0 {
		return 0, types.NewStatusError(400, "maxDepth must be positive")
	}
	docNumericID, _, err := s.resolveDocID(ctx, docid, false)
	if err != nil {
		return 0, err
	}
	if docNumericID == 0 {
		return 0, nil
	}

	leaves, err := s.currentLeaves(ctx, docNumericID)
	if err != nil {
		return 0, err
	}

	visited := map[int64]bool{}
	needed := map[int64]bool{}
	for i := range leaves {
		row := &leaves[i]
		depth := 0
		for row != nil {
			visited[row.sequence] = true
			if depth < maxDepth {
				needed[row.sequence] = true
			}
			depth++
			if !row.parent.Valid {
				break
			}
			next, err := s.rowBySequence(ctx, row.parent.Int64)
			if err != nil {
				return 0, err
			}
			row = next
		}
	}

	var toDelete []int64
	for seq := range visited {
		if !needed[seq] {
			toDelete = append(toDelete, seq)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(toDelete))
	args := make([]any, len(toDelete))
	for i, seq := range toDelete {
		placeholders[i] = "?"
		args[i] = seq
	}
	inClause := strings.Join(placeholders, ",")

	if err := s.engine.Begin(ctx); err != nil {
		return 0, err
	}
	if _, err := s.engine.ExecuteUpdate(ctx,
		fmt.Sprintf(`DELETE FROM attachments WHERE sequence IN (%s)`, inClause), args...); err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return 0, types.WrapDBError("revstore: prune attachments", err)
	}
	if _, err := s.engine.ExecuteUpdate(ctx,
		fmt.Sprintf(`DELETE FROM revs WHERE sequence IN (%s)`, inClause), args...); err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return 0, types.WrapDBError("revstore: prune revisions", err)
	}
	if err := s.engine.End(ctx); err != nil {
		return 0, err
	}
	return int64(len(toDelete)), nil
}
