package revstore

import (
	"context"

	"github.com/revtree/ldb/internal/dbengine"
	"github.com/revtree/ldb/internal/types"
)

// Compact nulls out the stored body of every non-current revision,
// reclaiming the bulk of the database's size while keeping the revision
// tree's shape (parent pointers, rev ids) intact for history and
// replication bookkeeping. It finishes with a VACUUM so the freed pages
// are actually returned to the filesystem.
func (s *Store) Compact(ctx context.Context) (purged int64, err error) {
	if err := s.engine.Begin(ctx); err != nil {
		return 0, err
	}
	res, err := s.engine.ExecuteUpdate(ctx, `
		UPDATE revs SET json = NULL
		WHERE current = 0 AND json IS NOT NULL`)
	if err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return 0, types.WrapDBError("revstore: compact", err)
	}
	purged, err = dbengine.Changes(res)
	if err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return 0, err
	}
	if _, err := s.engine.ExecuteUpdate(ctx, `
		DELETE FROM attachments WHERE sequence IN (
			SELECT sequence FROM revs WHERE current = 0 AND json IS NULL
		)`); err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return 0, types.WrapDBError("revstore: compact attachments", err)
	}
	if err := s.engine.End(ctx); err != nil {
		return 0, err
	}
	if err := s.engine.Vacuum(ctx); err != nil {
		return purged, err
	}
	return purged, nil
}
