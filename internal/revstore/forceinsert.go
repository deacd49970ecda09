package revstore

import (
	"context"

	"github.com/revtree/ldb/internal/dbengine"
	"github.com/revtree/ldb/internal/types"
)

// RevisionInput is one entry of a history array passed to ForceInsert,
// ordered newest first (history[0] is the revision being inserted,
// history[len-1] is the oldest ancestor given).
type RevisionInput struct {
	RevID   string
	Body    []byte
	Deleted bool
}

// ForceInsert inserts a foreign revision history verbatim, the way
// incoming replication does it: unlike PutRevision it does not mint new
// rev ids and does not require the caller to hold the current leaf. It
// fills in stub rows (null body, current = 0) for every ancestor in the
// history not already present locally; only the leaf's body is stored.
// If validators are registered, the new leaf
// is validated against the newest ancestor already present locally
// (possibly none, for a history grafted onto an empty document). source
// identifies the originating peer and is carried onto the emitted
// ChangeEvent so a replicator can recognize its own writes and avoid
// pushing them straight back out.
func (s *Store) ForceInsert(ctx context.Context, docid string, history []RevisionInput, source *string) (*types.Revision, error) {
	if len(history) == 0 {
		return nil, types.NewStatusError(400, "empty revision history")
	}

	if err := s.engine.Begin(ctx); err != nil {
		return nil, err
	}
	rev, err := s.forceInsertLocked(ctx, docid, history)
	if err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return nil, err
	}
	if err := s.engine.End(ctx); err != nil {
		return nil, err
	}
	if rev != nil {
		s.bus.Publish(ctx, &types.ChangeEvent{Revision: rev, Sequence: rev.Sequence, Source: source})
	}
	return rev, nil
}

func (s *Store) forceInsertLocked(ctx context.Context, docid string, history []RevisionInput) (*types.Revision, error) {
	docNumericID, docid, err := s.resolveDocID(ctx, docid, true)
	if err != nil {
		return nil, err
	}

	if s.validators.Len() > 0 {
		// The common ancestor is the newest rev_id in history[1:] already
		// present locally (may be none, when grafting onto an empty
		// document); validate the incoming leaf against it before any row
		// is written.
		var ancestor *docRow
		for _, entry := range history[1:] {
			row, err := s.rowByRevID(ctx, docNumericID, entry.RevID)
			if err != nil {
				return nil, err
			}
			if row != nil {
				ancestor = row
				break
			}
		}
		leafBody, err := types.StripReserved(history[0].Body)
		if err != nil {
			return nil, err
		}
		candidate := &types.Revision{
			DocID:   docid,
			RevID:   history[0].RevID,
			Deleted: history[0].Deleted,
			Current: true,
			Body:    leafBody,
		}
		if ancestor != nil {
			candidate.ParentRevID = ancestor.revID
			candidate.ParentSequence = ancestor.sequence
		}
		status, message := s.validators.Run(candidate, s.previousLoader(ancestor))
		if status != 200 {
			return nil, types.NewStatusError(status, message)
		}
	}

	// Walk oldest to newest, inserting any row that isn't already
	// present as a stub (no body, current = 0), so every ancestor chain
	// link exists before we link the next one.
	var parentSequence int64
	var parentSeqValid bool
	var newestExisting *docRow

	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		existing, err := s.rowByRevID(ctx, docNumericID, entry.RevID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			parentSequence = existing.sequence
			parentSeqValid = true
			newestExisting = existing
			continue
		}

		isLeaf := i == 0
		body, err := types.StripReserved(entry.Body)
		if err != nil {
			return nil, err
		}

		var parentArg any
		if parentSeqValid {
			parentArg = parentSequence
		}
		var bodyArg any
		if isLeaf && !entry.Deleted {
			bodyArg = []byte(body)
		}
		res, err := s.engine.ExecuteUpdate(ctx, `
			INSERT INTO revs (doc_id, revid, parent, current, deleted, json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			docNumericID, entry.RevID, parentArg, isLeaf, entry.Deleted, bodyArg)
		if err != nil {
			return nil, types.WrapDBError("revstore: force insert row", err)
		}
		sequence, err := dbengine.LastInsertID(res)
		if err != nil {
			return nil, err
		}

		if isLeaf {
			if err := s.applyAttachments(ctx, entry.Body, sequence, parentSequence); err != nil {
				return nil, err
			}
			// Unlike PutRevision, force-inserting a foreign history never
			// flips existing local leaves to current=0: it grafts a new
			// branch, which may leave the document with multiple current
			// leaves (a conflict) for replication to surface.
			row, err := s.rowBySequence(ctx, sequence)
			if err != nil {
				return nil, err
			}
			return toRevision(docid, *row), nil
		}

		parentSequence = sequence
		parentSeqValid = true
	}

	// Every entry in the history already existed: nothing new was
	// inserted, and the leaf is whatever the newest entry already was.
	if newestExisting != nil {
		return toRevision(docid, *newestExisting), nil
	}
	return nil, types.NewStatusError(409, "history contains no new revisions")
}
