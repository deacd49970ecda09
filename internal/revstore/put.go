package revstore

import (
	"context"

	"github.com/revtree/ldb/internal/dbengine"
	"github.com/revtree/ldb/internal/idutil"
	"github.com/revtree/ldb/internal/types"
)

// PutRevision applies a new revision to docid on top of prevRevID (empty
// for a new document), running the validator chain before it commits.
// deleted marks the new revision as a tombstone; body may be empty in
// that case.
func (s *Store) PutRevision(ctx context.Context, docid, prevRevID string, body []byte, deleted bool) (*types.Revision, error) {
	if docid == "" && prevRevID != "" {
		return nil, types.NewStatusError(400, "prevRevID given without docid")
	}
	if deleted && prevRevID == "" {
		// Per spec: deleted set without prevRevID is always a 400, whether
		// or not docid was supplied — there is nothing to delete.
		return nil, types.NewStatusError(400, "cannot delete a document with no prior revision")
	}

	if err := s.engine.Begin(ctx); err != nil {
		return nil, err
	}
	rev, err := s.putRevisionLocked(ctx, docid, prevRevID, body, deleted)
	if err != nil {
		s.engine.MarkFailed()
		_ = s.engine.End(ctx)
		return nil, err
	}
	if err := s.engine.End(ctx); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, &types.ChangeEvent{Revision: rev, Sequence: rev.Sequence})
	return rev, nil
}

func (s *Store) putRevisionLocked(ctx context.Context, docid, prevRevID string, body []byte, deleted bool) (*types.Revision, error) {
	docNumericID, docid, err := s.resolveDocID(ctx, docid, true)
	if err != nil {
		return nil, err
	}

	var parentRow *docRow
	if prevRevID != "" {
		parentRow, err = s.rowByRevID(ctx, docNumericID, prevRevID)
		if err != nil {
			return nil, err
		}
		if parentRow == nil || !parentRow.current {
			// No current revision matches prevRevID: 409 if the document
			// has some other current leaf (stale write against a moved
			// branch), 404 if it has none at all.
			leaves, lerr := s.currentLeaves(ctx, docNumericID)
			if lerr != nil {
				return nil, lerr
			}
			if len(leaves) > 0 {
				return nil, types.NewStatusError(409, "document update conflict")
			}
			return nil, types.NewStatusError(404, "revision not found")
		}
	}
	resurrection := false
	if prevRevID == "" {
		// No prevRevID: this must either be a brand new document, or we
		// are resurrecting one whose only current leaf is a tombstone.
		leaves, err := s.currentLeaves(ctx, docNumericID)
		if err != nil {
			return nil, err
		}
		for _, leaf := range leaves {
			if !leaf.deleted {
				return nil, types.NewStatusError(409, "document update conflict")
			}
		}
		if len(leaves) > 0 {
			parentRow = &leaves[0]
			resurrection = true
		}
	}

	parentSequence := int64(0)
	if parentRow != nil {
		parentSequence = parentRow.sequence
	}

	strippedBody, err := types.StripReserved(body)
	if err != nil {
		return nil, err
	}

	newRevID, err := idutil.NextRevID(revIDOrEmpty(parentRow))
	if err != nil {
		return nil, err
	}

	// Deletions carry a null body, never "{}" — per spec, tombstone json
	// is null from the start, not merely emptied.
	candidateBody := strippedBody
	if deleted {
		candidateBody = nil
	}
	candidate := &types.Revision{
		DocID:   docid,
		RevID:   newRevID,
		Deleted: deleted,
		Current: true,
		Body:    candidateBody,
	}
	if parentRow != nil {
		candidate.ParentRevID = parentRow.revID
		candidate.ParentSequence = parentSequence
	}

	// Resurrection validates against a nil previous revision even though
	// parentRow (the tombstone) supplies the new row's parent pointer: the
	// write is validator-visible as a first insert, so a rejection reports
	// 403 the same way first-insert validation failure does.
	validatorParent := parentRow
	if resurrection {
		validatorParent = nil
	}
	status, message := s.validators.Run(candidate, s.previousLoader(validatorParent))
	if status != 200 {
		return nil, types.NewStatusError(status, message)
	}

	if parentRow != nil {
		if _, err := s.engine.ExecuteUpdate(ctx, `UPDATE revs SET current = 0 WHERE sequence = ?`, parentRow.sequence); err != nil {
			return nil, types.WrapDBError("revstore: flip parent non-current", err)
		}
	}

	var parentArg any
	if parentRow != nil {
		parentArg = parentSequence
	}
	var bodyArg any
	if !deleted {
		bodyArg = []byte(strippedBody)
	}
	res, err := s.engine.ExecuteUpdate(ctx, `
		INSERT INTO revs (doc_id, revid, parent, current, deleted, json)
		VALUES (?, ?, ?, 1, ?, ?)`,
		docNumericID, newRevID, parentArg, deleted, bodyArg)
	if err != nil {
		return nil, types.WrapDBError("revstore: insert revision", err)
	}
	sequence, err := dbengine.LastInsertID(res)
	if err != nil {
		return nil, err
	}
	candidate.Sequence = sequence

	if err := s.applyAttachments(ctx, body, sequence, parentSequence); err != nil {
		return nil, err
	}
	atts, err := s.attachmentsFor(ctx, sequence)
	if err != nil {
		return nil, err
	}
	candidate.Attachments = atts

	return candidate, nil
}

func revIDOrEmpty(r *docRow) string {
	if r == nil {
		return ""
	}
	return r.revID
}

// previousLoader builds the lazy "previous revision" loader a Validator
// context needs, backed by the already-fetched parent row when one
// exists, so validators can see the revision they're replacing.
func (s *Store) previousLoader(parentRow *docRow) func() (*types.Revision, error) {
	if parentRow == nil {
		return nil
	}
	return func() (*types.Revision, error) {
		row, err := s.rowBySequence(context.Background(), parentRow.sequence)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		docid, err := s.docidForNumericID(context.Background(), row.docID)
		if err != nil {
			return nil, err
		}
		return toRevision(docid, *row), nil
	}
}
