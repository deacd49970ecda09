package revstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revtree/ldb/internal/types"
)

// attachmentIn is the shape of one entry in an incoming body's
// "_attachments" dictionary: either a stub referring back to the parent
// revision's copy, or a full entry carrying fresh metadata. Content
// bytes themselves are an external blob-store's concern; this core only
// ever persists the metadata row.
type attachmentIn struct {
	Stub     bool   `json:"stub,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Type     string `json:"content_type,omitempty"`
	Length   int64  `json:"length,omitempty"`
}

// applyAttachments hands the _attachments dictionary embedded in the raw
// request body to the attachment bookkeeping for newSequence, resolving
// stubs against parentSequence. It never touches blob content; it only
// mirrors metadata into the attachments table.
func (s *Store) applyAttachments(ctx context.Context, rawBody json.RawMessage, newSequence, parentSequence int64) error {
	if len(rawBody) == 0 {
		return nil
	}
	var envelope struct {
		Attachments map[string]attachmentIn `json:"_attachments"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return types.NewStatusError(400, "invalid JSON body")
	}
	if len(envelope.Attachments) == 0 {
		return nil
	}

	for filename, att := range envelope.Attachments {
		if att.Stub {
			parent, err := s.attachmentMeta(ctx, parentSequence, filename)
			if err != nil {
				return err
			}
			if parent == nil {
				return types.NewStatusError(412, fmt.Sprintf("missing attachment stub for %q", filename))
			}
			att = attachmentIn{Digest: parent.Key, Type: parent.Type, Length: parent.Length}
		}
		if _, err := s.engine.ExecuteUpdate(ctx, `
			INSERT INTO attachments (sequence, filename, key, type, length) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (sequence, filename) DO UPDATE SET key = excluded.key, type = excluded.type, length = excluded.length
		`, newSequence, filename, att.Digest, att.Type, att.Length); err != nil {
			return types.NewStatusError(500, "storage failure writing attachment metadata")
		}
	}
	return nil
}

func (s *Store) attachmentMeta(ctx context.Context, sequence int64, filename string) (*types.AttachmentMeta, error) {
	if sequence == 0 {
		return nil, nil
	}
	cur, err := s.engine.ExecuteQuery(ctx,
		`SELECT key, type, length FROM attachments WHERE sequence = ? AND filename = ?`, sequence, filename)
	if err != nil {
		return nil, types.NewStatusError(500, "storage failure reading attachment metadata")
	}
	defer cur.Close()
	if !cur.Next() {
		return nil, nil
	}
	meta := &types.AttachmentMeta{Filename: filename}
	if err := cur.Scan(&meta.Key, &meta.Type, &meta.Length); err != nil {
		return nil, types.NewStatusError(500, "storage failure reading attachment metadata")
	}
	return meta, nil
}

// attachmentsFor loads the persisted attachment metadata for a
// revision's sequence, used to populate Revision.Attachments on read.
func (s *Store) attachmentsFor(ctx context.Context, sequence int64) (map[string]types.AttachmentMeta, error) {
	cur, err := s.engine.ExecuteQuery(ctx,
		`SELECT filename, key, type, length FROM attachments WHERE sequence = ?`, sequence)
	if err != nil {
		return nil, fmt.Errorf("revstore: attachments for: %w", err)
	}
	defer cur.Close()
	out := map[string]types.AttachmentMeta{}
	for cur.Next() {
		var filename string
		meta := types.AttachmentMeta{}
		if err := cur.Scan(&filename, &meta.Key, &meta.Type, &meta.Length); err != nil {
			return nil, fmt.Errorf("revstore: attachments for: %w", err)
		}
		meta.Filename = filename
		out[filename] = meta
	}
	return out, cur.Err()
}
