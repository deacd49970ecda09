package types

import "encoding/json"

// Document identifies a logical document by its external docid. The
// internal dense integer id (doc_numeric_id) never crosses the public
// API surface; it is an implementation detail of the revision store.
type Document struct {
	DocID string
}

// ReservedKeys are stripped from a revision's body before serialization
// and synthesized back in on read.
var ReservedKeys = []string{"_id", "_rev", "_attachments"}

// AttachmentMeta is the metadata row for a single attachment on a
// revision. Content storage itself is the out-of-scope blob collaborator;
// this struct only carries what the revs/attachments tables record.
type AttachmentMeta struct {
	Filename string `json:"-"`
	Key      string `json:"digest"`
	Type     string `json:"content_type,omitempty"`
	Length   int64  `json:"length"`
	Stub     bool   `json:"stub,omitempty"`
}

// Revision is the unit the store reads and writes: one immutable version
// of a document, expanded with the synthesized envelope fields on read.
type Revision struct {
	DocID          string
	RevID          string
	ParentRevID    string // resolved for convenience; storage keys off ParentSequence
	ParentSequence int64  // 0 means root
	Sequence       int64
	Deleted        bool
	Current        bool
	Body           json.RawMessage // stored body: nil after compaction, or for tombstones; GetDocument returns it expanded
	Attachments    map[string]AttachmentMeta
}

// Expanded returns the revision's body with _id, _rev and _attachments
// synthesized in. withAttachmentContent is accepted for interface
// symmetry with the attachment-content collaborator, but this core only
// ever emits attachment metadata.
func (r *Revision) Expanded(withAttachmentContent bool) (json.RawMessage, error) {
	props := map[string]any{}
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, &props); err != nil {
			return nil, err
		}
	}
	for _, k := range ReservedKeys {
		delete(props, k)
	}
	props["_id"] = r.DocID
	props["_rev"] = r.RevID
	atts := map[string]any{}
	for name, meta := range r.Attachments {
		atts[name] = meta
	}
	props["_attachments"] = atts
	if r.Deleted {
		props["_deleted"] = true
	}
	return json.Marshal(props)
}

// StripReserved removes _id, _rev and _attachments from a body before it
// is persisted.
func StripReserved(body json.RawMessage) (json.RawMessage, error) {
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	props := map[string]any{}
	if err := json.Unmarshal(body, &props); err != nil {
		return nil, NewStatusError(400, "invalid JSON body")
	}
	for _, k := range ReservedKeys {
		delete(props, k)
	}
	return json.Marshal(props)
}

// DocRow is a single row returned by GetAllDocs: the current non-deleted
// leaf of one document.
type DocRow struct {
	ID    string
	Key   string
	Rev   string
	Doc   json.RawMessage // only populated when IncludeDocs is set
}

// AllDocsOptions controls GetAllDocs pagination.
type AllDocsOptions struct {
	Limit        int
	Skip         int
	Descending   bool
	IncludeDocs  bool
	UpdateSeq    bool
}

// DocRevPair identifies one candidate revision in a missing-revisions
// negotiation.
type DocRevPair struct {
	DocID string
	RevID string
}

// AllDocsResult is the paginated listing returned by GetAllDocs. TotalRows
// intentionally reflects len(Rows), not the full table: a preserved quirk,
// not a count of the whole collection.
type AllDocsResult struct {
	TotalRows int
	Offset    int
	Rows      []DocRow
	UpdateSeq int64
}
