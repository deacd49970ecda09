package revstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/revtree/ldb/internal/config"
	"github.com/revtree/ldb/internal/notify"
	"github.com/revtree/ldb/internal/types"
	"github.com/revtree/ldb/internal/validation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutRevisionCreatesNewDocument(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev, err := s.PutRevision(ctx, "doc1", "", []byte(`{"color":"red"}`), false)
	if err != nil {
		t.Fatalf("PutRevision: %v", err)
	}
	if rev.DocID != "doc1" {
		t.Fatalf("expected docid doc1, got %q", rev.DocID)
	}
	if rev.RevID == "" || rev.Sequence == 0 {
		t.Fatalf("expected a minted rev id and sequence, got %+v", rev)
	}

	fetched, err := s.GetDocument(ctx, "doc1", "")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if fetched.RevID != rev.RevID {
		t.Fatalf("expected current leaf to be %q, got %q", rev.RevID, fetched.RevID)
	}
}

func TestPutRevisionMintsDocIDWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	rev, err := s.PutRevision(context.Background(), "", "", []byte(`{}`), false)
	if err != nil {
		t.Fatalf("PutRevision: %v", err)
	}
	if rev.DocID == "" {
		t.Fatal("expected a minted docid")
	}
}

func TestPutRevisionUpdatesDemotingParent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":1}`), false)
	if err != nil {
		t.Fatal(err)
	}
	rev2, err := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{"v":2}`), false)
	if err != nil {
		t.Fatalf("PutRevision update: %v", err)
	}

	current, err := s.GetDocument(ctx, "doc1", "")
	if err != nil {
		t.Fatal(err)
	}
	if current.RevID != rev2.RevID {
		t.Fatalf("expected current leaf %q, got %q", rev2.RevID, current.RevID)
	}

	old, err := s.GetDocument(ctx, "doc1", rev1.RevID)
	if err != nil {
		t.Fatalf("expected old revision to still be readable: %v", err)
	}
	if old.Current {
		t.Fatal("expected superseded revision to no longer be current")
	}
}

func TestPutRevisionRejectsStalePrevRevID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":1}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{"v":2}`), false); err != nil {
		t.Fatal(err)
	}

	// rev1 is no longer the current leaf; writing against it again must
	// conflict rather than silently branching.
	_, err = s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{"v":3}`), false)
	if types.StatusCode(err) != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
}

func TestPutRevisionRejectsDeleteWithNoDocIDOrPrevRevID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.PutRevision(context.Background(), "", "", nil, true)
	if types.StatusCode(err) != 400 {
		t.Fatalf("expected 400 deleting with no docid and no prevRevID, got %v", err)
	}
}

func TestPutRevisionRejectsMissingPrevRevID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.PutRevision(context.Background(), "doc1", "1-bogus", []byte(`{}`), false)
	if types.StatusCode(err) != 404 {
		t.Fatalf("expected 404 for unknown prevRevID, got %v", err)
	}
}

func TestPutRevisionDeleteThenResurrect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":1}`), false)
	if err != nil {
		t.Fatal(err)
	}
	tombstone, err := s.PutRevision(ctx, "doc1", rev1.RevID, nil, true)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !tombstone.Deleted {
		t.Fatal("expected tombstone to be marked deleted")
	}
	if tombstone.Body != nil {
		t.Fatalf("expected tombstone body to be null, got %q", tombstone.Body)
	}
	if _, err := s.LoadBody(ctx, "doc1", tombstone.RevID); types.StatusCode(err) != 410 {
		t.Fatalf("expected tombstone's body to read back as 410, got %v", err)
	}

	if _, err := s.GetDocument(ctx, "doc1", ""); types.StatusCode(err) != 404 {
		t.Fatalf("expected deleted document to read as 404, got %v", err)
	}

	resurrected, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":2}`), false)
	if err != nil {
		t.Fatalf("resurrect: %v", err)
	}
	if resurrected.Deleted {
		t.Fatal("expected resurrected revision to not be deleted")
	}

	current, err := s.GetDocument(ctx, "doc1", "")
	if err != nil {
		t.Fatal(err)
	}
	if current.RevID != resurrected.RevID {
		t.Fatalf("expected resurrected revision to be current leaf, got %q", current.RevID)
	}
}

func TestPutRevisionConflictsOnResurrectOverLiveLeaf(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false); err != nil {
		t.Fatal(err)
	}
	_, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":2}`), false)
	if types.StatusCode(err) != 409 {
		t.Fatalf("expected 409 writing with no prevRevID over a live leaf, got %v", err)
	}
}

func TestPutRevisionRunsValidators(t *testing.T) {
	reg := validation.NewRegistry(func(newRev *types.Revision, ctx *validation.Context) bool {
		return false
	})
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), Options{Validators: reg})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, err = s.PutRevision(context.Background(), "doc1", "", []byte(`{"bad":true}`), false)
	if types.StatusCode(err) != 403 {
		t.Fatalf("expected validator rejection as 403, got %v", err)
	}
}

func TestPutRevisionResurrectionValidatesAgainstNilPrevious(t *testing.T) {
	var sawPrevious bool
	reg := validation.NewRegistry(func(newRev *types.Revision, ctx *validation.Context) bool {
		prev, err := ctx.Previous()
		if err != nil {
			t.Fatal(err)
		}
		sawPrevious = prev != nil
		return true
	})
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), Options{Validators: reg})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRevision(ctx, "doc1", rev1.RevID, nil, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sawPrevious = true // reset sentinel before the call under test

	if _, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":2}`), false); err != nil {
		t.Fatalf("resurrect: %v", err)
	}
	if sawPrevious {
		t.Fatal("expected resurrection to validate against a nil previous revision")
	}
}

func TestForceInsertRunsValidatorsWithNoLocalAncestor(t *testing.T) {
	reg := validation.NewRegistry(func(newRev *types.Revision, ctx *validation.Context) bool {
		return false
	})
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), Options{Validators: reg})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	history := []RevisionInput{
		{RevID: "1-aaa", Body: []byte(`{"v":1}`)},
	}
	_, err = s.ForceInsert(context.Background(), "remote-doc", history, nil)
	if types.StatusCode(err) != 403 {
		t.Fatalf("expected validator rejection as 403, got %v", err)
	}
}

func TestGetRevisionHistoryWalksAncestors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev1, _ := s.PutRevision(ctx, "doc1", "", []byte(`{"v":1}`), false)
	rev2, _ := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{"v":2}`), false)
	rev3, err := s.PutRevision(ctx, "doc1", rev2.RevID, []byte(`{"v":3}`), false)
	if err != nil {
		t.Fatal(err)
	}

	history, err := s.GetRevisionHistory(ctx, "doc1", rev3.RevID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 || history[0] != rev3.RevID || history[2] != rev1.RevID {
		t.Fatalf("expected leaf-first 3-entry history, got %v", history)
	}
}

func TestGetAllRevisionsIncludesSupersededRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rev1, _ := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	_, err := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}

	all, err := s.GetAllRevisions(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 revisions on file, got %d", len(all))
	}
}

func TestChangesSinceReturnsOnlyCurrentLeavesInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev1, _ := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	rev2, err := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.PutRevision(ctx, "doc2", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}

	changes, err := s.ChangesSince(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes (one per document's current leaf), got %d", len(changes))
	}
	if changes[0].RevID != rev2.RevID || changes[1].RevID != other.RevID {
		t.Fatalf("expected ascending sequence order, got %q then %q", changes[0].RevID, changes[1].RevID)
	}

	since, err := s.ChangesSince(ctx, changes[0].Sequence, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 1 || since[0].RevID != other.RevID {
		t.Fatalf("expected changesSince to exclude already-seen sequence, got %+v", since)
	}
}

func TestForceInsertFillsStubsForMissingAncestors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	history := []RevisionInput{
		{RevID: "3-ccc", Body: []byte(`{"v":3}`)},
		{RevID: "2-bbb", Body: []byte(`{"v":2}`)},
		{RevID: "1-aaa", Body: []byte(`{"v":1}`)},
	}
	rev, err := s.ForceInsert(ctx, "remote-doc", history, nil)
	if err != nil {
		t.Fatalf("ForceInsert: %v", err)
	}
	if rev.RevID != "3-ccc" {
		t.Fatalf("expected leaf 3-ccc, got %q", rev.RevID)
	}

	full, err := s.GetRevisionHistory(ctx, "remote-doc", "3-ccc")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3-ccc", "2-bbb", "1-aaa"}
	if len(full) != len(want) {
		t.Fatalf("expected history %v, got %v", want, full)
	}
	for i := range want {
		if full[i] != want[i] {
			t.Fatalf("expected history %v, got %v", want, full)
		}
	}

	current, err := s.GetDocument(ctx, "remote-doc", "")
	if err != nil {
		t.Fatal(err)
	}
	if current.RevID != "3-ccc" {
		t.Fatalf("expected current leaf 3-ccc, got %q", current.RevID)
	}
}

func TestForceInsertOnExistingHistoryIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	history := []RevisionInput{
		{RevID: "1-aaa", Body: []byte(`{}`)},
	}
	if _, err := s.ForceInsert(ctx, "doc1", history, nil); err != nil {
		t.Fatal(err)
	}
	rev, err := s.ForceInsert(ctx, "doc1", history, nil)
	if err != nil {
		t.Fatalf("expected re-inserting an already-known history to succeed, got %v", err)
	}
	if rev.RevID != "1-aaa" {
		t.Fatalf("expected leaf 1-aaa, got %q", rev.RevID)
	}
}

func TestForceInsertPublishesSourceOnChangeEvent(t *testing.T) {
	bus := notify.New(nil)
	var gotSource *string
	bus.Register(notify.SubscriberFunc{IDValue: "watcher", Func: func(_ context.Context, event *types.ChangeEvent) {
		gotSource = event.Source
	}})
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), Options{Bus: bus})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	peer := "https://peer.example/db"
	history := []RevisionInput{
		{RevID: "1-aaa", Body: []byte(`{}`)},
	}
	if _, err := s.ForceInsert(context.Background(), "doc1", history, &peer); err != nil {
		t.Fatal(err)
	}
	if gotSource == nil || *gotSource != peer {
		t.Fatalf("expected ChangeEvent.Source %q, got %v", peer, gotSource)
	}
}

func TestFindMissingRevisions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}

	candidates := []types.DocRevPair{
		{DocID: "doc1", RevID: rev1.RevID},
		{DocID: "doc1", RevID: "99-nope"},
		{DocID: "doc2", RevID: "1-anything"},
	}
	missing, err := s.FindMissingRevisions(ctx, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing pairs, got %d: %+v", len(missing), missing)
	}
}

func TestCompactNullsSupersededBodies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{"v":1}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRevision(ctx, "doc1", rev1.RevID, []byte(`{"v":2}`), false); err != nil {
		t.Fatal(err)
	}

	purged, err := s.Compact(ctx)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 row purged, got %d", purged)
	}

	if _, err := s.LoadBody(ctx, "doc1", rev1.RevID); types.StatusCode(err) != 410 {
		t.Fatalf("expected compacted body to read as 410, got %v", err)
	}
}

func TestGetAllDocsListsCurrentNonDeletedLeaves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.PutRevision(ctx, "a", "", []byte(`{}`), false); err != nil {
		t.Fatal(err)
	}
	b, err := s.PutRevision(ctx, "b", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutRevision(ctx, "b", b.RevID, nil, true); err != nil {
		t.Fatal(err)
	}

	result, err := s.GetAllDocs(ctx, types.AllDocsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 1 || result.Rows[0].ID != "a" {
		t.Fatalf("expected only the non-deleted document, got %+v", result.Rows)
	}
	if result.TotalRows != len(result.Rows) {
		t.Fatalf("expected TotalRows to mirror the returned page, got %d vs %d rows", result.TotalRows, len(result.Rows))
	}
}

func TestDocumentCountAndLastSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if count, err := s.DocumentCount(ctx); err != nil || count != 0 {
		t.Fatalf("expected 0 documents on an empty store, got %d, %v", count, err)
	}
	if seq, err := s.LastSequence(ctx); err != nil || seq != 0 {
		t.Fatalf("expected last sequence 0 on an empty store, got %d, %v", seq, err)
	}

	rev1, err := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}
	if count, err := s.DocumentCount(ctx); err != nil || count != 1 {
		t.Fatalf("expected 1 document after create, got %d, %v", count, err)
	}
	if seq, err := s.LastSequence(ctx); err != nil || seq != rev1.Sequence {
		t.Fatalf("expected last sequence %d, got %d, %v", rev1.Sequence, seq, err)
	}

	if _, err := s.PutRevision(ctx, "doc1", rev1.RevID, nil, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count, err := s.DocumentCount(ctx); err != nil || count != 0 {
		t.Fatalf("expected 0 documents after delete, got %d, %v", count, err)
	}
}

func TestPutLocalAndGetLocalBypassRevisionTree(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutLocal(ctx, "_local/cp1", []byte(`{"seq":"42"}`)); err != nil {
		t.Fatal(err)
	}
	body, err := s.GetLocal(ctx, "_local/cp1")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"seq":"42"}` {
		t.Fatalf("unexpected local body: %s", body)
	}

	if err := s.PutLocal(ctx, "_local/cp1", []byte(`{"seq":"43"}`)); err != nil {
		t.Fatal(err)
	}
	body, err = s.GetLocal(ctx, "_local/cp1")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"seq":"43"}` {
		t.Fatalf("expected upsert to overwrite, got %s", body)
	}

	if err := s.DeleteLocal(ctx, "_local/cp1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetLocal(ctx, "_local/cp1"); types.StatusCode(err) != 404 {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestOpenAppliesConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	cfgPath := filepath.Join(dir, "ldb.toml")
	customAttachDir := filepath.Join(dir, "custom-attachments")

	if err := config.Write(cfgPath, config.Options{SchemaDir: customAttachDir}); err != nil {
		t.Fatalf("config.Write: %v", err)
	}

	s, err := Open(context.Background(), dbPath, Options{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.AttachmentDir() != customAttachDir {
		t.Fatalf("expected overlay attachment dir %q, got %q", customAttachDir, s.AttachmentDir())
	}
	if _, err := os.Stat(customAttachDir); err != nil {
		t.Fatalf("expected overlay attachment directory to exist: %v", err)
	}
}

func TestPruneRevisionsTrimsDeepHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rev, err := s.PutRevision(ctx, "doc1", "", []byte(`{}`), false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		rev, err = s.PutRevision(ctx, "doc1", rev.RevID, []byte(`{}`), false)
		if err != nil {
			t.Fatal(err)
		}
	}
	// 5 revisions on file now (1 root + 4 updates).

	pruned, err := s.PruneRevisions(ctx, "doc1", 2)
	if err != nil {
		t.Fatalf("PruneRevisions: %v", err)
	}
	if pruned != 3 {
		t.Fatalf("expected 3 revisions pruned (keeping the leaf and 1 ancestor), got %d", pruned)
	}

	all, err := s.GetAllRevisions(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 revisions remaining, got %d", len(all))
	}
}
