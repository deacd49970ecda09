// Package replication is the bookkeeping half of sync: SQL-backed
// per-(remote, direction) checkpoints, plus the in-memory list of active
// replicator handles keyed by the same pair. The replicator state
// machine itself runs elsewhere; this package only tracks which one is
// running and where it last got to.
package replication

import (
	"context"
	"fmt"

	"github.com/revtree/ldb/internal/dbengine"
)

// Checkpoints persists the last_sequence string per (remote, push) in the
// replicators table.
type Checkpoints struct {
	engine *dbengine.Engine
}

// NewCheckpoints wraps an open engine for checkpoint reads/writes.
func NewCheckpoints(engine *dbengine.Engine) *Checkpoints {
	return &Checkpoints{engine: engine}
}

// LastSequenceWithRemote looks up the checkpoint for (remote, push).
// Returns "" if none has been recorded yet.
func (c *Checkpoints) LastSequenceWithRemote(ctx context.Context, remote string, push bool) (string, error) {
	cur, err := c.engine.ExecuteQuery(ctx,
		`SELECT last_sequence FROM replicators WHERE remote = ? AND push = ?`, remote, push)
	if err != nil {
		return "", fmt.Errorf("replication: last sequence: %w", err)
	}
	defer cur.Close()
	if !cur.Next() {
		return "", nil
	}
	var seq string
	if err := cur.Scan(&seq); err != nil {
		return "", fmt.Errorf("replication: last sequence: %w", err)
	}
	return seq, nil
}

// SetLastSequence upserts the checkpoint for (remote, push).
func (c *Checkpoints) SetLastSequence(ctx context.Context, seq, remote string, push bool) error {
	_, err := c.engine.ExecuteUpdate(ctx, `
		INSERT INTO replicators (remote, push, last_sequence) VALUES (?, ?, ?)
		ON CONFLICT (remote, push) DO UPDATE SET last_sequence = excluded.last_sequence
	`, remote, push, seq)
	if err != nil {
		return fmt.Errorf("replication: set last sequence: %w", err)
	}
	return nil
}
