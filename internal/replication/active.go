package replication

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/revtree/ldb/internal/config"
)

// defaultMaxStartRetries is used when no config.ReplicationOptions
// overlay (or a non-positive MaxStartRetries) was supplied.
const defaultMaxStartRetries = 3

// Replicator is the network replicator state machine's own interface;
// this package only starts, stops and tracks handles that satisfy it.
type Replicator interface {
	Remote() string
	Push() bool
	Continuous() bool
	Start(ctx context.Context) error
	Stop()
}

// Factory constructs a new, unstarted Replicator for (remote, push,
// continuous). Supplied by the caller since the state machine itself is
// external.
type Factory func(remote string, push, continuous bool) Replicator

// Registry tracks the active replicators keyed by (remote, push), owned
// by the database and mutated only by Replicate and ReplicatorDidStop.
type Registry struct {
	mu              sync.Mutex
	active          []Replicator
	factory         Factory
	maxStartRetries int
}

// NewRegistry builds a Registry that mints new replicators via factory,
// retrying a flaky Start up to defaultMaxStartRetries times.
func NewRegistry(factory Factory) *Registry {
	return NewRegistryWithOptions(factory, config.ReplicationOptions{})
}

// NewRegistryWithOptions is NewRegistry with a config.ReplicationOptions
// overlay applied (a loaded ldb.toml's [replication] table).
func NewRegistryWithOptions(factory Factory, opts config.ReplicationOptions) *Registry {
	retries := opts.MaxStartRetries
	if retries <= 0 {
		retries = defaultMaxStartRetries
	}
	return &Registry{factory: factory, maxStartRetries: retries}
}

// ActiveReplicator does a linear lookup by (remote, push).
func (r *Registry) ActiveReplicator(url string, push bool) Replicator {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.active {
		if rep.Remote() == url && rep.Push() == push {
			return rep
		}
	}
	return nil
}

// Replicate returns the existing replicator for (url, push) if one is
// active, or constructs, appends and starts a new one. Start is retried
// with bounded exponential backoff so a start that merely lost a race
// with the network doesn't need a second manual call.
func (r *Registry) Replicate(ctx context.Context, url string, push, continuous bool) (Replicator, error) {
	if existing := r.ActiveReplicator(url, push); existing != nil {
		return existing, nil
	}

	rep := r.factory(url, push, continuous)

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), uint64(r.maxStartRetries)), ctx)

	if err := backoff.Retry(func() error {
		return rep.Start(ctx)
	}, b); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active = append(r.active, rep)
	r.mu.Unlock()
	return rep, nil
}

// ReplicatorDidStop removes r from the active list by identity.
func (r *Registry) ReplicatorDidStop(rep Replicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, active := range r.active {
		if active == rep {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return
		}
	}
}

// Active returns a snapshot of the currently active replicators.
func (r *Registry) Active() []Replicator {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Replicator, len(r.active))
	copy(out, r.active)
	return out
}
