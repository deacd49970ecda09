// Package notify is a small in-process change-notification broadcast: an
// observer list held by the store, emitted after commit. Subscribers are
// dispatched in registration order; a subscriber panic is recovered and
// logged rather than aborting the chain or the write that triggered it.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/revtree/ldb/internal/types"
)

// Subscriber receives change events. Implementations must not re-enter a
// write operation on the originating store before returning.
type Subscriber interface {
	ID() string
	OnChange(ctx context.Context, event *types.ChangeEvent)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc struct {
	IDValue string
	Func    func(ctx context.Context, event *types.ChangeEvent)
}

func (f SubscriberFunc) ID() string { return f.IDValue }
func (f SubscriberFunc) OnChange(ctx context.Context, event *types.ChangeEvent) {
	f.Func(ctx, event)
}

// Bus fans a committed write out to every registered subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Register adds a subscriber. Registration order is dispatch order.
func (b *Bus) Register(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Unregister removes a subscriber by id. Reports whether one was found.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.ID() == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish fans event out to every subscriber, sequentially, in
// registration order. OnChange returns nothing, so subscribers that need
// to report failure do so through their own logging; a panic is
// recovered per-subscriber and does not stop the rest of the chain.
func (b *Bus) Publish(ctx context.Context, event *types.ChangeEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("notify: subscriber panicked", "subscriber", s.ID(), "panic", r)
				}
			}()
			s.OnChange(ctx, event)
		}()
	}
}
