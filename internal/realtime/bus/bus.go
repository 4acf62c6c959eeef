package bus

import (
	"context"
	"sync"

	"github.com/BogBogdan/ot-node/internal/realtime"
)

// Bus carries operation change events between nodes sharing a deployment.
type Bus interface {
	Publish(ctx context.Context, ev realtime.OperationEvent) error
	StartForwarder(ctx context.Context, onMsg func(ev realtime.OperationEvent)) error
	Close() error
}

// memoryBus delivers events to forwarders in the same process. Used when no redis
// address is configured and in tests.
type memoryBus struct {
	mu        sync.RWMutex
	forwarder []func(realtime.OperationEvent)
}

func NewMemoryBus() Bus { return &memoryBus{} }

func (b *memoryBus) Publish(_ context.Context, ev realtime.OperationEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.forwarder {
		f(ev)
	}
	return nil
}

func (b *memoryBus) StartForwarder(_ context.Context, onMsg func(ev realtime.OperationEvent)) error {
	if onMsg == nil {
		return errNoCallback
	}
	b.mu.Lock()
	b.forwarder = append(b.forwarder, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Close() error { return nil }
