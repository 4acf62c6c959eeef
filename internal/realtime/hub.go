package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

const subscriberBuffer = 64

// Subscriber receives the events of a single operation.
type Subscriber struct {
	ID          uuid.UUID
	OperationID string
	Outbound    chan OperationEvent
	once        sync.Once
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.Outbound) })
}

// Hub fans operation events out to local subscribers. Slow subscribers drop events
// instead of blocking the publisher.
type Hub struct {
	log  *logger.Logger
	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]*Subscriber
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("service", "OperationEventHub"),
		subs: map[string]map[uuid.UUID]*Subscriber{},
	}
}

func (h *Hub) Subscribe(operationID string) *Subscriber {
	s := &Subscriber{
		ID:          uuid.New(),
		OperationID: operationID,
		Outbound:    make(chan OperationEvent, subscriberBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[operationID] == nil {
		h.subs[operationID] = map[uuid.UUID]*Subscriber{}
	}
	h.subs[operationID][s.ID] = s
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if set := h.subs[s.OperationID]; set != nil {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.subs, s.OperationID)
		}
	}
	h.mu.Unlock()
	s.close()
}

func (h *Hub) Broadcast(ev OperationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[ev.OperationID] {
		select {
		case s.Outbound <- ev:
		default:
			h.log.Warn("dropping operation event for slow subscriber", "operation_id", ev.OperationID, "status", ev.Status)
		}
	}
}

func (h *Hub) Subscribers(operationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[operationID])
}
