// Package notify fans settlement status out to the WebSocket connections
// waiting on a txid.
package notify

import (
	"sync"

	"github.com/google/logger"
	"github.com/susu3304/falta1/internal/model"
)

const subscriptionBuffer = 4

// Hub holds the local subscribers of this instance, keyed by txid.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	TxID string
	C    <-chan model.StatusMessage

	c    chan model.StatusMessage
	hub  *Hub
	once sync.Once
}

func (h *Hub) Subscribe(txID string) *Subscription {
	c := make(chan model.StatusMessage, subscriptionBuffer)
	s := &Subscription{TxID: txID, C: c, c: c, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[txID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[txID] = set
	}
	set[s] = struct{}{}
	return s
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.TxID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.TxID)
			}
		}
		close(s.c)
	})
}

// Deliver hands msg to every local subscriber of its txid. A subscriber
// whose buffer is full misses the message and can still ask for the
// current status.
func (h *Hub) Deliver(msg model.StatusMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[msg.TxID] {
		select {
		case s.c <- msg:
		default:
			logger.Warningf("notify: dropped %s status for slow subscriber of %s", msg.Status, msg.TxID)
		}
	}
}

// Subscribers reports how many local subscriptions exist for txID.
func (h *Hub) Subscribers(txID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[txID])
}
