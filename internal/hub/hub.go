// Package hub fans progress events out to every connected observer.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/veranemoloko/audio-downloader/internal/domain"
	"github.com/veranemoloko/audio-downloader/internal/metrics"
)

// ObserverID identifies one subscription.
type ObserverID uint64

// Subscription is the observer side of the hub. Events is closed when the
// observer is unsubscribed, evicted, or the hub is closed.
type Subscription struct {
	ID           ObserverID
	Events       <-chan domain.ProgressEvent
	SubscribedAt time.Time
}

type observer struct {
	events       chan domain.ProgressEvent
	subscribedAt time.Time
}

// Hub is a synchronized registry of observers. Publish never blocks on a
// slow observer: one whose buffer is full is evicted instead.
type Hub struct {
	mu        sync.RWMutex
	observers map[ObserverID]*observer
	nextID    ObserverID
	buffer    int
	closed    bool
	logger    *slog.Logger
}

// New creates a Hub where each observer buffers up to buffer events.
func New(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		observers: make(map[ObserverID]*observer),
		buffer:    buffer,
		logger:    logger,
	}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	obs := &observer{
		events:       make(chan domain.ProgressEvent, h.buffer),
		subscribedAt: time.Now(),
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.closed {
		close(obs.events)
	} else {
		h.observers[id] = obs
	}
	count := len(h.observers)
	h.mu.Unlock()

	metrics.Observers.Set(float64(count))
	h.logger.Debug("observer subscribed", "observer_id", id, "observers", count)

	return &Subscription{ID: id, Events: obs.events, SubscribedAt: obs.subscribedAt}
}

// Unsubscribe removes an observer and closes its channel. Unknown or already
// removed ids are ignored. After Unsubscribe returns no further events are
// delivered to that observer.
func (h *Hub) Unsubscribe(id ObserverID) {
	if h.remove(id) {
		h.logger.Debug("observer unsubscribed", "observer_id", id)
	}
}

func (h *Hub) remove(id ObserverID) bool {
	h.mu.Lock()
	obs, ok := h.observers[id]
	if ok {
		delete(h.observers, id)
		close(obs.events)
	}
	count := len(h.observers)
	h.mu.Unlock()

	if ok {
		metrics.Observers.Set(float64(count))
	}
	return ok
}

// Publish delivers ev to a snapshot of the observers subscribed at call time.
// Sequential calls are received by each observer in the same order.
func (h *Hub) Publish(ev domain.ProgressEvent) {
	var evicted []ObserverID

	h.mu.RLock()
	for id, obs := range h.observers {
		select {
		case obs.events <- ev:
		default:
			evicted = append(evicted, id)
		}
	}
	h.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()

	for _, id := range evicted {
		if h.remove(id) {
			h.logger.Warn("observer evicted: delivery failed, buffer full",
				"observer_id", id,
				"job_id", ev.JobID,
			)
		}
	}
}

// Len returns the number of subscribed observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close removes every observer and rejects later subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, obs := range h.observers {
		delete(h.observers, id)
		close(obs.events)
	}
	h.mu.Unlock()

	metrics.Observers.Set(0)
}
