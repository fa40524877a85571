package hub

import (
	"encoding/json"
	"sync"

	"tokenflow/logger"
	"tokenflow/models"
)

// Subscriber is one attached local client. Messages are delivered through a
// buffered channel; the hub never blocks on a subscriber.
type Subscriber struct {
	send chan []byte
	once sync.Once
}

// Messages returns the subscriber's delivery channel. It is closed when the
// subscriber is detached.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans out connection-status changes, raw relayed feed messages and trade
// notifications to every attached subscriber. Delivery to one subscriber
// never blocks delivery to others: a subscriber whose buffer is full is
// dropped from the fan-out set.
type Hub struct {
	mu            sync.RWMutex
	subscribers   map[*Subscriber]struct{}
	lastConnected bool

	buffer int
	log    *logger.Log
}

func NewHub(subscriberBuffer int, log *logger.Log) *Hub {
	if subscriberBuffer <= 0 {
		subscriberBuffer = 64
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      subscriberBuffer,
		log:         log,
	}
}

// Attach registers a new subscriber. It immediately receives the last known
// connection status so late joiners see the current state; everything else
// it receives is future messages only.
func (h *Hub) Attach() *Subscriber {
	sub := &Subscriber{send: make(chan []byte, h.buffer)}

	// The snapshot is queued while the channel is still private: once the
	// subscriber is registered, a concurrent broadcast may fill its buffer
	// and drop it, closing the channel.
	h.mu.Lock()
	if payload, err := json.Marshal(models.NewConnectionStatusMessage(h.lastConnected)); err == nil {
		sub.send <- payload
	}
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.log.WithComponent("fanout_hub").WithFields(logger.Fields{"subscribers": count}).Info("subscriber attached")
	return sub
}

// Detach removes a subscriber and closes its channel. Detaching twice is
// safe.
func (h *Hub) Detach(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		sub.close()
		h.log.WithComponent("fanout_hub").WithFields(logger.Fields{"subscribers": count}).Info("subscriber detached")
	}
}

// IsExternalConnected reports the last broadcast connection status.
func (h *Hub) IsExternalConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastConnected
}

// BroadcastStatus publishes an upstream connection-status transition.
func (h *Hub) BroadcastStatus(connected bool) {
	h.mu.Lock()
	h.lastConnected = connected
	h.mu.Unlock()

	payload, err := json.Marshal(models.NewConnectionStatusMessage(connected))
	if err != nil {
		h.log.WithComponent("fanout_hub").WithError(err).Error("failed to marshal connection status")
		return
	}
	h.broadcast(payload)
}

// BroadcastRaw relays an upstream feed message unchanged.
func (h *Hub) BroadcastRaw(raw []byte) {
	h.broadcast(raw)
}

// BroadcastTrade publishes a trade notification with the venue name and the
// raw order response.
func (h *Hub) BroadcastTrade(venue string, data json.RawMessage) {
	payload, err := json.Marshal(models.NewTradeNotificationMessage(venue, data))
	if err != nil {
		h.log.WithComponent("fanout_hub").WithError(err).Error("failed to marshal trade notification")
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	// Sends happen under the read lock so a concurrent Detach cannot close
	// a channel mid-send; they are non-blocking, so the lock is never held
	// on a slow subscriber.
	h.mu.RLock()
	var dropped []*Subscriber
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()

	logger.RecordFlow("hub_broadcasts", len(payload))

	for _, sub := range dropped {
		// Slow subscriber: drop it rather than stall the hub.
		h.log.WithComponent("fanout_hub").Warn("subscriber buffer full, dropping subscriber")
		h.Detach(sub)
	}
}
