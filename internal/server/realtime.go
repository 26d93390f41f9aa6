package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventCartChanged = "cart-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "storefront-api"
	defaultHeartbeatInterval = 25 * time.Second
)

// RealtimeMessage notifies a user's open streams that their cart changed.
type RealtimeMessage struct {
	UserID     string
	EventType  string
	ProductIDs []string
	Timestamp  time.Time
}

// RealtimeDispatcher fans messages out to every stream of the same user.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

type cartEventPayload struct {
	ProductIDs []string `json:"productIds"`
	Timestamp  string   `json:"timestamp"`
	Source     string   `json:"source"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

func (h *httpHandler) publishCartChange(userID string, productIDs ...string) {
	if h.realtime == nil {
		return
	}
	ids := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		if productID != "" {
			ids = append(ids, productID)
		}
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:     userID,
		EventType:  RealtimeEventCartChanged,
		ProductIDs: ids,
		Timestamp:  h.clock().UTC(),
	})
}

func (h *httpHandler) handleCartEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" || h.realtime == nil {
		respondError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	h.logger.Debug("cart event stream opened", zap.String("user_id", userID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, cartEventPayload{
				ProductIDs: message.ProductIDs,
				Timestamp:  message.Timestamp.Format(time.RFC3339Nano),
				Source:     realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: tick.UTC().Format(time.RFC3339Nano)})
			return true
		}
	})
	h.logger.Debug("cart event stream closed", zap.String("user_id", userID))
}
