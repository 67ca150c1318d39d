package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

// StreamMessage is what websocket clients receive for each domain event.
type StreamMessage struct {
	ID         string            `json:"id"`
	EventType  string            `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Summary    string            `json:"summary"`
	Category   string            `json:"category"`
	Weight     string            `json:"weight"`
	Polarity   string            `json:"polarity"`
	Entities   []types.SourceRef `json:"entities"`
	Actor      string            `json:"actor,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

func toStreamMessage(evt event.DomainEvent) StreamMessage {
	return StreamMessage{
		ID:         evt.ID,
		EventType:  evt.EventType,
		OccurredAt: evt.OccurredAt,
		Summary:    evt.Summary,
		Category:   evt.Category,
		Weight:     evt.Weight,
		Polarity:   evt.Polarity,
		Entities:   evt.AffectedEntities,
		Actor:      evt.Actor,
		Payload:    evt.Payload,
	}
}

// WSBroadcaster pushes every domain event to connected websocket clients.
// Clients may narrow the stream with entity_type and entity_id query
// parameters. A client that falls behind by more than its buffer is
// disconnected.
type WSBroadcaster struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	bufSize int
}

type wsClient struct {
	entityType string
	entityID   string
	send       chan StreamMessage
	overflow   chan struct{}
	once       sync.Once
}

func (c *wsClient) wants(evt event.DomainEvent) bool {
	if c.entityType == "" && c.entityID == "" {
		return true
	}
	for _, ref := range evt.AffectedEntities {
		if (c.entityType == "" || ref.EntityType == c.entityType) &&
			(c.entityID == "" || ref.EntityID == c.entityID) {
			return true
		}
	}
	return false
}

// NewWSBroadcaster creates a broadcaster with a per-client send buffer.
func NewWSBroadcaster(bufSize int) *WSBroadcaster {
	if bufSize < 1 {
		bufSize = 64
	}
	return &WSBroadcaster{clients: make(map[*wsClient]struct{}), bufSize: bufSize}
}

// ClientCount returns the number of connected clients.
func (b *WSBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *WSBroadcaster) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	msg := toStreamMessage(evt)
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			c.once.Do(func() { close(c.overflow) })
		}
	}
	return nil
}

// ServeHTTP upgrades to WebSocket and streams events until the client
// goes away.
func (b *WSBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("eventbus: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	c := &wsClient{
		entityType: r.URL.Query().Get("entity_type"),
		entityID:   r.URL.Query().Get("entity_id"),
		send:       make(chan StreamMessage, b.bufSize),
		overflow:   make(chan struct{}),
	}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
	}()

	// The stream is one-way; CloseRead handles pings and the close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 {
					log.Printf("eventbus: websocket write: %v", err)
				}
				return
			}
		case <-c.overflow:
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
