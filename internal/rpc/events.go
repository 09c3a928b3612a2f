package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/dashsend/internal/transfer"
	"github.com/klingon-exchange/dashsend/pkg/logging"
)

// EventType names a transfer lifecycle event pushed to websocket subscribers.
type EventType string

const (
	EventTransferBuilt     EventType = transfer.EventBuilt
	EventTransferSigned    EventType = transfer.EventSigned
	EventTransferBroadcast EventType = transfer.EventBroadcast
	EventTransferFailed    EventType = transfer.EventFailed
)

var knownEvents = map[EventType]bool{
	EventTransferBuilt:     true,
	EventTransferSigned:    true,
	EventTransferBroadcast: true,
	EventTransferFailed:    true,
}

const (
	feedQueueSize   = 128
	subscriberQueue = 32
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingEvery       = pongWait / 2
)

// Event is one frame on the feed. Each frame carries exactly one event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
	Time int64       `json:"time"`
}

// EventFeed fans transfer events out to websocket subscribers.
type EventFeed struct {
	queue chan Event
	log   *logging.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	conn   *websocket.Conn
	out    chan []byte
	filter map[EventType]bool // empty means everything
	once   sync.Once
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.out) })
}

// NewEventFeed returns an idle feed. Run must be started for events to flow.
func NewEventFeed() *EventFeed {
	return &EventFeed{
		queue: make(chan Event, feedQueueSize),
		subs:  make(map[*subscriber]struct{}),
		log:   logging.GetDefault().Component("events"),
	}
}

// Publish queues an event. It never blocks; when the queue is full the event
// is dropped and logged.
func (f *EventFeed) Publish(t EventType, data interface{}) {
	select {
	case f.queue <- Event{Type: t, Data: data, Time: time.Now().Unix()}:
	default:
		f.log.Warn("Event queue full, dropping", "type", t)
	}
}

// Subscribers reports how many websocket clients are attached.
func (f *EventFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Run delivers queued events until ctx ends, then disconnects everyone.
func (f *EventFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.closed = true
			for sub := range f.subs {
				sub.stop()
			}
			f.subs = map[*subscriber]struct{}{}
			f.mu.Unlock()
			return

		case ev := <-f.queue:
			f.deliver(ev)
		}
	}
}

func (f *EventFeed) deliver(ev Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		f.log.Error("Failed to encode event", "type", ev.Type, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.out <- frame:
		default:
			// Slow reader; cut it loose rather than stall the feed.
			f.log.Debug("Dropping slow subscriber")
			delete(f.subs, sub)
			sub.stop()
		}
	}
}

func (f *EventFeed) attach(sub *subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.subs[sub] = struct{}{}
	f.log.Debug("Subscriber attached", "subscribers", len(f.subs))
	return true
}

func (f *EventFeed) detach(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		sub.stop()
	}
}

// parseEventFilter reads the comma separated "events" query value.
func parseEventFilter(raw string) (map[EventType]bool, error) {
	filter := make(map[EventType]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t := EventType(name)
		if !knownEvents[t] {
			return nil, fmt.Errorf("unknown event %q", name)
		}
		filter[t] = true
	}
	return filter, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS upgrades a GET /ws request. An optional ?events=a,b query limits
// which event types the subscriber receives.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query().Get("events"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, out: make(chan []byte, subscriberQueue), filter: filter}
	if !s.events.attach(sub) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go s.writeEvents(sub)
	go s.drainClient(sub)
}

// drainClient discards inbound frames so control messages get processed, and
// detaches the subscriber when the peer goes away.
func (s *Server) drainClient(sub *subscriber) {
	defer func() {
		s.events.detach(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read error", "error", err)
			}
			return
		}
	}
}

func (s *Server) writeEvents(sub *subscriber) {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.out:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
