// Package broadcast runs an embedded, in-process NATS server and exposes a
// small publish/replay API over it. It has no other process to talk to, so
// the server is configured to not listen on a socket and the client
// connects in-process.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
)

const (
	subjectPrefix   = "laminark.events"
	ringBufferSize  = 100
	startupDeadline = 4 * time.Second
)

// Event is a single broadcast occurrence, addressable by a monotonic ID so
// SSE clients can resume with Last-Event-ID after a dropped connection.
type Event struct {
	ID          uint64         `json:"id"`
	ProjectHash string         `json:"project_hash"`
	Kind        string         `json:"kind"`
	Payload     map[string]any `json:"payload"`
	Time        time.Time      `json:"time"`
}

// Bus runs an embedded NATS server, publishes events onto it, and keeps a
// ring buffer of recent events for replay.
type Bus struct {
	srv    *server.Server
	conn   *nc.Conn
	logger *log.Logger

	mu      sync.Mutex
	nextID  uint64
	ring    []Event
	ringPos int
	ringLen int

	subMu     sync.Mutex
	listeners map[int]chan Event
	nextSubID int
}

// New starts an embedded NATS server and an in-process client connection.
func New(logger *log.Logger) (*Bus, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[BROADCAST] ", log.LstdFlags)
	}

	ns, err := server.NewServer(&server.Options{
		DontListen: true, // in-process only; no TCP listener needed
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("broadcast: start embedded nats server: %w", err)
	}
	ns.SetLoggerV2(newServerLogAdapter(logger), false, false, false)

	go ns.Start()
	if !ns.ReadyForConnections(startupDeadline) {
		return nil, fmt.Errorf("broadcast: embedded nats server did not become ready within %s", startupDeadline)
	}

	conn, err := nc.Connect("", nc.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("broadcast: connect in-process client: %w", err)
	}

	b := &Bus{
		srv:       ns,
		conn:      conn,
		logger:    logger,
		ring:      make([]Event, ringBufferSize),
		listeners: map[int]chan Event{},
	}

	if _, err := conn.Subscribe(subjectPrefix+".>", b.onMessage); err != nil {
		conn.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("broadcast: subscribe wildcard: %w", err)
	}

	return b, nil
}

// Publish sends an event onto the bus. It satisfies topic.Broadcaster.
func (b *Bus) Publish(projectHash, kind string, payload map[string]any) {
	b.mu.Lock()
	b.nextID++
	ev := Event{ID: b.nextID, ProjectHash: projectHash, Kind: kind, Payload: payload, Time: time.Now().UTC()}
	b.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Printf("marshal event: %v", err)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, projectHash, kind)
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Printf("publish event: %v", err)
	}
}

// onMessage is the wildcard subscription handler: it is the single place
// events land in the ring buffer and fan out to SSE listeners, regardless
// of which logical subject they were published under.
func (b *Bus) onMessage(msg *nc.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.logger.Printf("unmarshal event: %v", err)
		return
	}

	b.mu.Lock()
	b.ring[b.ringPos] = ev
	b.ringPos = (b.ringPos + 1) % ringBufferSize
	if b.ringLen < ringBufferSize {
		b.ringLen++
	}
	b.mu.Unlock()

	b.subMu.Lock()
	for _, ch := range b.listeners {
		select {
		case ch <- ev:
		default:
			// slow listener; drop rather than block the bus.
		}
	}
	b.subMu.Unlock()
}

// Since returns buffered events with ID greater than lastEventID, oldest
// first, for SSE's Last-Event-ID replay semantics.
func (b *Bus) Since(lastEventID uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for i := 0; i < b.ringLen; i++ {
		idx := (b.ringPos - b.ringLen + i + ringBufferSize) % ringBufferSize
		if b.ring[idx].ID > lastEventID {
			out = append(out, b.ring[idx])
		}
	}
	return out
}

// Subscribe registers a live listener and returns it along with an unsubscribe
// function. Used by the SSE handler to stream new events as they arrive.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, 16)
	b.listeners[id] = ch
	return ch, func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.listeners, id)
		close(ch)
	}
}

// Close shuts down the client connection and the embedded server.
func (b *Bus) Close() {
	b.conn.Close()
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
