package signalbus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport multiplexes per-channel subscriptions over a single
// websocket connection to a hosted pub/sub relay. Inbound frames are
// tagged with the channel they belong to and fanned out to the matching
// subscriber channel; outbound publishes are serialized onto the same
// socket under a write mutex.
type WSTransport struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]chan RawMessage
	writeMu sync.Mutex
}

type frame struct {
	Channel string `json:"channel"`
	From    string `json:"from"`
	Payload []byte `json:"payload"`
}

// NewWSTransport dials url (a ws:// or wss:// endpoint) and returns a ready
// Transport. A dropped connection is re-dialed only by the read loop,
// after a 250ms pause; Publish and Subscribe write to the current
// connection and return its error without re-dialing.
func NewWSTransport(url string) (*WSTransport, error) {
	t := &WSTransport{url: url, subs: make(map[string]chan RawMessage)}
	if err := t.dial(); err != nil {
		return nil, err
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) dial() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
	if err != nil {
		return fmt.Errorf("dial signaling relay: %w", err)
	}
	t.conn = conn
	return nil
}

func (t *WSTransport) readLoop() {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			log.Printf("SIGNALBUS: relay read error: %v", err)
			time.Sleep(250 * time.Millisecond)
			if err := t.dial(); err != nil {
				log.Printf("SIGNALBUS: relay redial failed: %v", err)
			}
			continue
		}
		t.mu.Lock()
		ch, ok := t.subs[f.Channel]
		t.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- RawMessage{From: f.From, Payload: f.Payload}:
		default:
			log.Printf("SIGNALBUS [%s]: subscriber channel full, dropping frame", f.Channel)
		}
	}
}

func (t *WSTransport) Subscribe(ctx context.Context, channel string) (<-chan RawMessage, error) {
	t.mu.Lock()
	ch := make(chan RawMessage, 32)
	t.subs[channel] = ch
	t.mu.Unlock()
	return ch, t.writeFrame(frame{Channel: "__join__", Payload: []byte(channel)})
}

func (t *WSTransport) Unsubscribe(channel string) error {
	t.mu.Lock()
	ch, ok := t.subs[channel]
	delete(t.subs, channel)
	t.mu.Unlock()
	if ok {
		close(ch)
	}
	return t.writeFrame(frame{Channel: "__leave__", Payload: []byte(channel)})
}

func (t *WSTransport) UnsubscribeAll() error {
	t.mu.Lock()
	channels := make([]string, 0, len(t.subs))
	for c, ch := range t.subs {
		channels = append(channels, c)
		close(ch)
	}
	t.subs = make(map[string]chan RawMessage)
	t.mu.Unlock()
	var firstErr error
	for _, c := range channels {
		if err := t.writeFrame(frame{Channel: "__leave__", Payload: []byte(c)}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *WSTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.writeFrame(frame{Channel: channel, Payload: payload})
}

func (t *WSTransport) writeFrame(f frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling relay not connected")
	}
	return conn.WriteJSON(f)
}

// Close shuts down the underlying connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
