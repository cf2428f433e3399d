package signalbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/petervdpas/goop2/internal/proto"
)

type fakeTransport struct {
	chans map[string]chan RawMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{chans: make(map[string]chan RawMessage)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, channel string) (<-chan RawMessage, error) {
	ch := make(chan RawMessage, 8)
	f.chans[channel] = ch
	return ch, nil
}

func (f *fakeTransport) Unsubscribe(channel string) error {
	delete(f.chans, channel)
	return nil
}

func (f *fakeTransport) UnsubscribeAll() error {
	f.chans = make(map[string]chan RawMessage)
	return nil
}

func (f *fakeTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if ch, ok := f.chans[channel]; ok {
		ch <- RawMessage{From: "peer", Payload: payload}
	}
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, channel string, sig proto.Signal) {
	t.Helper()
	b, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.chans[channel] <- RawMessage{From: sig.From, Payload: b}
}

func TestDropsStaleSessionSignal(t *testing.T) {
	ft := newFakeTransport()
	bus := New(ft, "me")
	got := make(chan proto.Signal, 1)
	if err := bus.Join(context.Background(), "room1", "v1", Handlers{
		OnReady: func(s proto.Signal) { got <- s },
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	ft.deliver(t, "room1", proto.Signal{Type: proto.TypeReady, From: "partner", SessionVersion: "v0", CorrelationID: "c1"})
	select {
	case <-got:
		t.Fatalf("stale-session signal should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropsSelfEcho(t *testing.T) {
	ft := newFakeTransport()
	bus := New(ft, "me")
	got := make(chan proto.Signal, 1)
	if err := bus.Join(context.Background(), "room1", "v1", Handlers{
		OnReady: func(s proto.Signal) { got <- s },
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	ft.deliver(t, "room1", proto.Signal{Type: proto.TypeReady, From: "me", SessionVersion: "v1", CorrelationID: "c1"})
	select {
	case <-got:
		t.Fatalf("self-echo should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropsDuplicateCorrelationID(t *testing.T) {
	ft := newFakeTransport()
	bus := New(ft, "me")
	got := make(chan proto.Signal, 4)
	if err := bus.Join(context.Background(), "room1", "v1", Handlers{
		OnReady: func(s proto.Signal) { got <- s },
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	sig := proto.Signal{Type: proto.TypeReady, From: "partner", SessionVersion: "v1", CorrelationID: "dup1"}
	ft.deliver(t, "room1", sig)
	ft.deliver(t, "room1", sig)

	select {
	case <-got:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected first delivery")
	}
	select {
	case <-got:
		t.Fatalf("duplicate correlation id should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAcceptsMatchingSession(t *testing.T) {
	ft := newFakeTransport()
	bus := New(ft, "me")
	got := make(chan proto.Signal, 1)
	if err := bus.Join(context.Background(), "room1", "v1", Handlers{
		OnOffer: func(s proto.Signal) { got <- s },
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	ft.deliver(t, "room1", proto.Signal{Type: proto.TypeOffer, From: "partner", SessionVersion: "v1", CorrelationID: "c1", SDP: "sdp-blob"})
	select {
	case sig := <-got:
		if sig.SDP != "sdp-blob" {
			t.Fatalf("expected sdp-blob, got %q", sig.SDP)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected offer delivery")
	}
}
