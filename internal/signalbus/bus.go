// Package signalbus joins a per-room pub/sub channel and filters the
// signaling traffic a live session needs: drop stale-session signals,
// drop self-echoes, drop duplicates, and dispatch the rest to handlers.
package signalbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/petervdpas/goop2/internal/dedup"
	"github.com/petervdpas/goop2/internal/proto"
)

// RawMessage is an undecoded payload delivered by a Transport.
type RawMessage struct {
	From    string
	Payload []byte
}

// Transport is the pub/sub primitive the Bus is built on. A concrete
// implementation (see wstransport.go) dials a hosted relay; tests supply
// an in-memory fake.
type Transport interface {
	Subscribe(ctx context.Context, channel string) (<-chan RawMessage, error)
	Unsubscribe(channel string) error
	UnsubscribeAll() error
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Handlers receives the filtered, decoded signals for a joined room.
type Handlers struct {
	OnReady  func(proto.Signal)
	OnOffer  func(proto.Signal)
	OnAnswer func(proto.Signal)
	OnICE    func(proto.Signal)
	OnBye    func(proto.Signal)
	OnHealth func(proto.Signal)
	OnChat   func(proto.Signal)
}

// Bus drives a single joined room at a time.
type Bus struct {
	transport      Transport
	selfID         string
	room           string
	sessionVersion string
	handlers       Handlers
	dedup          *dedup.Set
	cancel         context.CancelFunc
}

// New creates a Bus bound to a transport and this client's own user id,
// used to filter self-echoed signals.
func New(transport Transport, selfUserID string) *Bus {
	return &Bus{
		transport: transport,
		selfID:    selfUserID,
		dedup:     dedup.New(0),
	}
}

// Join subscribes to the room's channel and begins dispatching signals
// matching sessionVersion to h. Any previously joined room is left first.
func (b *Bus) Join(ctx context.Context, room, sessionVersion string, h Handlers) error {
	b.Leave()
	b.dedup.Clear()

	ctx, cancel := context.WithCancel(ctx)
	ch, err := b.transport.Subscribe(ctx, room)
	if err != nil {
		cancel()
		return &proto.TransportError{Op: "subscribe", Err: err}
	}

	b.room = room
	b.sessionVersion = sessionVersion
	b.handlers = h
	b.cancel = cancel

	go b.receiveLoop(ctx, room, sessionVersion, ch)
	return nil
}

// Leave unsubscribes from the currently joined room, if any.
func (b *Bus) Leave() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	if err := b.transport.Unsubscribe(b.room); err != nil {
		log.Printf("BUS [%s]: unsubscribe error: %v", b.room, err)
	}
	b.room = ""
	b.sessionVersion = ""
	b.cancel = nil
}

// Reset tears down every subscription and clears dedup state, used on a
// hard session reset (e.g. auth failure, fatal internal error).
func (b *Bus) Reset() {
	b.Leave()
	if err := b.transport.UnsubscribeAll(); err != nil {
		log.Printf("BUS: reset UnsubscribeAll error: %v", err)
	}
	b.dedup.Clear()
}

func (b *Bus) receiveLoop(ctx context.Context, room, sessionVersion string, ch <-chan RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			b.handleRaw(room, sessionVersion, raw)
		}
	}
}

// handleRaw applies the filtering pipeline: decode, fencing-token check,
// self-echo check, addressee check, dedup check, then dispatch.
func (b *Bus) handleRaw(room, sessionVersion string, raw RawMessage) {
	var sig proto.Signal
	if err := json.Unmarshal(raw.Payload, &sig); err != nil {
		log.Printf("BUS [%s]: malformed signal dropped: %v", room, err)
		return
	}

	if sig.SessionVersion != sessionVersion {
		log.Printf("BUS [%s]: stale-session signal dropped (want %s got %s)", room, sessionVersion, sig.SessionVersion)
		return
	}
	if sig.From == b.selfID {
		return // self-echo
	}
	if sig.To != "" && sig.To != b.selfID {
		return // addressed to someone else sharing the room
	}
	if b.dedup.Seen(sig.CorrelationID) {
		return // already processed
	}

	switch sig.Type {
	case proto.TypeReady:
		if b.handlers.OnReady != nil {
			b.handlers.OnReady(sig)
		}
	case proto.TypeOffer:
		if b.handlers.OnOffer != nil {
			b.handlers.OnOffer(sig)
		}
	case proto.TypeAnswer:
		if b.handlers.OnAnswer != nil {
			b.handlers.OnAnswer(sig)
		}
	case proto.TypeICE:
		if b.handlers.OnICE != nil {
			b.handlers.OnICE(sig)
		}
	case proto.TypeBye:
		if b.handlers.OnBye != nil {
			b.handlers.OnBye(sig)
		}
	case proto.TypeHealth:
		if b.handlers.OnHealth != nil {
			b.handlers.OnHealth(sig)
		}
	case proto.TypeChat:
		if b.handlers.OnChat != nil {
			b.handlers.OnChat(sig)
		}
	default:
		log.Printf("BUS [%s]: unknown signal type %q dropped", room, sig.Type)
	}
}

func (b *Bus) send(ctx context.Context, sig proto.Signal) error {
	if b.room == "" {
		return &proto.FatalInternalError{Msg: "send called before Join"}
	}
	sig.From = b.selfID
	sig.SessionVersion = b.sessionVersion
	b.setTimestampsAndID(&sig)
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := b.transport.Publish(ctx, b.room, payload); err != nil {
		return &proto.TransportError{Op: "publish", Err: err}
	}
	return nil
}

func (b *Bus) setTimestampsAndID(sig *proto.Signal) {
	if sig.CorrelationID == "" {
		sig.CorrelationID = proto.NewCorrelationID()
	}
}

func (b *Bus) SendReady(to string) error {
	return b.send(context.Background(), proto.NewSignal(proto.TypeReady, b.selfID, to, b.sessionVersion))
}

func (b *Bus) SendOffer(to, sdp string) error {
	sig := proto.NewSignal(proto.TypeOffer, b.selfID, to, b.sessionVersion)
	sig.SDP = sdp
	return b.send(context.Background(), sig)
}

func (b *Bus) SendAnswer(to, sdp string) error {
	sig := proto.NewSignal(proto.TypeAnswer, b.selfID, to, b.sessionVersion)
	sig.SDP = sdp
	return b.send(context.Background(), sig)
}

func (b *Bus) SendICE(to string, c proto.ICECandidate) error {
	sig := proto.NewSignal(proto.TypeICE, b.selfID, to, b.sessionVersion)
	sig.ICE = &c
	return b.send(context.Background(), sig)
}

func (b *Bus) SendBye(to string) error {
	return b.send(context.Background(), proto.NewSignal(proto.TypeBye, b.selfID, to, b.sessionVersion))
}

func (b *Bus) SendHealth(to string) error {
	return b.send(context.Background(), proto.NewSignal(proto.TypeHealth, b.selfID, to, b.sessionVersion))
}

func (b *Bus) SendChat(to, text, id string) error {
	sig := proto.NewSignal(proto.TypeChat, b.selfID, to, b.sessionVersion)
	sig.Chat = &proto.ChatPayload{Text: text, ID: id}
	return b.send(context.Background(), sig)
}
