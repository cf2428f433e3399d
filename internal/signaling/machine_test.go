package signaling

import (
	"context"
	"testing"

	"github.com/petervdpas/goop2/internal/peer"
	"github.com/petervdpas/goop2/internal/proto"
	"github.com/petervdpas/goop2/internal/signalbus"
)

func readySignal() proto.Signal {
	return proto.Signal{Type: proto.TypeReady, From: "partner"}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateFresh:     "fresh",
		StateJoined:    "joined",
		StateReady:     "ready",
		StateOffering:  "offering",
		StateAnswering: "answering",
		StateConnected: "connected",
		StateClosed:    "closed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestReadySeenTrackedIndependentlyOfState(t *testing.T) {
	m := &Machine{state: StateJoined}
	m.HandleSignal(readySignal())
	if !m.readySeen {
		t.Fatalf("expected readySeen to be set after a ready signal")
	}
	if m.state != StateJoined {
		t.Fatalf("a ready signal must not itself change state, got %s", m.state)
	}
}

func TestHandleOfferResetsAndReacceptsDuplicateOffer(t *testing.T) {
	initiator, err := peer.New([]string{"stun:stun.l.google.com:19302"}, "a", peer.Events{})
	if err != nil {
		t.Fatalf("New initiator: %v", err)
	}
	defer initiator.Close()
	offer, err := initiator.MakeOffer(context.Background())
	if err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}

	receiver, err := peer.New([]string{"stun:stun.l.google.com:19302"}, "b", peer.Events{})
	if err != nil {
		t.Fatalf("New receiver: %v", err)
	}
	defer receiver.Close()

	bus := signalbus.New(nil, "b")
	m := New(RoleReceiver, bus, receiver, Events{}, Timing{})
	m.state = StateJoined
	m.partnerID = "a"

	m.handleOffer(proto.Signal{Type: proto.TypeOffer, From: "a", SDP: offer})
	if got := receiver.Phase(); got != peer.PhaseStable {
		t.Fatalf("expected PhaseStable after first accept, got %s", got)
	}

	// A second offer arriving while phase != fresh must reset and reaccept
	// rather than tear the session down.
	m.handleOffer(proto.Signal{Type: proto.TypeOffer, From: "a", SDP: offer})
	if m.state == StateClosed {
		t.Fatalf("duplicate offer should not be treated as fatal")
	}
	if got := receiver.Phase(); got != peer.PhaseStable {
		t.Fatalf("expected PhaseStable after duplicate-offer reset+reaccept, got %s", got)
	}
}
