package peer

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
)

func fakeCandidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122260223 192.0.2.1 54321 typ host"}
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseFresh:           "fresh",
		PhaseHaveLocalOffer:  "have-local-offer",
		PhaseHaveRemoteOffer: "have-remote-offer",
		PhaseStable:          "stable",
		PhaseClosed:          "closed",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Fatalf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New([]string{"stun:stun.l.google.com:19302"}, "test", Events{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Close()
	c.Close() // must not panic
	if c.phase != PhaseClosed {
		t.Fatalf("expected PhaseClosed after Close, got %s", c.phase)
	}
}

func TestResetRestoresFreshPhase(t *testing.T) {
	c, err := New([]string{"stun:stun.l.google.com:19302"}, "test", Events{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.MakeOffer(context.Background()); err != nil {
		t.Fatalf("MakeOffer: %v", err)
	}
	if got := c.Phase(); got != PhaseHaveLocalOffer {
		t.Fatalf("expected PhaseHaveLocalOffer after MakeOffer, got %s", got)
	}

	c.Reset()
	if got := c.Phase(); got != PhaseFresh {
		t.Fatalf("expected PhaseFresh after Reset, got %s", got)
	}

	if _, err := c.MakeOffer(context.Background()); err != nil {
		t.Fatalf("MakeOffer after Reset should succeed, got: %v", err)
	}
}

func TestAddRemoteICEQueuesBeforeRemoteDescription(t *testing.T) {
	c, err := New([]string{"stun:stun.l.google.com:19302"}, "test", Events{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.AddRemoteICE(fakeCandidate()); err != nil {
		t.Fatalf("AddRemoteICE before remote description should queue, not error: %v", err)
	}
	c.mu.Lock()
	n := len(c.pendingICE)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 queued candidate, got %d", n)
	}
}
