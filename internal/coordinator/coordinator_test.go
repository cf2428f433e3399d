package coordinator

import (
	"testing"
	"time"

	"github.com/petervdpas/goop2/internal/poller"
	"github.com/petervdpas/goop2/internal/signalbus"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:           "idle",
		StateQueued:         "queued",
		StateMatched:        "matched",
		StateConnectingLive: "connecting_live",
		StatePlayingVideo:   "playing_video",
		StateConnectedLive:  "connected_live",
		StateSwiping:        "swiping",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestCleanupIsIdempotentOnFreshCoordinator(t *testing.T) {
	c := &Coordinator{
		state:  StateIdle,
		bus:    signalbus.New(nil, "me"),
		poller: poller.New(nil, "me", time.Second),
	}
	// A freshly constructed-but-never-joined Coordinator has no peer
	// connection, no joined bus channel and no running poller; Cleanup must
	// be safe to call on it repeatedly without any network calls.
	c.Cleanup()
	c.Cleanup()
	if c.pc != nil || c.current != nil {
		t.Fatalf("expected no peer connection and no session after repeated Cleanup")
	}
}
