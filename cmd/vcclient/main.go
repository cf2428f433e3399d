// Command vcclient is a headless demonstration host for the session
// controller: it wires the controller, logs the events a real UI would
// render, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/mediadevices"

	"github.com/petervdpas/goop2/internal/app"
	"github.com/petervdpas/goop2/internal/events"
)

func main() {
	configPath := flag.String("config", "data/vcclient.json", "path to config file")
	userID := flag.String("user", "", "this client's user id")
	relay := flag.String("relay", "ws://localhost:8090/signal", "signaling relay websocket url")
	flag.Parse()

	if *userID == "" {
		log.Fatal("missing required -user flag")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Run(ctx, app.Options{
		ConfigPath: *configPath,
		UserID:     *userID,
		WSRelayURL: *relay,
	})
	if err != nil {
		log.Fatalf("vcclient: %v", err)
	}

	rt.Events.OnConnectionState(func(s events.ConnectionState) {
		log.Printf("vcclient: connection state -> %s", s)
	})
	rt.Events.OnVideoMatch(func(v events.VideoMatch) {
		log.Printf("vcclient: matched to video %q (%s)", v.VideoName, v.VideoURL)
	})
	rt.Events.OnRemoteStream(func(s events.RemoteStream) {
		log.Printf("vcclient: remote stream now has %d track(s)", len(s.Tracks))
	})
	rt.Events.OnLocalStream(func(s mediadevices.MediaStream) {
		log.Printf("vcclient: local stream ready with %d track(s)", len(s.GetTracks()))
	})
	rt.Events.OnPartnerLeft(func() {
		log.Printf("vcclient: partner left")
	})
	rt.Events.OnMessageReceived(func(m events.ChatMessage) {
		log.Printf("vcclient: chat from %s: %s", m.From, m.Text)
	})
	rt.Events.OnCreditsUpdated(func(u events.CreditsUpdate) {
		log.Printf("vcclient: credits updated: %d (swipes left %d)", u.Credits, u.SwipesLeft)
	})
	rt.Events.OnError(func(err error) {
		log.Printf("vcclient: error: %v", err)
	})

	if err := rt.Coordinator.JoinQueue(ctx); err != nil {
		log.Fatalf("vcclient: join queue: %v", err)
	}

	<-ctx.Done()
	log.Printf("vcclient: shutting down")
	rt.Shutdown(context.Background())
}
