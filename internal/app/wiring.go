// Package app wires the session controller's components together for a
// host application: load config, construct the backend client, signaling
// transport, media manager, poller, and event dispatcher, and hand back a
// ready coordinator.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/petervdpas/goop2/internal/backend"
	"github.com/petervdpas/goop2/internal/config"
	"github.com/petervdpas/goop2/internal/coordinator"
	"github.com/petervdpas/goop2/internal/events"
	"github.com/petervdpas/goop2/internal/media"
	"github.com/petervdpas/goop2/internal/poller"
	"github.com/petervdpas/goop2/internal/signalbus"
)

// Options configures a Run.
type Options struct {
	ConfigPath string
	UserID     string
	WSRelayURL string
}

// Runtime is the wired set of components a host application holds onto
// for the lifetime of the process.
type Runtime struct {
	Config      config.Config
	Coordinator *coordinator.Coordinator
	Events      *events.Dispatcher

	stopTokenWatch func()
}

// Run loads config (creating a default if missing), wires every
// component, and returns a ready Runtime. The caller drives the
// coordinator's JoinQueue/SwipeNext/LeaveChat from its own event loop.
func Run(ctx context.Context, opt Options) (*Runtime, error) {
	cfg, created, err := config.Ensure(opt.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if created {
		log.Printf("APP: wrote default config to %s", opt.ConfigPath)
	}

	token, err := cfg.ReadToken()
	if err != nil {
		log.Printf("APP: no bearer token on disk yet: %v", err)
	}

	backendClient := backend.New(cfg.Backend.BaseURL, func() string { return token })

	wsTransport, err := signalbus.NewWSTransport(opt.WSRelayURL)
	if err != nil {
		return nil, fmt.Errorf("connect signaling relay: %w", err)
	}
	bus := signalbus.New(wsTransport, opt.UserID)

	mediaMgr := media.New(media.DefaultConstraints())
	p := poller.New(backendClient, opt.UserID, cfg.Timing.PollInterval)
	dispatcher := events.New()

	coord := coordinator.New(backendClient, bus, mediaMgr, p, dispatcher, cfg, opt.UserID)

	rt := &Runtime{Config: cfg, Coordinator: coord, Events: dispatcher}

	stop, err := cfg.WatchToken(func(newToken string) {
		token = newToken
		log.Printf("APP: bearer token rotated")
	})
	if err != nil {
		log.Printf("APP: token watch unavailable: %v", err)
	} else {
		rt.stopTokenWatch = stop
	}

	return rt, nil
}

// Shutdown releases the current session and stops background watchers.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.Coordinator.LeaveChat(ctx)
	if rt.stopTokenWatch != nil {
		rt.stopTokenWatch()
	}
}
