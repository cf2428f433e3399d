// Package coordinator drives the outer match/session state machine: queue
// for a match, route to video playback or a live call, and tear sessions
// down cleanly on swipe, partner departure, or error.
package coordinator

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/petervdpas/goop2/internal/backend"
	"github.com/petervdpas/goop2/internal/config"
	"github.com/petervdpas/goop2/internal/events"
	"github.com/petervdpas/goop2/internal/media"
	"github.com/petervdpas/goop2/internal/peer"
	"github.com/petervdpas/goop2/internal/poller"
	"github.com/petervdpas/goop2/internal/proto"
	"github.com/petervdpas/goop2/internal/signalbus"
	"github.com/petervdpas/goop2/internal/signaling"
)

// State is the outer session state machine.
type State int

const (
	StateIdle State = iota
	StateQueued
	StateMatched
	StateConnectingLive
	StatePlayingVideo
	StateConnectedLive
	StateSwiping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateMatched:
		return "matched"
	case StateConnectingLive:
		return "connecting_live"
	case StatePlayingVideo:
		return "playing_video"
	case StateConnectedLive:
		return "connected_live"
	case StateSwiping:
		return "swiping"
	default:
		return "unknown"
	}
}

// Coordinator is the top-level orchestrator (one cooperative goroutine per
// instance; all public methods must be called from that goroutine or
// funneled through it by the host application).
type Coordinator struct {
	backend *backend.Client
	bus     *signalbus.Bus
	media   *media.Manager
	poller  *poller.Poller
	events  *events.Dispatcher
	cfg     config.Config
	selfID  string

	mu            sync.Mutex
	state         State
	current       *proto.SessionDescriptor
	pc            *peer.Controller
	sig           *signaling.Machine
	timeoutTmr    *time.Timer
	lastSwipeAt   time.Time
	remoteTracks  []*webrtc.TrackRemote
	heartbeatStop chan struct{}
	lastHealthAt  time.Time
}

func New(backendClient *backend.Client, bus *signalbus.Bus, mediaMgr *media.Manager,
	p *poller.Poller, dispatcher *events.Dispatcher, cfg config.Config, selfID string) *Coordinator {
	return &Coordinator{
		backend: backendClient,
		bus:     bus,
		media:   mediaMgr,
		poller:  p,
		events:  dispatcher,
		cfg:     cfg,
		selfID:  selfID,
		state:   StateIdle,
	}
}

// JoinQueue requests a match and either receives one immediately or starts
// polling for one.
func (c *Coordinator) JoinQueue(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return &proto.FatalInternalError{Msg: "JoinQueue called outside idle state: " + c.state.String()}
	}
	c.state = StateQueued
	c.mu.Unlock()

	res, err := c.backend.Join(ctx)
	if err != nil {
		c.setState(StateIdle)
		c.events.FireError(err)
		return err
	}
	c.applyUpdatedUserInfo(res.UpdatedUserInfo)

	if res.Status == "matched" {
		desc, err := proto.ClassifyMatch(c.selfID, res.MatchDescriptorJSON)
		if err != nil {
			c.setState(StateIdle)
			c.events.FireError(err)
			return err
		}
		c.onMatch(desc)
		return nil
	}

	c.poller.Start(ctx, c.onMatch, func() {
		c.events.FireError(&proto.AuthError{Reason: "poll auth failure"})
		c.setState(StateIdle)
	}, c.events.FireError)
	return nil
}

// applyUpdatedUserInfo forwards the backend's account delta, when present,
// to the host application. Always run — never silently dropped.
func (c *Coordinator) applyUpdatedUserInfo(info *proto.UpdatedUserInfo) {
	if info == nil {
		return
	}
	c.events.FireCreditsUpdated(events.CreditsUpdate{Credits: info.Credits, SwipesLeft: info.SwipesLeft})
}

// onMatch classifies the match kind and routes to video playback or a
// live connection. The downgrade/cross-validation rule (never trust
// actual_match_type blindly) always runs in proto.ClassifyMatch before
// this is ever called, per SPEC_FULL.md §11.
func (c *Coordinator) onMatch(desc proto.SessionDescriptor) {
	c.mu.Lock()
	c.current = &desc
	c.state = StateMatched
	c.mu.Unlock()

	if !desc.MatchKind.IsLive() {
		c.startVideo(desc)
		return
	}
	c.startLive(context.Background(), desc)
}

func (c *Coordinator) startVideo(desc proto.SessionDescriptor) {
	c.setState(StatePlayingVideo)
	c.events.FireVideoMatch(events.VideoMatch{
		VideoID:   desc.VideoID,
		VideoURL:  desc.VideoURL,
		VideoName: desc.VideoName,
	})
}

func (c *Coordinator) startLive(ctx context.Context, desc proto.SessionDescriptor) {
	c.setState(StateConnectingLive)
	c.events.FireConnectionState(events.ConnectionConnecting)

	stream, err := c.media.EnsureLocalStream(ctx)
	role := signaling.RoleReceiver
	if desc.IsInitiator {
		role = signaling.RoleInitiator
	}

	pc, err2 := peer.NewWithTimeouts(c.cfg.ICE.Servers, desc.RoomID, peer.Events{
		OnICECandidate: func(cand proto.ICECandidate) {
			_ = c.bus.SendICE(desc.PartnerID, cand)
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			c.mu.Lock()
			first := len(c.remoteTracks) == 0
			c.remoteTracks = append(c.remoteTracks, track)
			snapshot := append([]*webrtc.TrackRemote(nil), c.remoteTracks...)
			c.mu.Unlock()
			// The primary output fires on the first remote track, not only
			// once ICE reaches "connected" — media can arrive before the
			// connection state callback does.
			if first {
				c.cancelConnectTimeout()
			}
			c.events.FireRemoteStream(events.RemoteStream{Tracks: snapshot})
		},
		OnConnected: func() {
			c.setState(StateConnectedLive)
			c.events.FireConnectionState(events.ConnectionConnected)
			c.cancelConnectTimeout()
			c.startHeartbeat(desc.PartnerID)
		},
		OnDisconnected: func() {
			c.events.FireConnectionState(events.ConnectionDisconnected)
		},
		OnFailed: func() {
			c.events.FireConnectionState(events.ConnectionFailed)
			c.recoverFromPartnerLoss()
		},
	}, c.cfg.ICE.DisconnectedTimeout, c.cfg.ICE.FailedTimeout, c.cfg.ICE.KeepaliveInterval)
	if err2 != nil {
		c.events.FireError(err2)
		c.Cleanup()
		return
	}

	if err != nil {
		log.Printf("COORD: local media unavailable (%v), proceeding receive-only", err)
		_ = pc.AddRecvOnly(webrtc.RTPCodecTypeVideo)
		_ = pc.AddRecvOnly(webrtc.RTPCodecTypeAudio)
	} else {
		c.events.FireLocalStream(stream)
		for _, track := range stream.GetTracks() {
			if err := pc.AddLocalTrack(track); err != nil {
				log.Printf("COORD: add local track failed: %v", err)
			}
		}
	}

	sm := signaling.New(role, c.bus, pc, signaling.Events{
		OnConnected: func() {},
		OnFatal: func(err error) {
			c.events.FireError(err)
			c.recoverFromPartnerLoss()
		},
	}, signaling.Timing{OfferStabilizeDelay: c.cfg.Timing.OfferStabilizeDelay})

	c.mu.Lock()
	c.pc = pc
	c.sig = sm
	c.mu.Unlock()

	if err := c.bus.Join(ctx, desc.RoomID, desc.SessionVersion, signalbus.Handlers{
		OnOffer:  sm.HandleSignal,
		OnAnswer: sm.HandleSignal,
		OnICE:    sm.HandleSignal,
		OnReady:  sm.HandleSignal,
		OnBye: func(proto.Signal) {
			c.recoverFromPartnerLoss()
		},
		OnHealth: func(sig proto.Signal) {
			if err := c.backend.ClearWaitingRoom(context.Background(), desc.RoomID, c.selfID); err != nil {
				log.Printf("COORD: clear waiting room failed: %v", err)
			}
			c.mu.Lock()
			quiet := time.Since(c.lastHealthAt) > c.cfg.Timing.HeartbeatInterval/2
			if quiet {
				c.lastHealthAt = time.Now()
			}
			c.mu.Unlock()
			// Echo our own health back so the partner doesn't have to wait
			// for its next heartbeat tick to learn we're alive too. Guarded
			// by a quiet window so two sides echoing each other doesn't
			// turn into an unbounded ping-pong.
			if quiet {
				if err := c.bus.SendHealth(sig.From); err != nil {
					log.Printf("COORD: health echo failed: %v", err)
				}
			}
		},
		OnChat: func(sig proto.Signal) {
			if sig.Chat != nil {
				c.events.FireMessageReceived(events.ChatMessage{From: sig.From, Text: sig.Chat.Text, ID: sig.Chat.ID})
			}
		},
	}); err != nil {
		c.events.FireError(err)
		c.Cleanup()
		return
	}
	sm.OnJoined(desc.PartnerID)

	c.armConnectTimeout()
}

func (c *Coordinator) armConnectTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutTmr = time.AfterFunc(c.cfg.Timing.ConnectionTimeout, func() {
		c.events.FireError(&proto.TimeoutError{Op: "connect"})
		c.recoverFromPartnerLoss()
	})
}

func (c *Coordinator) cancelConnectTimeoutLocked() {
	if c.timeoutTmr != nil {
		c.timeoutTmr.Stop()
		c.timeoutTmr = nil
	}
}

func (c *Coordinator) cancelConnectTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelConnectTimeoutLocked()
}

// startHeartbeat sends a periodic health signal to partnerID every
// HeartbeatInterval once a live session reaches "connected" (spec §5).
// Any previously running heartbeat is stopped first.
func (c *Coordinator) startHeartbeat(partnerID string) {
	c.mu.Lock()
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.Timing.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.bus.SendHealth(partnerID); err != nil {
					log.Printf("COORD: heartbeat send failed: %v", err)
				}
			}
		}
	}()
}

func (c *Coordinator) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// recoverFromPartnerLoss tears the live session down and re-joins the
// queue after a small jittered delay, matching the reconnect-with-jitter
// posture used elsewhere in the pack for flaky links.
func (c *Coordinator) recoverFromPartnerLoss() {
	c.events.FirePartnerLeft()
	c.Cleanup()
	c.setState(StateIdle)
	jitter := c.cfg.Timing.RejoinJitterMin + time.Duration(rand.Int63n(int64(c.cfg.Timing.RejoinJitterMax-c.cfg.Timing.RejoinJitterMin+1)))
	time.AfterFunc(jitter, func() {
		_ = c.JoinQueue(context.Background())
	})
}

// SwipeNext ends the current session (if any) and requests a new match.
// Debounce only applies to live sessions (at most one in-flight swipe per
// SwipeDebounce); a video session swipes immediately since there is no
// peer to keep waiting on a stale connection.
func (c *Coordinator) SwipeNext(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	isLive := cur != nil && cur.MatchKind.IsLive()
	if isLive {
		if time.Since(c.lastSwipeAt) < c.cfg.Timing.SwipeDebounce {
			c.mu.Unlock()
			return nil
		}
		c.lastSwipeAt = time.Now()
	}
	room := ""
	partner := ""
	if cur != nil {
		room = cur.RoomID
		partner = cur.PartnerID
	}
	c.state = StateSwiping
	c.mu.Unlock()

	// For a live session the host is told "partner left" first, before
	// anything is torn down, so it can mask the view immediately; the
	// partner itself only gets the bye after teardown.
	if isLive {
		c.events.FirePartnerLeft()
	}

	c.teardownConnection()
	if partner != "" {
		if err := c.bus.SendBye(partner); err != nil {
			log.Printf("COORD: best-effort bye failed: %v", err)
		}
	}
	c.bus.Leave()
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.poller.Stop()

	if room != "" {
		if err := c.backend.EndSession(ctx, room); err != nil {
			log.Printf("COORD: end session failed: %v", err)
		}
	}

	res, err := c.backend.Swipe(ctx)
	if err != nil {
		c.events.FireError(err)
		return err
	}
	if res.SwipeDeduction != nil && res.SwipeDeduction.Applied {
		log.Printf("COORD: swipe deducted %d credit(s)", res.SwipeDeduction.Amount)
	}
	if res.Error != "" {
		// A transport/validation failure on the swipe call: logged, not
		// applied, per SPEC_FULL.md §11 resolution of this open question.
		log.Printf("COORD: swipe error from backend: %s", res.Error)
		c.setState(StateIdle)
		return nil
	}
	if !res.Success {
		// No point deduction, no hard error — silently accepted.
		c.setState(StateIdle)
		return nil
	}

	return c.JoinQueue(ctx)
}

func (c *Coordinator) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return &proto.FatalInternalError{Msg: "SendMessage called with no active session"}
	}
	return c.bus.SendChat(cur.PartnerID, text, proto.NewCorrelationID())
}

// LeaveChat runs total cleanup, including stopping local media capture
// (SPEC_FULL.md §4.5), and returns to idle.
func (c *Coordinator) LeaveChat(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	c.teardownConnection()
	if cur != nil {
		if err := c.bus.SendBye(cur.PartnerID); err != nil {
			log.Printf("COORD: best-effort bye failed: %v", err)
		}
	}
	c.bus.Leave()
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.poller.Stop()

	c.media.Release()
	c.backend.LeaveBeacon(ctx)
	c.setState(StateIdle)
	return nil
}

// teardownConnection closes the peer connection, cancels the connection
// timeout, and stops the heartbeat, without leaving the signaling bus
// channel — callers that need a best-effort bye delivered to the partner
// call this first, send the bye while still joined, and leave the channel
// afterward.
func (c *Coordinator) teardownConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelConnectTimeoutLocked()
	c.stopHeartbeatLocked()
	if c.pc != nil {
		c.pc.Close()
		c.pc = nil
	}
	c.sig = nil
	c.remoteTracks = nil
}

// Cleanup tears the connection down, leaves the signaling bus channel, and
// stops the match poller. Idempotent — safe to call multiple times or when
// no session is active. Does not touch local media; callers that need
// total cleanup (LeaveChat) release media themselves.
func (c *Coordinator) Cleanup() {
	c.teardownConnection()
	c.bus.Leave()
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	c.poller.Stop()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// GetRemoteStreamStatus returns a diagnostic snapshot for the host
// application, e.g. a debugging overlay.
func (c *Coordinator) GetRemoteStreamStatus() proto.RemoteStreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc == nil {
		return proto.RemoteStreamStatus{Phase: "none"}
	}
	st := c.pc.Status()
	st.HasStream = len(c.remoteTracks) > 0
	st.TrackCount = len(c.remoteTracks)
	return st
}

// State returns the current outer session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
