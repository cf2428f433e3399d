// Package signaling runs the ready/offer/answer/ICE handshake above a
// signalbus.Bus and a peer.Controller, as an explicit state machine.
package signaling

import (
	"context"
	"log"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/petervdpas/goop2/internal/peer"
	"github.com/petervdpas/goop2/internal/proto"
	"github.com/petervdpas/goop2/internal/signalbus"
)

// Role determines who sends the offer.
type Role int

const (
	RoleInitiator Role = iota
	RoleReceiver
)

// State is the explicit signaling state, generalized from the session's
// ready_sent/ready_seen boolean pair into named states.
type State int

const (
	StateFresh State = iota
	StateJoined
	StateReady
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateJoined:
		return "joined"
	case StateReady:
		return "ready"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Events bubbles signaling-state transitions up to the coordinator.
type Events struct {
	OnConnected func()
	OnFatal     func(error)
}

// Timing carries the offer stabilization delay; see internal/config.Timing.
type Timing struct {
	OfferStabilizeDelay time.Duration
}

// Machine runs the protocol for a single live session.
type Machine struct {
	role  Role
	bus   *signalbus.Bus
	pc    *peer.Controller
	ev    Events
	timing Timing

	partnerID string
	state     State
	readySent bool
	readySeen bool
}

func New(role Role, bus *signalbus.Bus, pc *peer.Controller, ev Events, timing Timing) *Machine {
	return &Machine{role: role, bus: bus, pc: pc, ev: ev, timing: timing, state: StateFresh}
}

// OnJoined is called once the bus has joined the room; sends our own
// ready signal and, if we are the initiator, schedules the offer after a
// fixed stabilization delay (regardless of whether the partner's ready
// has arrived — open question resolved in SPEC_FULL.md §11).
func (m *Machine) OnJoined(partnerID string) {
	m.partnerID = partnerID
	m.state = StateJoined
	if err := m.bus.SendReady(partnerID); err != nil {
		log.Printf("SIGNAL: send ready failed: %v", err)
	}
	m.readySent = true
	m.state = StateReady

	if m.role == RoleInitiator {
		go func() {
			time.Sleep(m.timing.OfferStabilizeDelay)
			m.makeOffer()
		}()
	}
}

func (m *Machine) makeOffer() {
	if m.state == StateClosed {
		return
	}
	m.state = StateOffering
	sdp, err := m.pc.MakeOffer(context.Background())
	if err != nil {
		m.fatal(err)
		return
	}
	if err := m.bus.SendOffer(m.partnerID, sdp); err != nil {
		log.Printf("SIGNAL: send offer failed: %v", err)
	}
}

// HandleSignal routes a decoded signal from the bus.
func (m *Machine) HandleSignal(sig proto.Signal) {
	switch sig.Type {
	case proto.TypeReady:
		m.readySeen = true
	case proto.TypeOffer:
		m.handleOffer(sig)
	case proto.TypeAnswer:
		m.handleAnswer(sig)
	case proto.TypeICE:
		m.handleICE(sig)
	case proto.TypeBye:
		m.state = StateClosed
	}
}

func (m *Machine) handleOffer(sig proto.Signal) {
	// A second offer arriving while phase != fresh (the partner retried, or
	// our own offer raced theirs) is not fatal: reset the peer connection
	// and re-run accept_offer against the fresh controller.
	if m.pc.Phase() != peer.PhaseFresh {
		log.Printf("SIGNAL: offer received in phase %s, resetting before accept", m.pc.Phase())
		m.pc.Reset()
	}
	m.state = StateAnswering
	answer, err := m.pc.AcceptOffer(context.Background(), sig.SDP)
	if err != nil {
		m.fatal(err)
		return
	}
	if err := m.bus.SendAnswer(sig.From, answer); err != nil {
		log.Printf("SIGNAL: send answer failed: %v", err)
		return
	}
	m.markConnected()
}

func (m *Machine) handleAnswer(sig proto.Signal) {
	if err := m.pc.AcceptAnswer(context.Background(), sig.SDP); err != nil {
		m.fatal(err)
		return
	}
	m.markConnected()
}

func (m *Machine) handleICE(sig proto.Signal) {
	if sig.ICE == nil {
		return
	}
	init := webrtc.ICECandidateInit{Candidate: sig.ICE.Candidate}
	if sig.ICE.SDPMid != nil {
		init.SDPMid = sig.ICE.SDPMid
	}
	if sig.ICE.SDPMLineIndex != nil {
		init.SDPMLineIndex = sig.ICE.SDPMLineIndex
	}
	if err := m.pc.AddRemoteICE(init); err != nil {
		log.Printf("SIGNAL: add remote ICE failed: %v", err)
	}
}

func (m *Machine) markConnected() {
	m.state = StateConnected
	if m.ev.OnConnected != nil {
		m.ev.OnConnected()
	}
}

// fatal resets the peer connection on an unrecoverable signaling error
// (m-line mismatch, wrong-state transition) so the coordinator can decide
// whether to retry with a fresh Controller.
func (m *Machine) fatal(err error) {
	log.Printf("SIGNAL: fatal signaling error: %v", err)
	m.state = StateClosed
	m.pc.Reset()
	if m.ev.OnFatal != nil {
		m.ev.OnFatal(err)
	}
}

// State returns the current signaling state, used by diagnostics.
func (m *Machine) State() State { return m.state }
