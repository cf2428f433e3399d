// Package peer wraps one webrtc.PeerConnection with an explicit signaling
// phase and a queue for ICE candidates that arrive before a remote
// description has been set.
package peer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"

	"github.com/petervdpas/goop2/internal/proto"
)

// Phase is the explicit signaling phase of a Controller, replacing the
// boolean-flag tracking (remoteDescSet, offerSent, ...) an implicit-state
// implementation would use.
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseHaveLocalOffer
	PhaseHaveRemoteOffer
	PhaseStable
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhaseHaveLocalOffer:
		return "have-local-offer"
	case PhaseHaveRemoteOffer:
		return "have-remote-offer"
	case PhaseStable:
		return "stable"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Events are the callbacks a Controller fires as the underlying peer
// connection state changes.
type Events struct {
	OnICECandidate  func(proto.ICECandidate)
	OnTrack         func(*webrtc.TrackRemote)
	OnConnected     func()
	OnDisconnected  func()
	OnFailed        func()
}

// Controller owns one webrtc.PeerConnection for the lifetime of a single
// live session. Reset rebuilds the underlying PeerConnection in place, so
// the same Controller can be reused across a duplicate-offer recovery
// without the caller needing to construct a new one.
type Controller struct {
	mu    sync.Mutex
	pc    *webrtc.PeerConnection
	phase Phase

	pendingICE    []webrtc.ICECandidateInit
	remoteDescSet bool

	events Events
	label  string

	iceServers   []string
	disconnected time.Duration
	failed       time.Duration
	keepalive    time.Duration
}

// New constructs a Controller. label is used only for log prefixes.
func New(iceServers []string, label string, events Events) (*Controller, error) {
	return newController(iceServers, label, events, 30*time.Second, 120*time.Second, 2*time.Second)
}

// NewWithTimeouts is New with explicit ICE timeout overrides, matching the
// fields carried by internal/config.ICE.
func NewWithTimeouts(iceServers []string, label string, events Events, disconnected, failed, keepalive time.Duration) (*Controller, error) {
	return newController(iceServers, label, events, disconnected, failed, keepalive)
}

func newController(iceServers []string, label string, events Events, disconnected, failed, keepalive time.Duration) (*Controller, error) {
	c := &Controller{
		events:       events,
		label:        label,
		iceServers:   iceServers,
		disconnected: disconnected,
		failed:       failed,
		keepalive:    keepalive,
	}
	if err := c.rebuildLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// rebuildLocked constructs a fresh underlying PeerConnection in PhaseFresh
// and rewires it to this Controller's event callbacks. Called both from
// newController and from Reset; the caller must hold c.mu.
func (c *Controller) rebuildLocked() error {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return err
	}

	mediaEngine := &webrtc.MediaEngine{}
	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	codecSelector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return err
	}

	se := webrtc.SettingEngine{}
	// Generous ICE timeouts so a brief relay/NAT hiccup does not
	// immediately tear the call down.
	se.SetICETimeouts(c.disconnected, c.failed, c.keepalive)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	iceServerList := make([]webrtc.ICEServer, 0, len(c.iceServers))
	for _, s := range c.iceServers {
		iceServerList = append(iceServerList, webrtc.ICEServer{URLs: []string{s}})
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:           iceServerList,
		BundlePolicy:         webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:        webrtc.RTCPMuxPolicyRequire,
		ICECandidatePoolSize: 4,
	})
	if err != nil {
		return err
	}

	c.pc = pc
	c.phase = PhaseFresh
	c.pendingICE = nil
	c.remoteDescSet = false

	label := c.label
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.events.OnICECandidate == nil {
			return
		}
		init := cand.ToJSON()
		var mid *string
		if init.SDPMid != nil {
			mid = init.SDPMid
		}
		var mline *uint16
		if init.SDPMLineIndex != nil {
			mline = init.SDPMLineIndex
		}
		c.events.OnICECandidate(proto.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        mid,
			SDPMLineIndex: mline,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("PEER [%s]: remote track added kind=%s", label, track.Kind())
		if c.events.OnTrack != nil {
			c.events.OnTrack(track)
		}
		go drainRemoteTrack(label, track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("PEER [%s]: connection state -> %s", label, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if c.events.OnConnected != nil {
				c.events.OnConnected()
			}
		case webrtc.PeerConnectionStateDisconnected:
			if c.events.OnDisconnected != nil {
				c.events.OnDisconnected()
			}
		case webrtc.PeerConnectionStateFailed:
			if c.events.OnFailed != nil {
				c.events.OnFailed()
			}
		}
	})

	return nil
}

// drainRemoteTrack reads and discards RTP packets so the jitter buffer
// does not stall; real decode/render happens on the host application side
// via OnTrack's hand-off of the *webrtc.TrackRemote.
func drainRemoteTrack(label string, track *webrtc.TrackRemote) {
	count := 0
	buf := make([]byte, 1500)
	for {
		_, _, err := track.Read(buf)
		if err != nil {
			log.Printf("PEER [%s]: remote track %s ended after %d packets: %v", label, track.Kind(), count, err)
			return
		}
		count++
	}
}

// AddLocalTrack adds a local media track before negotiation begins.
func (c *Controller) AddLocalTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.pc.AddTrack(track)
	return err
}

// AddRecvOnly adds a receive-only transceiver of the given kind, used when
// local capture is unavailable but the call should still receive remote
// media.
func (c *Controller) AddRecvOnly(kind webrtc.RTPCodecType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

// MakeOffer creates and sets a local offer, advancing to PhaseHaveLocalOffer.
func (c *Controller) MakeOffer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseFresh {
		return "", &proto.PeerStateError{Kind: "wrong_state", Want: PhaseFresh.String(), Got: c.phase.String()}
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	c.phase = PhaseHaveLocalOffer
	return offer.SDP, nil
}

// AcceptOffer sets a remote offer, flushes queued ICE candidates, and
// returns a local answer SDP.
func (c *Controller) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseFresh {
		return "", &proto.PeerStateError{Kind: "wrong_state", Want: PhaseFresh.String(), Got: c.phase.String()}
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", &proto.PeerStateError{Kind: "m_line_mismatch", Want: "offer", Got: err.Error()}
	}
	c.phase = PhaseHaveRemoteOffer
	c.remoteDescSet = true
	c.flushPendingICELocked()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	c.phase = PhaseStable
	return answer.SDP, nil
}

// AcceptAnswer sets a remote answer in response to our own offer and
// flushes queued ICE candidates.
func (c *Controller) AcceptAnswer(ctx context.Context, sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseHaveLocalOffer {
		return &proto.PeerStateError{Kind: "wrong_state", Want: PhaseHaveLocalOffer.String(), Got: c.phase.String()}
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return &proto.PeerStateError{Kind: "m_line_mismatch", Want: "answer", Got: err.Error()}
	}
	c.phase = PhaseStable
	c.remoteDescSet = true
	c.flushPendingICELocked()
	return nil
}

// AddRemoteICE queues the candidate if the remote description has not yet
// been set, otherwise adds it immediately.
func (c *Controller) AddRemoteICE(init webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteDescSet {
		c.pendingICE = append(c.pendingICE, init)
		return nil
	}
	return c.pc.AddICECandidate(init)
}

func (c *Controller) flushPendingICELocked() {
	for _, cand := range c.pendingICE {
		if err := c.pc.AddICECandidate(cand); err != nil {
			log.Printf("PEER [%s]: flush ICE candidate failed: %v", c.label, err)
		}
	}
	c.pendingICE = nil
}

// Status returns a diagnostic snapshot for the host application.
func (c *Controller) Status() proto.RemoteStreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := "unknown"
	if c.pc != nil {
		state = c.pc.ConnectionState().String()
	}
	return proto.RemoteStreamStatus{
		ConnectionState: state,
		Phase:           c.phase.String(),
	}
}

// Phase returns the current signaling phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Reset discards the current peer connection on a fatal signaling error
// (m-line mismatch, wrong-state transition) or a duplicate offer arriving
// outside PhaseFresh, and rebuilds a fresh one in its place. Afterward the
// Controller is in PhaseFresh and accepts a new MakeOffer/AcceptOffer the
// same as a freshly constructed one.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != nil {
		_ = c.pc.Close()
	}
	if err := c.rebuildLocked(); err != nil {
		log.Printf("PEER [%s]: reset failed to rebuild peer connection: %v", c.label, err)
		c.phase = PhaseClosed
	}
}

// Close tears down the underlying peer connection.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return
	}
	c.phase = PhaseClosed
	if c.pc != nil {
		_ = c.pc.Close()
	}
}
