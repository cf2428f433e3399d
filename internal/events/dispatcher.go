// Package events is the typed callback registry the coordinator uses to
// notify the host application. Delivery is posted through a single worker
// goroutine so a callback never runs on the firing component's own call
// stack — state-transition code must not be reentered mid-transition.
package events

import (
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

type ConnectionState string

const (
	ConnectionConnecting    ConnectionState = "connecting"
	ConnectionConnected     ConnectionState = "connected"
	ConnectionDisconnected  ConnectionState = "disconnected"
	ConnectionFailed        ConnectionState = "failed"
)

type ChatMessage struct {
	From string
	Text string
	ID   string
}

type VideoMatch struct {
	VideoID   string
	VideoURL  string
	VideoName string
}

// RemoteStream is the set of remote tracks received for the current live
// session so far. It is not a mediadevices.MediaStream — that type wraps
// locally captured tracks — since remote tracks arrive over the peer
// connection as bare webrtc.TrackRemote values instead.
type RemoteStream struct {
	Tracks []*webrtc.TrackRemote
}

// CreditsUpdate carries an account delta the backend reported alongside a
// join/status/swipe response (updated_user_info on the wire). The global
// user store itself is out of scope; this is a best-effort forward.
type CreditsUpdate struct {
	Credits    int
	SwipesLeft int
}

type Dispatcher struct {
	queue chan func()

	onRemoteStream    func(RemoteStream)
	onLocalStream     func(mediadevices.MediaStream)
	onConnectionState func(ConnectionState)
	onPartnerLeft     func()
	onMessageReceived func(ChatMessage)
	onVideoMatch      func(VideoMatch)
	onCreditsUpdated  func(CreditsUpdate)
	onError           func(error)
}

func New() *Dispatcher {
	d := &Dispatcher{queue: make(chan func(), 64)}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for fn := range d.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("EVENTS: callback panicked: %v", r)
				}
			}()
			fn()
		}()
	}
}

func (d *Dispatcher) post(fn func()) {
	select {
	case d.queue <- fn:
	default:
		log.Printf("EVENTS: queue full, dropping event")
	}
}

func (d *Dispatcher) OnRemoteStream(fn func(RemoteStream))        { d.onRemoteStream = fn }
func (d *Dispatcher) OnLocalStream(fn func(mediadevices.MediaStream)) { d.onLocalStream = fn }
func (d *Dispatcher) OnConnectionState(fn func(ConnectionState))   { d.onConnectionState = fn }
func (d *Dispatcher) OnPartnerLeft(fn func())                      { d.onPartnerLeft = fn }
func (d *Dispatcher) OnMessageReceived(fn func(ChatMessage))       { d.onMessageReceived = fn }
func (d *Dispatcher) OnVideoMatch(fn func(VideoMatch))             { d.onVideoMatch = fn }
func (d *Dispatcher) OnCreditsUpdated(fn func(CreditsUpdate))      { d.onCreditsUpdated = fn }
func (d *Dispatcher) OnError(fn func(error))                       { d.onError = fn }

func (d *Dispatcher) FireRemoteStream(s RemoteStream) {
	if d.onRemoteStream != nil {
		d.post(func() { d.onRemoteStream(s) })
	}
}

func (d *Dispatcher) FireLocalStream(s mediadevices.MediaStream) {
	if d.onLocalStream != nil {
		d.post(func() { d.onLocalStream(s) })
	}
}

func (d *Dispatcher) FireConnectionState(s ConnectionState) {
	if d.onConnectionState != nil {
		d.post(func() { d.onConnectionState(s) })
	}
}

func (d *Dispatcher) FirePartnerLeft() {
	if d.onPartnerLeft != nil {
		d.post(d.onPartnerLeft)
	}
}

func (d *Dispatcher) FireMessageReceived(m ChatMessage) {
	if d.onMessageReceived != nil {
		d.post(func() { d.onMessageReceived(m) })
	}
}

func (d *Dispatcher) FireVideoMatch(v VideoMatch) {
	if d.onVideoMatch != nil {
		d.post(func() { d.onVideoMatch(v) })
	}
}

func (d *Dispatcher) FireCreditsUpdated(c CreditsUpdate) {
	if d.onCreditsUpdated != nil {
		d.post(func() { d.onCreditsUpdated(c) })
	}
}

func (d *Dispatcher) FireError(err error) {
	if d.onError != nil {
		d.post(func() { d.onError(err) })
	}
}
