// Package proto defines the wire types shared by the signaling bus, the
// signaling state machine and the backend client.
package proto

import (
	"time"

	"github.com/google/uuid"
)

// Signal message type constants for the pub/sub wire format.
const (
	TypeReady  = "ready"
	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeICE    = "ice"
	TypeBye    = "bye"
	TypeHealth = "health"
	TypeChat   = "chat"
)

// Signal is the envelope published and received on the signaling bus.
// SessionVersion is the backend-minted fencing token: receivers must drop
// any signal whose SessionVersion does not match the session currently
// active for them.
type Signal struct {
	Type           string          `json:"type"`
	From           string          `json:"from"`
	To             string          `json:"to,omitempty"`
	SessionVersion string          `json:"session_version"`
	CorrelationID  string          `json:"correlation_id"`
	TS             int64           `json:"ts"`
	SDP            string          `json:"sdp,omitempty"`
	ICE            *ICECandidate   `json:"ice,omitempty"`
	Chat           *ChatPayload    `json:"chat,omitempty"`
}

// ICECandidate mirrors webrtc.ICECandidateInit in a transport-neutral shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ChatPayload carries an in-session text message.
type ChatPayload struct {
	Text string `json:"text"`
	ID   string `json:"id"`
}

// NewCorrelationID mints a fresh correlation id for outbound signals.
func NewCorrelationID() string { return uuid.NewString() }

// NewSignal builds a Signal with TS and CorrelationID filled in.
func NewSignal(typ, from, to, sessionVersion string) Signal {
	return Signal{
		Type:           typ,
		From:           from,
		To:             to,
		SessionVersion: sessionVersion,
		CorrelationID:  NewCorrelationID(),
		TS:             time.Now().UnixMilli(),
	}
}
