package proto

import "fmt"

// MatchKind classifies what a match result routes to.
type MatchKind string

const (
	MatchKindVideo     MatchKind = "video"
	MatchKindLiveReal  MatchKind = "live_real"
	MatchKindLiveStaff MatchKind = "live_staff"
)

// IsLive reports whether the kind requires a WebRTC peer connection.
func (k MatchKind) IsLive() bool {
	return k == MatchKindLiveReal || k == MatchKindLiveStaff
}

// SessionDescriptor is the validated result of a successful match, after
// the actual_match_type/match_type classification and cross-validation
// rule has run against the raw MatchDescriptorJSON.
type SessionDescriptor struct {
	RoomID         string
	SessionVersion string
	MatchKind      MatchKind
	IsInitiator    bool
	PartnerID      string
	VideoID        string
	VideoURL       string
	VideoName      string
}

// PartnerJSON identifies the matched partner on the wire.
type PartnerJSON struct {
	ID string `json:"id"`
}

// UpdatedUserInfo carries the account fields the backend refreshed as a
// side effect of a join/status/swipe call (credits balance, remaining
// swipes). The global user store itself is out of scope; this client only
// forwards the delta to the host application.
type UpdatedUserInfo struct {
	Credits    int `json:"credits,omitempty"`
	SwipesLeft int `json:"swipes_left,omitempty"`
}

// MatchDescriptorJSON is the raw wire shape returned by the backend's
// join/status endpoints, before cross-validation. match_type is the
// requested/intended kind; actual_match_type, when present, is what the
// backend actually resolved it to and takes priority — but is never
// trusted blindly (see ClassifyMatch).
type MatchDescriptorJSON struct {
	MatchType       MatchKind        `json:"match_type,omitempty"`
	ActualMatchType MatchKind        `json:"actual_match_type,omitempty"`
	RoomID          string           `json:"room_id,omitempty"`
	SessionVersion  string           `json:"session_version,omitempty"`
	IsInitiator     bool             `json:"is_initiator,omitempty"`
	Partner         *PartnerJSON     `json:"partner,omitempty"`
	VideoID         string           `json:"video_id,omitempty"`
	VideoURL        string           `json:"video_url,omitempty"`
	VideoName       string           `json:"video_name,omitempty"`
	UpdatedUserInfo *UpdatedUserInfo `json:"updated_user_info,omitempty"`
}

// ClassifyMatch resolves a raw match descriptor into a validated
// SessionDescriptor. actual_match_type wins over match_type when present,
// but the resolved kind is always cross-validated against the fields it
// requires: a video match needs video_id and video_url, a live match needs
// a partner id distinct from selfID. An inconsistent live match downgrades
// to video when a video fallback is present; otherwise classification
// fails outright rather than handing the coordinator a session it cannot
// actually run.
func ClassifyMatch(selfID string, raw MatchDescriptorJSON) (SessionDescriptor, error) {
	kind := raw.MatchType
	if raw.ActualMatchType != "" {
		kind = raw.ActualMatchType
	}

	desc := SessionDescriptor{
		RoomID:         raw.RoomID,
		SessionVersion: raw.SessionVersion,
		MatchKind:      kind,
		IsInitiator:    raw.IsInitiator,
		VideoID:        raw.VideoID,
		VideoURL:       raw.VideoURL,
		VideoName:      raw.VideoName,
	}
	if raw.Partner != nil {
		desc.PartnerID = raw.Partner.ID
	}

	switch {
	case kind == MatchKindVideo:
		if desc.VideoID == "" || desc.VideoURL == "" {
			return SessionDescriptor{}, &FatalInternalError{Msg: "video match missing video_id/video_url"}
		}
	case kind.IsLive():
		if desc.PartnerID == "" || desc.PartnerID == selfID {
			if desc.VideoID == "" || desc.VideoURL == "" {
				return SessionDescriptor{}, &FatalInternalError{Msg: fmt.Sprintf("inconsistent %s match (partner=%q) with no video fallback", kind, desc.PartnerID)}
			}
			desc.MatchKind = MatchKindVideo
		}
	default:
		return SessionDescriptor{}, &FatalInternalError{Msg: "unknown match_type: " + string(kind)}
	}

	return desc, nil
}

// RemoteStreamStatus is a diagnostic snapshot exposed to the host
// application, e.g. for a debugging overlay.
type RemoteStreamStatus struct {
	HasStream       bool
	TrackCount      int
	ConnectionState string
	Phase           string
}
