package proto

import "testing"

func TestClassifyMatchPrefersActualMatchType(t *testing.T) {
	desc, err := ClassifyMatch("me", MatchDescriptorJSON{
		MatchType:       MatchKindVideo,
		ActualMatchType: MatchKindLiveReal,
		RoomID:          "room1",
		Partner:         &PartnerJSON{ID: "them"},
	})
	if err != nil {
		t.Fatalf("ClassifyMatch: %v", err)
	}
	if desc.MatchKind != MatchKindLiveReal {
		t.Fatalf("expected actual_match_type to win, got %s", desc.MatchKind)
	}
	if desc.PartnerID != "them" {
		t.Fatalf("expected partner id %q, got %q", "them", desc.PartnerID)
	}
}

func TestClassifyMatchVideoRequiresVideoFields(t *testing.T) {
	_, err := ClassifyMatch("me", MatchDescriptorJSON{MatchType: MatchKindVideo, RoomID: "room1"})
	if err == nil {
		t.Fatalf("expected an error for a video match missing video_id/video_url")
	}
}

func TestClassifyMatchDowngradesInconsistentLiveMatch(t *testing.T) {
	desc, err := ClassifyMatch("me", MatchDescriptorJSON{
		MatchType: MatchKindLiveReal,
		Partner:   &PartnerJSON{ID: "me"}, // partner == self: invalid
		VideoID:   "v1",
		VideoURL:  "https://example.org/v1.mp4",
	})
	if err != nil {
		t.Fatalf("ClassifyMatch: %v", err)
	}
	if desc.MatchKind != MatchKindVideo {
		t.Fatalf("expected downgrade to video, got %s", desc.MatchKind)
	}
}

func TestClassifyMatchFailsWhenNoFallback(t *testing.T) {
	_, err := ClassifyMatch("me", MatchDescriptorJSON{
		MatchType: MatchKindLiveReal,
		Partner:   &PartnerJSON{ID: "me"},
	})
	if err == nil {
		t.Fatalf("expected an error when live match is inconsistent with no video fallback")
	}
}
