//go:build linux

package media

import (
	"log"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/petervdpas/goop2/internal/proto"
)

// captureLocalStream tries video+audio, then video-only, then audio-only,
// since GetUserMedia fails as a unit if either requested track can't be
// opened and a missing/busy microphone should not prevent the camera
// working, or vice versa.
func captureLocalStream(c Constraints) (mediadevices.MediaStream, Permission, error) {
	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		log.Printf("MEDIA: no capture devices found")
	}

	type attempt struct {
		video bool
		audio bool
		label string
	}
	attempts := []attempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	}

	for _, a := range attempts {
		constraints := mediadevices.MediaStreamConstraints{}
		if a.video {
			constraints.Video = func(tc *mediadevices.MediaTrackConstraints) {
				// Exclude MJPEG: some cameras emit malformed JPEG frames on
				// that node, which poisons the downstream VP8 encoder.
				tc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				tc.Width = prop.IntRanged{Max: c.MaxWidth}
				tc.Height = prop.IntRanged{Max: c.MaxHeight}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Printf("MEDIA: GetUserMedia (%s) failed: %v", a.label, err)
			continue
		}
		log.Printf("MEDIA: local capture succeeded (%s), %d tracks", a.label, len(stream.GetTracks()))
		return stream, PermissionGranted, nil
	}

	return nil, PermissionDenied, &proto.PermissionError{Kind: "denied"}
}
