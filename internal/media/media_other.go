//go:build !linux

package media

import (
	"github.com/pion/mediadevices"

	"github.com/petervdpas/goop2/internal/proto"
)

// captureLocalStream has no native capture backend on non-Linux platforms;
// callers fall back to a receive-only peer connection.
func captureLocalStream(c Constraints) (mediadevices.MediaStream, Permission, error) {
	return nil, PermissionNotSupported, &proto.PermissionError{Kind: "not_supported"}
}
