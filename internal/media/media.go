// Package media owns the local audio/video capture stream: a single
// process-wide handle, acquired lazily and reused across sessions until a
// caller explicitly forces a refresh or releases it.
package media

import (
	"context"
	"sync"

	"github.com/pion/mediadevices"

	"github.com/petervdpas/goop2/internal/proto"
)

// Permission reports the outcome of a capture attempt.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
	PermissionNotFound
	PermissionNotSupported
)

// Constraints bounds the requested capture resolution.
type Constraints struct {
	MaxWidth  int
	MaxHeight int
}

func DefaultConstraints() Constraints {
	return Constraints{MaxWidth: 640, MaxHeight: 480}
}

// Manager owns the local capture stream.
type Manager struct {
	constraints Constraints

	mu         sync.Mutex
	stream     mediadevices.MediaStream
	permission Permission
}

func New(constraints Constraints) *Manager {
	return &Manager{constraints: constraints}
}

// EnsureLocalStream returns the current local stream, capturing it on
// first call. Subsequent calls are idempotent until Release or
// ForceRefresh.
func (m *Manager) EnsureLocalStream(ctx context.Context) (mediadevices.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.stream, nil
	}
	stream, perm, err := captureLocalStream(m.constraints)
	m.permission = perm
	if err != nil {
		return nil, err
	}
	m.stream = stream
	return stream, nil
}

// CheckPermission reports the last known capture permission outcome
// without forcing a new capture attempt.
func (m *Manager) CheckPermission(ctx context.Context) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permission == PermissionUnknown {
		return PermissionUnknown, &proto.PermissionError{Kind: "unknown"}
	}
	return m.permission, nil
}

// ForceRefresh releases the current stream (if any) and captures a fresh
// one, used to recover a dead track after a device was unplugged.
func (m *Manager) ForceRefresh(ctx context.Context) (mediadevices.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
	stream, perm, err := captureLocalStream(m.constraints)
	m.permission = perm
	if err != nil {
		return nil, err
	}
	m.stream = stream
	return stream, nil
}

// Release stops all local tracks and drops the cached stream.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.stream == nil {
		return
	}
	for _, t := range m.stream.GetTracks() {
		t.Close()
	}
	m.stream = nil
}
