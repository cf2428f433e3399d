// Package poller repeats a single backend status check on a fixed
// interval while the client is queued for a match.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/petervdpas/goop2/internal/backend"
	"github.com/petervdpas/goop2/internal/proto"
)

// Poller owns a single repeating timer; only one Start may be active at a
// time — a second Start call stops the previous one first.
type Poller struct {
	client   *backend.Client
	selfID   string
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(client *backend.Client, selfID string, interval time.Duration) *Poller {
	return &Poller{client: client, selfID: selfID, interval: interval}
}

// Start begins polling. onMatch fires once a classified match is found;
// onAuthFailure fires and stops the poller if the backend rejects the
// bearer token; onError fires (without stopping the poller) if a match was
// found but failed cross-validation.
func (p *Poller) Start(ctx context.Context, onMatch func(proto.SessionDescriptor), onAuthFailure func(), onError func(error)) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := p.client.Status(ctx)
				if err != nil {
					var authErr *proto.AuthError
					if asAuthError(err, &authErr) {
						log.Printf("POLL: auth failure, stopping: %v", err)
						if onAuthFailure != nil {
							onAuthFailure()
						}
						return
					}
					log.Printf("POLL: status check failed: %v", err)
					continue
				}
				if res.Status == "matched" {
					desc, err := proto.ClassifyMatch(p.selfID, res.MatchDescriptorJSON)
					if err != nil {
						log.Printf("POLL: match failed classification: %v", err)
						if onError != nil {
							onError(err)
						}
						continue
					}
					if onMatch != nil {
						onMatch(desc)
					}
					return
				}
			}
		}
	}()
}

func asAuthError(err error, target **proto.AuthError) bool {
	if ae, ok := err.(*proto.AuthError); ok {
		*target = ae
		return true
	}
	return false
}

// Stop halts any in-flight polling loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
