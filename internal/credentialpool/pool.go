// Package credentialpool leases a bounded set of upstream API credentials
// to concurrent grading work, rotating through them FIFO and pulling a
// credential out of rotation for a cooldown window after it fails.
//
// The shape mirrors the teacher's ghostpool.PoolManager: a buffered
// channel holds the currently-available items, Borrow blocks on a
// channel-receive-or-context-done select, and Return/MarkFailed push the
// credential back onto rotation (immediately, or after a cooldown).
package credentialpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/inkgrade/internal/metrics"
)

// Credential is one leasable upstream API key.
type Credential struct {
	Key         string
	Fingerprint string
}

// Pool leases Credentials to callers under a borrow/return/mark-failed
// protocol. Implementations must be safe for concurrent use.
type Pool interface {
	// Borrow blocks until a credential is available, ctx is done, or the
	// configured borrow timeout elapses, whichever comes first.
	Borrow(ctx context.Context) (*Credential, error)
	// Return releases a credential back into rotation immediately.
	Return(c *Credential)
	// MarkFailed takes a credential out of rotation for the configured
	// cooldown window before returning it to the available set.
	MarkFailed(c *Credential)
	// AddKeys appends newly discovered credentials to the pool.
	AddKeys(rawKeys ...string)
	// AvailableCount reports how many credentials are currently leasable.
	AvailableCount() int
	// FailedCount reports how many credentials are in cooldown.
	FailedCount() int
	// RecoverFailedKeys moves any credential whose cooldown has elapsed
	// back into the available set, returning how many it recovered. Safe
	// to call on a timer.
	RecoverFailedKeys() int
}

// InProcessPool is the default, single-process Pool, backed by a buffered
// channel of available credentials plus a cooldown set, exactly the
// pattern used by the teacher's PoolManager.available channel.
type InProcessPool struct {
	mu             sync.Mutex
	available      chan *Credential
	cooling        map[string]coolingEntry
	cooldownWindow time.Duration
	borrowTimeout  time.Duration
}

type coolingEntry struct {
	cred    *Credential
	coolsAt time.Time
}

// NewInProcessPool builds a pool seeded with rawKeys.
func NewInProcessPool(rawKeys []string, cooldownWindow, borrowTimeout time.Duration) *InProcessPool {
	p := &InProcessPool{
		available:      make(chan *Credential, len(rawKeys)+64),
		cooling:        make(map[string]coolingEntry),
		cooldownWindow: cooldownWindow,
		borrowTimeout:  borrowTimeout,
	}
	p.AddKeys(rawKeys...)
	return p
}

func (p *InProcessPool) AddKeys(rawKeys ...string) {
	for _, k := range rawKeys {
		if k == "" {
			continue
		}
		p.available <- &Credential{Key: k, Fingerprint: Fingerprint(k)}
	}
	p.reportGauges()
}

func (p *InProcessPool) Borrow(ctx context.Context) (*Credential, error) {
	borrowCtx := ctx
	var cancel context.CancelFunc
	if p.borrowTimeout > 0 {
		borrowCtx, cancel = context.WithTimeout(ctx, p.borrowTimeout)
		defer cancel()
	}

	select {
	case c := <-p.available:
		p.reportGauges()
		return c, nil
	case <-borrowCtx.Done():
		return nil, borrowCtx.Err()
	}
}

func (p *InProcessPool) Return(c *Credential) {
	if c == nil {
		return
	}
	p.available <- c
	p.reportGauges()
}

func (p *InProcessPool) MarkFailed(c *Credential) {
	if c == nil {
		return
	}
	p.mu.Lock()
	p.cooling[c.Fingerprint] = coolingEntry{cred: c, coolsAt: time.Now().Add(p.cooldownWindow)}
	p.mu.Unlock()
	slog.Warn("credential marked failed, entering cooldown", "fingerprint", Masked(c.Fingerprint))
	p.reportGauges()
}

func (p *InProcessPool) RecoverFailedKeys() int {
	now := time.Now()
	p.mu.Lock()
	var ready []*Credential
	for fp, entry := range p.cooling {
		if now.After(entry.coolsAt) {
			ready = append(ready, entry.cred)
			delete(p.cooling, fp)
		}
	}
	p.mu.Unlock()

	for _, c := range ready {
		p.available <- c
	}
	p.reportGauges()
	return len(ready)
}

func (p *InProcessPool) AvailableCount() int {
	return len(p.available)
}

func (p *InProcessPool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cooling)
}

// reportGauges syncs the pool's Prometheus gauges to its current counts.
func (p *InProcessPool) reportGauges() {
	metrics.PoolAvailable.Set(float64(p.AvailableCount()))
	metrics.PoolFailed.Set(float64(p.FailedCount()))
}

// RunRecoveryLoop periodically calls RecoverFailedKeys until ctx is done,
// mirroring the teacher's maintainPool background loop.
func (p *InProcessPool) RunRecoveryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.RecoverFailedKeys(); n > 0 {
				slog.Info("credentials recovered from cooldown", "count", n)
			}
		}
	}
}
