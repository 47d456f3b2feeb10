package credentialpool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/inkgrade/internal/metrics"
)

// RedisPool is the shared-remote Pool variant: several grading-core
// replicas lease credentials out of the same Redis-backed rotation
// instead of each holding its own in-process set, so a key taken out of
// rotation by one replica stays out of rotation for all of them.
//
// Available credentials live in a Redis list (LPUSH/BRPOP gives the same
// blocking-borrow semantics as the in-process channel); a cooling
// credential is written as "<rawKey>|<coolsAtUnixNano>", and
// RecoverFailedKeys scans the cooling set for markers past their deadline
// and re-queues them.
type RedisPool struct {
	client         *redis.Client
	listKey        string
	coolPrefix     string
	cooldownWindow time.Duration
	borrowTimeout  time.Duration
}

// NewRedisPool builds a Pool backed by rdb, namespaced under keyPrefix.
func NewRedisPool(rdb *redis.Client, keyPrefix string, cooldownWindow, borrowTimeout time.Duration) *RedisPool {
	return &RedisPool{
		client:         rdb,
		listKey:        keyPrefix + ":available",
		coolPrefix:     keyPrefix + ":cooling:",
		cooldownWindow: cooldownWindow,
		borrowTimeout:  borrowTimeout,
	}
}

func (p *RedisPool) AddKeys(rawKeys ...string) {
	ctx := context.Background()
	for _, k := range rawKeys {
		if k == "" {
			continue
		}
		p.client.LPush(ctx, p.listKey, k)
	}
	p.reportGauges()
}

func (p *RedisPool) Borrow(ctx context.Context) (*Credential, error) {
	borrowCtx := ctx
	var cancel context.CancelFunc
	if p.borrowTimeout > 0 {
		borrowCtx, cancel = context.WithTimeout(ctx, p.borrowTimeout)
		defer cancel()
	}

	res, err := p.client.BRPop(borrowCtx, p.borrowTimeout, p.listKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("credentialpool: redis borrow: %w", err)
	}
	// res[0] is the list key, res[1] is the popped value.
	key := res[1]
	p.reportGauges()
	return &Credential{Key: key, Fingerprint: Fingerprint(key)}, nil
}

func (p *RedisPool) Return(c *Credential) {
	if c == nil {
		return
	}
	p.client.LPush(context.Background(), p.listKey, c.Key)
	p.reportGauges()
}

func (p *RedisPool) MarkFailed(c *Credential) {
	if c == nil {
		return
	}
	ctx := context.Background()
	coolsAt := time.Now().Add(p.cooldownWindow).UnixNano()
	marker := fmt.Sprintf("%s|%d", c.Key, coolsAt)
	// Retain the marker a little past its own deadline so a slow sweep
	// still finds it instead of it vanishing silently.
	p.client.Set(ctx, p.coolPrefix+c.Fingerprint, marker, p.cooldownWindow+time.Minute)
	slog.Warn("credential marked failed, entering cooldown", "fingerprint", Masked(c.Fingerprint))
	p.reportGauges()
}

// RecoverFailedKeys scans the cooling set for markers whose cooldown has
// elapsed, requeues the underlying credential, and returns how many it
// recovered.
func (p *RedisPool) RecoverFailedKeys() int {
	ctx := context.Background()
	now := time.Now().UnixNano()
	recovered := 0
	iter := p.client.Scan(ctx, 0, p.coolPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		coolKey := iter.Val()
		marker, err := p.client.Get(ctx, coolKey).Result()
		if err != nil {
			continue
		}
		sep := strings.LastIndex(marker, "|")
		if sep < 0 {
			continue
		}
		rawKey := marker[:sep]
		coolsAt, err := strconv.ParseInt(marker[sep+1:], 10, 64)
		if err != nil || now < coolsAt {
			continue
		}
		if p.client.Del(ctx, coolKey).Val() == 1 {
			p.client.LPush(ctx, p.listKey, rawKey)
			recovered++
		}
	}
	if recovered > 0 {
		p.reportGauges()
	}
	return recovered
}

func (p *RedisPool) AvailableCount() int {
	n, err := p.client.LLen(context.Background(), p.listKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (p *RedisPool) FailedCount() int {
	ctx := context.Background()
	var count int
	iter := p.client.Scan(ctx, 0, p.coolPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

// reportGauges syncs the pool's Prometheus gauges to its current counts.
func (p *RedisPool) reportGauges() {
	metrics.PoolAvailable.Set(float64(p.AvailableCount()))
	metrics.PoolFailed.Set(float64(p.FailedCount()))
}

// RunRecoveryLoop periodically sweeps for expired cooldown markers.
func (p *RedisPool) RunRecoveryLoop(ctx context.Context, interval time.Duration) {
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
