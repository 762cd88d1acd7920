package bonus

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
)

// Resolver runs provider lookups on a bounded worker pool so the tick thread
// never blocks on IO. Completions fire on a worker goroutine; callers hand
// the result back to their own thread (the session pending queue does this).
type Resolver struct {
	provider Provider
	pool     pond.Pool
	timeout  time.Duration
}

// NewResolver builds a resolver with the given worker count. timeout bounds
// each individual lookup.
func NewResolver(provider Provider, workers int, timeout time.Duration) *Resolver {
	if workers <= 0 {
		workers = 8
	}
	return &Resolver{
		provider: provider,
		pool:     pond.NewPool(workers),
		timeout:  timeout,
	}
}

// ResolveTower looks up a tower loadout asynchronously. done runs on a pool
// worker exactly once.
func (r *Resolver) ResolveTower(ctx context.Context, id uuid.UUID, done func(Loadout, error)) {
	r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		lo, err := r.provider.TowerLoadout(ctx, id)
		done(lo, err)
	})
}

// ResolvePlayerData looks up lobby data asynchronously. done runs on a pool
// worker exactly once.
func (r *Resolver) ResolvePlayerData(ctx context.Context, characterID uuid.UUID, done func(PlayerData, error)) {
	r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		data, err := r.provider.PlayerData(ctx, characterID)
		done(data, err)
	})
}

// Close drains in-flight lookups.
func (r *Resolver) Close() {
	r.pool.StopAndWait()
}
