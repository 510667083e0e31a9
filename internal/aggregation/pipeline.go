package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"golang.org/x/sync/singleflight"
)

// Rebuilder produces a fresh, unpublished snapshot. *Aggregator is the production implementation.
type Rebuilder interface {
	Rebuild(ctx context.Context, now time.Time) (*stats.Snapshot, error)
}

// Observer receives pipeline outcomes. The metrics package implements it.
type Observer interface {
	ObserveDelta(res stats.DeltaResult)
	ObserveRebuild(trigger string, err error, elapsed time.Duration, snap *stats.Snapshot)
}

type nopObserver struct{}

func (nopObserver) ObserveDelta(stats.DeltaResult) {}

func (nopObserver) ObserveRebuild(string, error, time.Duration, *stats.Snapshot) {}

// Rebuild triggers.
const (
	TriggerBootstrap = "bootstrap"
	TriggerInterval  = "interval"
	TriggerThreshold = "threshold"
	TriggerManual    = "manual"
)

// PipelineParameter controls rebuild scheduling.
type PipelineParameter struct {
	Interval       time.Duration
	Timeout        time.Duration
	Retries        int
	RetryBackoff   time.Duration
	DeltaThreshold int64
}

func (p PipelineParameter) normalized() PipelineParameter {
	n := p
	if n.Interval <= 0 {
		n.Interval = 5 * time.Minute
	}
	if n.Timeout <= 0 {
		n.Timeout = time.Minute
	}
	if n.Retries < 0 {
		n.Retries = 0
	}
	if n.RetryBackoff <= 0 {
		n.RetryBackoff = time.Second
	}
	return n
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver reports deltas and rebuilds to o.
func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// WithClock overrides time.Now for rebuild cutoffs.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.clock = now }
}

// Pipeline keeps the stats cache current: every impression is applied as a delta at once,
// and full rebuilds run on an interval, after DeltaThreshold deltas, or on request.
//
// Deltas that arrive while a rebuild is in flight are buffered. At publish, every buffered
// impression whose ingest sequence the rebuild did not read is replayed onto the new snapshot
// before it is swapped in.
//
// A rebuild is shared by every caller that asks for one while it runs. It runs on the
// pipeline's own context, so a caller that stops waiting does not cancel it for the others;
// Start cancels that context when it returns.
type Pipeline struct {
	cache     *stats.Cache
	rebuilder Rebuilder
	params    PipelineParameter
	observer  Observer
	clock     func() time.Time

	// gate is held shared by Ingest and exclusively by publish/abort.
	gate       sync.RWMutex
	rebuilding bool
	pendingMu  sync.Mutex
	pending    []*v1.Impression

	deltas  atomic.Int64
	trigger chan struct{}
	group   singleflight.Group

	life context.Context
	stop context.CancelFunc
}

// NewPipeline wires a cache to a rebuilder.
func NewPipeline(cache *stats.Cache, rebuilder Rebuilder, params PipelineParameter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cache:     cache,
		rebuilder: rebuilder,
		params:    params.normalized(),
		observer:  nopObserver{},
		clock:     time.Now,
		trigger:   make(chan struct{}, 1),
	}
	p.life, p.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the cache the pipeline maintains.
func (p *Pipeline) Cache() *stats.Cache { return p.cache }

// Ingest applies one impression to the live snapshot. It never blocks on a rebuild.
func (p *Pipeline) Ingest(imp *v1.Impression) stats.DeltaResult {
	p.gate.RLock()
	res := p.cache.ApplyDelta(imp)
	if p.rebuilding && imp != nil {
		p.pendingMu.Lock()
		p.pending = append(p.pending, imp)
		p.pendingMu.Unlock()
	}
	p.gate.RUnlock()

	p.observer.ObserveDelta(res)
	if !res.Applied {
		slog.Debug("[Pipeline] Delta not applied", "reason", res.Reason)
		return res
	}

	if t := p.params.DeltaThreshold; t > 0 && p.deltas.Add(1) >= t {
		p.RequestRebuild()
	}
	return res
}

// RequestRebuild asks the running loop for a rebuild without waiting for it.
// Requests made while one is already queued are coalesced.
func (p *Pipeline) RequestRebuild() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Start bootstraps the cache, then rebuilds on every tick and threshold signal until ctx ends.
func (p *Pipeline) Start(ctx context.Context) error {
	slog.Info("[Pipeline] Starting update pipeline",
		"interval", p.params.Interval,
		"timeout", p.params.Timeout,
		"retries", p.params.Retries,
		"delta_threshold", p.params.DeltaThreshold,
	)
	defer p.stop()

	if _, err := p.rebuild(ctx, TriggerBootstrap); err != nil {
		slog.Error("[Pipeline] Bootstrap rebuild failed, serving empty snapshot until next tick", "error", err)
	}

	ticker := time.NewTicker(p.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runScheduled(ctx, TriggerInterval)
		case <-p.trigger:
			p.runScheduled(ctx, TriggerThreshold)
		case <-ctx.Done():
			slog.Info("[Pipeline] Stopping (context cancelled)")
			return nil
		}
	}
}

func (p *Pipeline) runScheduled(ctx context.Context, trigger string) {
	if _, err := p.rebuild(ctx, trigger); err != nil {
		// Previous snapshot keeps serving; the next tick tries again.
		slog.Error("[Pipeline] Rebuild failed, keeping previous snapshot",
			"trigger", trigger,
			"error", err,
			"serving_version", p.cache.Current().Version(),
		)
	}
}

// RebuildNow runs a rebuild immediately and returns the published version.
// Concurrent callers share one rebuild. Cancelling ctx stops the wait, not the rebuild.
func (p *Pipeline) RebuildNow(ctx context.Context) (uint64, error) {
	return p.rebuild(ctx, TriggerManual)
}

func (p *Pipeline) rebuild(ctx context.Context, trigger string) (uint64, error) {
	ch := p.group.DoChan("rebuild", func() (interface{}, error) {
		return p.rebuildWithRetry(p.life, trigger)
	})
	select {
	case r := <-ch:
		if r.Shared {
			slog.Debug("[Pipeline] Coalesced rebuild request", "trigger", trigger)
		}
		if r.Err != nil {
			return 0, r.Err
		}
		return r.Val.(uint64), nil
	case <-ctx.Done():
		return 0, fmt.Errorf("stopped waiting for %s rebuild: %w", trigger, ctx.Err())
	}
}

func (p *Pipeline) rebuildWithRetry(ctx context.Context, trigger string) (uint64, error) {
	attempts := p.params.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		version, err := p.rebuildOnce(ctx, trigger)
		if err == nil {
			return version, nil
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		backoff := time.Duration(attempt) * p.params.RetryBackoff
		slog.Warn("[Pipeline] Rebuild attempt failed, retrying",
			"trigger", trigger,
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return 0, fmt.Errorf("rebuild cancelled after %d attempts: %w", attempt, errors.Join(lastErr, ctx.Err()))
		}
	}
	return 0, fmt.Errorf("rebuild failed after %d attempts: %w", attempts, lastErr)
}

func (p *Pipeline) rebuildOnce(ctx context.Context, trigger string) (uint64, error) {
	started := time.Now()

	// Buffering starts before the rebuild reads, so every delta it might miss is buffered.
	p.gate.Lock()
	p.rebuilding = true
	p.gate.Unlock()
	cutoff := p.clock()

	rctx, cancel := context.WithTimeout(ctx, p.params.Timeout)
	defer cancel()

	snap, err := p.rebuilder.Rebuild(rctx, cutoff)
	if err != nil {
		p.abort()
		p.observer.ObserveRebuild(trigger, err, time.Since(started), nil)
		return 0, err
	}

	version, replayed := p.publish(snap)
	p.observer.ObserveRebuild(trigger, nil, time.Since(started), snap)

	slog.Info("[Pipeline] Published snapshot",
		"trigger", trigger,
		"version", version,
		"banners", snap.BannerCount(),
		"replayed_deltas", replayed,
		"duration", time.Since(started),
	)
	return version, nil
}

// publish replays buffered deltas that the rebuild did not read and swaps the snapshot in.
func (p *Pipeline) publish(snap *stats.Snapshot) (uint64, int) {
	p.gate.Lock()
	defer p.gate.Unlock()

	p.pendingMu.Lock()
	pending := p.pending
	p.pending = nil
	p.pendingMu.Unlock()

	replayed := 0
	for _, imp := range pending {
		if snap.HasRead(imp.IngestSeq) {
			continue
		}
		if res := snap.Apply(imp); res.Applied {
			replayed++
		}
	}
	snap.MarkRead(nil)

	p.rebuilding = false
	p.deltas.Store(0)
	return p.cache.Publish(snap), replayed
}

func (p *Pipeline) abort() {
	p.gate.Lock()
	defer p.gate.Unlock()

	p.rebuilding = false
	p.pendingMu.Lock()
	p.pending = nil
	p.pendingMu.Unlock()
}
