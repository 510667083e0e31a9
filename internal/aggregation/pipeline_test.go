package aggregation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRebuilder struct {
	calls atomic.Int32
	fn    func(ctx context.Context, now time.Time) (*stats.Snapshot, error)
}

func (s *stubRebuilder) Rebuild(ctx context.Context, now time.Time) (*stats.Snapshot, error) {
	s.calls.Add(1)
	return s.fn(ctx, now)
}

func marciSnapshot(now time.Time) *stats.Snapshot {
	return stats.NewSnapshot([]v1.Campaign{*marciCampaign()}, nil, now, stats.Options{})
}

func fixedClock() time.Time { return rebuildNow }

func TestPipeline_IngestAppliesDelta(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	cache.Publish(marciSnapshot(rebuildNow))
	p := NewPipeline(cache, &stubRebuilder{}, PipelineParameter{})

	res := p.Ingest(newImpression("e1", "b_Juri", "17", map[string]string{"Rusty": "Max"}, rebuildNow))
	require.True(t, res.Applied)
	assert.Equal(t, int64(1), cache.Current().TotalImpressions("b_Juri"))

	res = p.Ingest(newImpression("e2", "b_Ghost", "1", nil, rebuildNow))
	assert.False(t, res.Applied)
	assert.Equal(t, stats.ReasonUnknownBanner, res.Reason)
}

func TestPipeline_RebuildNowPublishes(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	agg := NewAggregator(seededRepo(t,
		newImpression("e1", "b_Juri", "17", map[string]string{"Rusty": "Max"}, rebuildNow.Add(-time.Hour)),
	), RebuildParameter{})
	p := NewPipeline(cache, agg, PipelineParameter{}, WithClock(fixedClock))

	version, err := p.RebuildNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, uint64(1), cache.Current().Version())
	assert.Equal(t, 17.0, cache.Current().KeywordPaidTotal(v1.Keyword{Key: "Rusty", Value: "Max"}, "b_Juri"))
}

func TestPipeline_FailedRebuildKeepsPreviousSnapshot(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	cache.Publish(marciSnapshot(rebuildNow))
	before := cache.Current()

	dbErr := errors.New("repository unreachable")
	rb := &stubRebuilder{fn: func(context.Context, time.Time) (*stats.Snapshot, error) { return nil, dbErr }}
	p := NewPipeline(cache, rb, PipelineParameter{Retries: 2, RetryBackoff: time.Millisecond})

	_, err := p.RebuildNow(context.Background())
	require.ErrorIs(t, err, dbErr)
	assert.Equal(t, int32(3), rb.calls.Load())
	assert.Same(t, before, cache.Current())

	// Deltas keep flowing into the surviving snapshot.
	res := p.Ingest(newImpression("e1", "b_Juri", "1", nil, rebuildNow))
	assert.True(t, res.Applied)
	assert.Equal(t, int64(1), cache.Current().TotalImpressions("b_Juri"))
}

func TestPipeline_RetrySucceedsAfterTransientFailure(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	rb := &stubRebuilder{}
	rb.fn = func(_ context.Context, now time.Time) (*stats.Snapshot, error) {
		if rb.calls.Load() == 1 {
			return nil, errors.New("transient")
		}
		return marciSnapshot(now), nil
	}
	p := NewPipeline(cache, rb, PipelineParameter{Retries: 1, RetryBackoff: time.Millisecond})

	version, err := p.RebuildNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, int32(2), rb.calls.Load())
}

func TestPipeline_RebuildHonorsTimeout(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	rb := &stubRebuilder{fn: func(ctx context.Context, _ time.Time) (*stats.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := NewPipeline(cache, rb, PipelineParameter{Timeout: 20 * time.Millisecond})

	_, err := p.RebuildNow(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), cache.Current().Version())
}

func TestPipeline_ThresholdRequestsRebuild(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	cache.Publish(marciSnapshot(rebuildNow))
	p := NewPipeline(cache, &stubRebuilder{}, PipelineParameter{DeltaThreshold: 2})

	p.Ingest(newImpression("e1", "b_Juri", "1", nil, rebuildNow))
	assert.Len(t, p.trigger, 0)

	p.Ingest(newImpression("e2", "b_Juri", "1", nil, rebuildNow))
	assert.Len(t, p.trigger, 1)

	// Further signals coalesce into the one already queued.
	p.Ingest(newImpression("e3", "b_Juri", "1", nil, rebuildNow))
	assert.Len(t, p.trigger, 1)
}

func TestPipeline_ReplaysDeltasArrivingDuringRebuild(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	cache.Publish(marciSnapshot(rebuildNow))

	started := make(chan struct{})
	release := make(chan struct{})
	rb := &stubRebuilder{fn: func(_ context.Context, now time.Time) (*stats.Snapshot, error) {
		close(started)
		<-release
		snap := marciSnapshot(now)
		read := &stats.SeqSet{}
		read.Add(41)
		snap.MarkRead(read)
		return snap, nil
	}}
	p := NewPipeline(cache, rb, PipelineParameter{}, WithClock(fixedClock))

	done := make(chan error, 1)
	go func() {
		_, err := p.RebuildNow(context.Background())
		done <- err
	}()
	<-started

	// Not among the sequences the rebuild read, so it is replayed.
	unread := newImpression("unread", "b_Juri", "4", map[string]string{"Rusty": "Max"}, rebuildNow.Add(-time.Hour))
	unread.IngestSeq = 42
	p.Ingest(unread)
	// Already folded into the rebuilt snapshot; replaying it would count it twice.
	read := newImpression("read", "b_Shirley", "4", nil, rebuildNow.Add(-time.Second))
	read.IngestSeq = 41
	p.Ingest(read)

	close(release)
	require.NoError(t, <-done)

	snap := cache.Current()
	assert.Equal(t, uint64(2), snap.Version())
	assert.Equal(t, int64(1), snap.TotalImpressions("b_Juri"))
	assert.Equal(t, 4.0, snap.KeywordPaidTotal(v1.Keyword{Key: "Rusty", Value: "Max"}, "b_Juri"))
	assert.Zero(t, snap.TotalImpressions("b_Shirley"))
	assert.Empty(t, p.pending)
}

func TestPipeline_ConcurrentRebuildsCoalesce(t *testing.T) {
	cache := stats.NewCache(stats.Options{})

	release := make(chan struct{})
	rb := &stubRebuilder{fn: func(_ context.Context, now time.Time) (*stats.Snapshot, error) {
		<-release
		return marciSnapshot(now), nil
	}}
	p := NewPipeline(cache, rb, PipelineParameter{})

	var wg sync.WaitGroup
	versions := make([]uint64, 4)
	for i := range versions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.RebuildNow(context.Background())
			assert.NoError(t, err)
			versions[i] = v
		}(i)
	}

	// Let every caller reach the singleflight group before releasing the rebuild.
	require.Eventually(t, func() bool { return rb.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, rb.calls.Load(), int32(2))
	assert.Equal(t, rb.calls.Load(), int32(cache.Current().Version()))
}

func TestPipeline_StartBootstrapsAndStops(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	rb := &stubRebuilder{fn: func(_ context.Context, now time.Time) (*stats.Snapshot, error) {
		return marciSnapshot(now), nil
	}}
	p := NewPipeline(cache, rb, PipelineParameter{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	require.Eventually(t, func() bool { return cache.Current().Version() == 1 }, time.Second, time.Millisecond)

	p.RequestRebuild()
	require.Eventually(t, func() bool { return cache.Current().Version() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

// pausingRepo holds a rebuild right after it has read the impression log.
type pausingRepo struct {
	*memory.Repository

	mu      sync.Mutex
	fetched chan struct{}
	release chan struct{}
}

func (r *pausingRepo) pauseNextFetch() (fetched <-chan struct{}, release chan<- struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = make(chan struct{})
	r.release = make(chan struct{})
	return r.fetched, r.release
}

func (r *pausingRepo) FetchImpressions(ctx context.Context, since, until time.Time, cursor int64, limit int) ([]*v1.Impression, error) {
	page, err := r.Repository.FetchImpressions(ctx, since, until, cursor, limit)

	r.mu.Lock()
	fetched, release := r.fetched, r.release
	r.fetched, r.release = nil, nil
	r.mu.Unlock()

	if fetched != nil {
		close(fetched)
		<-release
	}
	return page, err
}

func TestPipeline_ImpressionsAcceptedAfterRebuildReadSurvivePublish(t *testing.T) {
	ctx := context.Background()
	repo := &pausingRepo{Repository: seededRepo(t,
		newImpression("e1", "b_Juri", "1", nil, rebuildNow.Add(-time.Hour)),
	)}
	cache := stats.NewCache(stats.Options{})
	p := NewPipeline(cache, NewAggregator(repo, RebuildParameter{}), PipelineParameter{}, WithClock(fixedClock))

	_, err := p.RebuildNow(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), cache.Current().TotalImpressions("b_Juri"))

	// Persisted before the rebuild reads, applied while it runs.
	early := newImpression("e2", "b_Juri", "1", nil, rebuildNow.Add(-30*time.Minute))
	require.NoError(t, repo.SaveImpression(ctx, early))

	fetched, release := repo.pauseNextFetch()
	done := make(chan error, 1)
	go func() {
		_, err := p.RebuildNow(ctx)
		done <- err
	}()
	<-fetched

	assert.True(t, p.Ingest(early).Applied)

	// Backdated well before the cutoff, persisted after the rebuild read the log.
	backdated := newImpression("e3", "b_Juri", "5", map[string]string{"Rusty": "Max"}, rebuildNow.Add(-time.Minute))
	require.NoError(t, repo.SaveImpression(ctx, backdated))
	assert.True(t, p.Ingest(backdated).Applied)

	close(release)
	require.NoError(t, <-done)

	snap := cache.Current()
	assert.Equal(t, uint64(2), snap.Version())
	assert.Equal(t, int64(3), snap.TotalImpressions("b_Juri"))
	assert.Equal(t, 5.0, snap.KeywordPaidTotal(v1.Keyword{Key: "Rusty", Value: "Max"}, "b_Juri"))
	assert.False(t, snap.HasRead(early.IngestSeq), "read set is dropped once published")
}

func TestPipeline_AbandonedWaitDoesNotCancelSharedRebuild(t *testing.T) {
	cache := stats.NewCache(stats.Options{})
	release := make(chan struct{})
	rb := &stubRebuilder{fn: func(ctx context.Context, now time.Time) (*stats.Snapshot, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return marciSnapshot(now), nil
	}}
	p := NewPipeline(cache, rb, PipelineParameter{Timeout: time.Minute})

	reqCtx, cancelReq := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := p.RebuildNow(reqCtx)
		abandoned <- err
	}()
	require.Eventually(t, func() bool { return rb.calls.Load() == 1 }, time.Second, time.Millisecond)

	joined := make(chan error, 1)
	go func() {
		_, err := p.RebuildNow(context.Background())
		joined <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelReq()
	select {
	case err := <-abandoned:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the rebuild")
	}

	close(release)
	require.NoError(t, <-joined)
	assert.GreaterOrEqual(t, cache.Current().Version(), uint64(1))
	assert.LessOrEqual(t, rb.calls.Load(), int32(2))
}
