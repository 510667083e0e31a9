package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/partition"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 50000
	defaultWorkerCount = 10
	defaultHorizon     = 30 * 24 * time.Hour
)

// RebuildParameter controls the horizon and throughput of a full rebuild.
type RebuildParameter struct {
	Horizon     stats.Horizon
	BatchSize   int
	WorkerCount int
	Snapshot    stats.Options
}

// DefaultRebuildParameter returns a 30 day horizon, 50K page size and 10 workers.
func DefaultRebuildParameter() RebuildParameter {
	return RebuildParameter{
		Horizon:     stats.Horizon{Size: defaultHorizon},
		BatchSize:   defaultBatchSize,
		WorkerCount: defaultWorkerCount,
	}
}

func (p RebuildParameter) normalized() RebuildParameter {
	n := p
	if n.Horizon.Size <= 0 {
		n.Horizon.Size = defaultHorizon
	}
	if n.BatchSize <= 0 {
		n.BatchSize = defaultBatchSize
	}
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	return n
}

// Aggregator computes a fresh statistics snapshot from repository truth.
type Aggregator struct {
	repo   storage.Repository
	params RebuildParameter
}

// NewAggregator creates an aggregator over repo.
func NewAggregator(repo storage.Repository, params RebuildParameter) *Aggregator {
	return &Aggregator{repo: repo, params: params.normalized()}
}

// Horizon is the rolling window folded into every rebuild.
func (a *Aggregator) Horizon() stats.Horizon { return a.params.Horizon }

// Rebuild reads active campaigns and impressions in [now-horizon, now) and derives a new,
// unpublished snapshot that remembers which ingest sequences it read. Any repository error
// abandons the rebuild.
func (a *Aggregator) Rebuild(ctx context.Context, now time.Time) (*stats.Snapshot, error) {
	started := time.Now()
	since := a.params.Horizon.Since(now)

	var campaigns []v1.Campaign
	var impressions []*v1.Impression

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		campaigns, err = a.repo.FetchActiveCampaigns(gctx, now)
		if err != nil {
			return fmt.Errorf("fetch active campaigns: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		impressions, err = a.fetchWindow(gctx, since, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	active := make([]v1.Campaign, 0, len(campaigns))
	known := make(map[string]struct{})
	for _, c := range campaigns {
		// The repository filters too; re-check so the snapshot never depends on it.
		if !c.ActiveAt(now) {
			continue
		}
		active = append(active, c)
		for _, b := range c.Banners {
			known[b.BannerID] = struct{}{}
		}
	}

	aggregates, skipped := buildAggregatesConcurrently(impressions, known, a.params.WorkerCount)
	snap := stats.NewSnapshot(active, aggregates, now, a.params.Snapshot)

	read := &stats.SeqSet{}
	for _, imp := range impressions {
		read.Add(imp.IngestSeq)
	}
	snap.MarkRead(read)

	slog.Info("[Aggregator] Rebuild complete",
		"campaigns", len(active),
		"banners", snap.BannerCount(),
		"impressions", len(impressions),
		"skipped_impressions", skipped,
		"read_ranges", read.Ranges(),
		"since", since,
		"until", now,
		"duration", time.Since(started),
	)
	return snap, nil
}

// fetchWindow pages through the impression log in ingest_seq order.
func (a *Aggregator) fetchWindow(ctx context.Context, since, until time.Time) ([]*v1.Impression, error) {
	var out []*v1.Impression
	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := a.repo.FetchImpressions(ctx, since, until, cursor, a.params.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch impressions after cursor %d: %w", cursor, err)
		}
		out = append(out, page...)
		if len(page) < a.params.BatchSize {
			return out, nil
		}
		cursor = page[len(page)-1].IngestSeq
	}
}

type decimalTally struct {
	count int64
	paid  decimal.Decimal
}

type bannerPartial struct {
	days     map[v1.Day]int64
	keywords map[v1.Keyword]map[v1.Day]decimalTally
}

func newBannerPartial() *bannerPartial {
	return &bannerPartial{
		days:     make(map[v1.Day]int64),
		keywords: make(map[v1.Keyword]map[v1.Day]decimalTally),
	}
}

func (p *bannerPartial) add(imp *v1.Impression) {
	day := imp.Day()
	p.days[day]++
	for k, v := range imp.Keywords {
		if k == "" {
			continue
		}
		kw := v1.Keyword{Key: k, Value: v}
		byDay, ok := p.keywords[kw]
		if !ok {
			byDay = make(map[v1.Day]decimalTally)
			p.keywords[kw] = byDay
		}
		t := byDay[day]
		t.count++
		t.paid = t.paid.Add(imp.PaidAmount)
		byDay[day] = t
	}
}

func (p *bannerPartial) merge(other *bannerPartial) {
	for day, n := range other.days {
		p.days[day] += n
	}
	for kw, days := range other.keywords {
		byDay, ok := p.keywords[kw]
		if !ok {
			p.keywords[kw] = days
			continue
		}
		for day, t := range days {
			cur := byDay[day]
			cur.count += t.count
			cur.paid = cur.paid.Add(t.paid)
			byDay[day] = cur
		}
	}
}

func (p *bannerPartial) toAggregate(bannerID string) stats.BannerAggregate {
	agg := stats.BannerAggregate{
		BannerID: bannerID,
		Days:     p.days,
		Keywords: make(map[v1.Keyword]map[v1.Day]stats.Tally, len(p.keywords)),
	}
	for kw, days := range p.keywords {
		out := make(map[v1.Day]stats.Tally, len(days))
		for day, t := range days {
			out[day] = stats.Tally{Count: t.count, Paid: t.paid.InexactFloat64()}
		}
		agg.Keywords[kw] = out
	}
	return agg
}

// buildAggregatesConcurrently groups impressions by banner partition, folds each group on a
// worker, and merges the per-worker partials. Impressions for unknown banners are skipped.
func buildAggregatesConcurrently(
	impressions []*v1.Impression,
	known map[string]struct{},
	workerCount int,
) ([]stats.BannerAggregate, int) {
	kept := make([]*v1.Impression, 0, len(impressions))
	for _, imp := range impressions {
		if _, ok := known[imp.BannerID]; ok {
			kept = append(kept, imp)
		}
	}
	skipped := len(impressions) - len(kept)
	groups := partition.Group(kept, func(imp *v1.Impression) string { return imp.BannerID })

	workerCount = minInt(workerCount, len(groups))
	if workerCount <= 0 {
		return nil, skipped
	}

	jobs := make(chan []*v1.Impression, len(groups))
	results := make(chan map[string]*bannerPartial, workerCount)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			local := make(map[string]*bannerPartial)
			for group := range jobs {
				for _, imp := range group {
					p, ok := local[imp.BannerID]
					if !ok {
						p = newBannerPartial()
						local[imp.BannerID] = p
					}
					p.add(imp)
				}
			}
			results <- local
		}()
	}

	for _, group := range groups {
		jobs <- group
	}
	close(jobs)

	wg.Wait()
	close(results)

	merged := make(map[string]*bannerPartial)
	for local := range results {
		for bannerID, p := range local {
			if existing, ok := merged[bannerID]; ok {
				existing.merge(p)
				continue
			}
			merged[bannerID] = p
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]stats.BannerAggregate, 0, len(ids))
	for _, id := range ids {
		out = append(out, merged[id].toAggregate(id))
	}
	return out, skipped
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
