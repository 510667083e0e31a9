package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// DefaultBestKeywordsLimit bounds BestKeywords when Options leaves it unset.
const DefaultBestKeywordsLimit = 10

// Options tune snapshot derivations.
type Options struct {
	// BestKeywordsLimit is the top-K bound of every BestKeywords list.
	BestKeywordsLimit int
}

func (o Options) bestLimit() int {
	if o.BestKeywordsLimit <= 0 {
		return DefaultBestKeywordsLimit
	}
	return o.BestKeywordsLimit
}

// Tally is a (count, paid amount) pair for one aggregation cell.
type Tally struct {
	Count int64
	Paid  float64
}

// BannerAggregate is the per-banner output of a full rebuild, used to seed a Snapshot.
type BannerAggregate struct {
	BannerID string
	// Days holds ImpressionsCount[banner][day].
	Days map[v1.Day]int64
	// Keywords holds KeywordImpressionPaidAmount[keyword][banner][day] with its counts.
	Keywords map[v1.Keyword]map[v1.Day]Tally
}

// PeriodRecord is one day of a (keyword, banner) history.
type PeriodRecord struct {
	Day        v1.Day  `json:"day"`
	Count      int64   `json:"count"`
	PaidAmount float64 `json:"paid_amount"`
}

// Snapshot is one generation of the statistics cache.
//
// The campaign/banner index is fixed at construction. Counters are atomic cells that
// ApplyDelta may bump while readers are active; each read observes a whole counter.
type Snapshot struct {
	version uint64
	builtAt time.Time
	opts    Options

	campaigns       []v1.Campaign
	campaignBanners map[string][]string
	banners         map[string]*bannerStats

	// keywordIndex maps v1.Keyword -> *sync.Map of banner ids that carry history for it.
	keywordIndex sync.Map

	// read holds the ingest sequences the producing rebuild folded in.
	read *SeqSet
}

type bannerStats struct {
	banner v1.Banner

	total atomic.Int64
	days  sync.Map // v1.Day -> *atomic.Int64

	keywords sync.Map // v1.Keyword -> *keywordStats

	// mu serializes BestKeywords maintenance for this banner only.
	mu sync.Mutex

	// top is the ranked top-K with the totals it was ranked on. Guarded by mu.
	top  []KeywordRank
	best atomic.Pointer[[]v1.Keyword]
}

type keywordStats struct {
	total cell
	days  sync.Map // v1.Day -> *cell
}

// NewSnapshot indexes campaigns and loads the rebuilt aggregates.
// Aggregates whose banner is not part of campaigns are dropped.
func NewSnapshot(campaigns []v1.Campaign, aggregates []BannerAggregate, builtAt time.Time, opts Options) *Snapshot {
	s := &Snapshot{
		builtAt:         builtAt,
		opts:            opts,
		campaigns:       make([]v1.Campaign, len(campaigns)),
		campaignBanners: make(map[string][]string, len(campaigns)),
		banners:         make(map[string]*bannerStats),
	}
	copy(s.campaigns, campaigns)
	sort.Slice(s.campaigns, func(i, j int) bool { return s.campaigns[i].CampaignID < s.campaigns[j].CampaignID })

	for _, c := range s.campaigns {
		ids := make([]string, 0, len(c.Banners))
		for _, b := range c.Banners {
			if _, dup := s.banners[b.BannerID]; dup {
				continue
			}
			s.banners[b.BannerID] = &bannerStats{banner: b}
			ids = append(ids, b.BannerID)
		}
		s.campaignBanners[c.CampaignID] = ids
	}

	for _, agg := range aggregates {
		bs, ok := s.banners[agg.BannerID]
		if !ok {
			continue
		}
		for day, n := range agg.Days {
			loadOrCreate(&bs.days, day, newCounter).Add(n)
			bs.total.Add(n)
		}
		for kw, days := range agg.Keywords {
			ks := s.keywordStatsFor(bs, kw)
			for day, t := range days {
				loadOrCreate(&ks.days, day, newCell).add(t.Count, t.Paid)
				ks.total.add(t.Count, t.Paid)
			}
		}
	}

	for _, bs := range s.banners {
		s.refreshBest(bs)
	}
	return s
}

func newCounter() *atomic.Int64 { return new(atomic.Int64) }
func newCell() *cell             { return new(cell) }
func newKeywordStats() *keywordStats {
	return new(keywordStats)
}
func newBannerSet() *sync.Map { return new(sync.Map) }

func (s *Snapshot) keywordStatsFor(bs *bannerStats, kw v1.Keyword) *keywordStats {
	ks := loadOrCreate(&bs.keywords, kw, newKeywordStats)
	loadOrCreate(&s.keywordIndex, kw, newBannerSet).Store(bs.banner.BannerID, struct{}{})
	return ks
}

// MarkRead records the impressions the producing rebuild folded in. Call it before Publish.
func (s *Snapshot) MarkRead(seqs *SeqSet) { s.read = seqs }

// HasRead reports whether the impression with this ingest sequence is already counted by
// the rebuild. Sequence zero was never persisted and is never read.
func (s *Snapshot) HasRead(seq int64) bool {
	return seq > 0 && s.read.Contains(seq)
}

// Version is assigned by Cache.Publish. Zero means the snapshot was never published.
func (s *Snapshot) Version() uint64 { return s.version }

// BuiltAt is the evaluation instant of the rebuild that produced the snapshot.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Campaigns returns the indexed campaigns ordered by id. Callers must not modify the result.
func (s *Snapshot) Campaigns() []v1.Campaign { return s.campaigns }

// Banner returns the indexed banner.
func (s *Snapshot) Banner(bannerID string) (v1.Banner, bool) {
	bs, ok := s.banners[bannerID]
	if !ok {
		return v1.Banner{}, false
	}
	return bs.banner, true
}

// Banners returns the active banner ids of a campaign, in campaign order.
func (s *Snapshot) Banners(campaignID string) []string {
	return s.campaignBanners[campaignID]
}

// BannerCount is the number of indexed banners.
func (s *Snapshot) BannerCount() int { return len(s.banners) }

// ImpressionsCount returns the impression count of a banner on one day.
func (s *Snapshot) ImpressionsCount(bannerID string, day v1.Day) int64 {
	bs, ok := s.banners[bannerID]
	if !ok {
		return 0
	}
	if c := lookup[atomic.Int64](&bs.days, day); c != nil {
		return c.Load()
	}
	return 0
}

// TotalImpressions returns the banner's impression count summed over the horizon.
func (s *Snapshot) TotalImpressions(bannerID string) int64 {
	bs, ok := s.banners[bannerID]
	if !ok {
		return 0
	}
	return bs.total.Load()
}

// KeywordImpressionPaidAmount returns the amount paid on one day by impressions of the banner
// that carried the keyword.
func (s *Snapshot) KeywordImpressionPaidAmount(kw v1.Keyword, bannerID string, day v1.Day) float64 {
	ks := s.keywordStats(kw, bannerID)
	if ks == nil {
		return 0
	}
	if c := lookup[cell](&ks.days, day); c != nil {
		_, paid := c.load()
		return paid
	}
	return 0
}

// KeywordPaidTotal returns KeywordImpressionPaidAmount summed over the horizon.
func (s *Snapshot) KeywordPaidTotal(kw v1.Keyword, bannerID string) float64 {
	ks := s.keywordStats(kw, bannerID)
	if ks == nil {
		return 0
	}
	_, paid := ks.total.load()
	return paid
}

// KeywordCountTotal returns how many impressions of the banner carried the keyword.
func (s *Snapshot) KeywordCountTotal(kw v1.Keyword, bannerID string) int64 {
	ks := s.keywordStats(kw, bannerID)
	if ks == nil {
		return 0
	}
	n, _ := ks.total.load()
	return n
}

// KeywordBanners returns, for every banner with history under kw, its per-day records in
// ascending day order.
func (s *Snapshot) KeywordBanners(kw v1.Keyword) map[string][]PeriodRecord {
	set := lookup[sync.Map](&s.keywordIndex, kw)
	if set == nil {
		return map[string][]PeriodRecord{}
	}
	out := make(map[string][]PeriodRecord)
	set.Range(func(key, _ any) bool {
		bannerID := key.(string)
		if ks := s.keywordStats(kw, bannerID); ks != nil {
			out[bannerID] = periodRecords(ks)
		}
		return true
	})
	return out
}

// BestKeywords returns the banner's top keywords. The slice is shared; do not modify it.
func (s *Snapshot) BestKeywords(bannerID string) []v1.Keyword {
	bs, ok := s.banners[bannerID]
	if !ok {
		return nil
	}
	if best := bs.best.Load(); best != nil {
		return *best
	}
	return nil
}

func (s *Snapshot) keywordStats(kw v1.Keyword, bannerID string) *keywordStats {
	bs, ok := s.banners[bannerID]
	if !ok {
		return nil
	}
	return lookup[keywordStats](&bs.keywords, kw)
}

func periodRecords(ks *keywordStats) []PeriodRecord {
	var recs []PeriodRecord
	ks.days.Range(func(key, value any) bool {
		n, paid := value.(*cell).load()
		recs = append(recs, PeriodRecord{Day: key.(v1.Day), Count: n, PaidAmount: paid})
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].Day < recs[j].Day })
	return recs
}
