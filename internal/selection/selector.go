package selection

import (
	"errors"
	"fmt"
	"sort"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
)

// DefaultColdStartScore is given to banners without recorded impressions so they stay
// in rotation instead of sorting below every banner with history.
const DefaultColdStartScore = 0.001

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid selection request")

// Options tune scoring.
type Options struct {
	ColdStartScore float64
	// MaxResults caps every response; zero means unbounded.
	MaxResults int
}

// Selector ranks eligible banners against one snapshot. It holds no mutable state and
// performs no I/O, so one instance serves any number of concurrent requests.
type Selector struct {
	opts Options
	now  func() time.Time
}

// NewSelector returns a selector. A zero ColdStartScore falls back to DefaultColdStartScore;
// configuration rejects zero, so only a zero-value Options reaches the fallback.
func NewSelector(opts Options) *Selector {
	if opts.ColdStartScore == 0 {
		opts.ColdStartScore = DefaultColdStartScore
	}
	return &Selector{opts: opts, now: time.Now}
}

type candidate struct {
	v1.ScoredBanner
	impressions int64
}

// Select returns the eligible banners for req ranked best first.
// An empty result is not an error.
func (s *Selector) Select(req *v1.SelectRequest, snap *stats.Snapshot) ([]v1.ScoredBanner, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := req.Now
	if now.IsZero() {
		now = s.now()
	}

	var candidates []candidate
	for i := range snap.Campaigns() {
		c := &snap.Campaigns()[i]
		if !Eligible(c, req.Keywords, now) {
			continue
		}
		for _, bannerID := range snap.Banners(c.CampaignID) {
			banner, ok := snap.Banner(bannerID)
			if !ok {
				continue
			}
			if req.BannerSize != "" && banner.BannerSize != req.BannerSize {
				continue
			}
			if !req.BannerFilters.Match(banner.Keywords) {
				continue
			}
			candidates = append(candidates, candidate{
				ScoredBanner: v1.ScoredBanner{
					BannerID:   banner.BannerID,
					CampaignID: c.CampaignID,
					Score:      s.Score(snap, banner, req.Keywords),
				},
				impressions: snap.TotalImpressions(banner.BannerID),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.impressions != b.impressions {
			return a.impressions > b.impressions
		}
		return a.BannerID < b.BannerID
	})

	limit := s.limit(req.Limit)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]v1.ScoredBanner, len(candidates))
	for i, c := range candidates {
		out[i] = c.ScoredBanner
	}
	return out, nil
}

func (s *Selector) limit(requested int) int {
	switch {
	case s.opts.MaxResults <= 0:
		return requested
	case requested <= 0 || requested > s.opts.MaxResults:
		return s.opts.MaxResults
	default:
		return requested
	}
}

// Eligible reports whether a campaign may serve the context at now: the window contains now,
// every require pair is present and equal, and no exclude pair is.
func Eligible(c *v1.Campaign, context map[string]string, now time.Time) bool {
	return c.ActiveAt(now) && c.Filters.Match(context)
}

// Score sums revenue per impression over the context keywords the banner targets or has
// earned with. Banners with no impressions get the cold-start score.
func (s *Selector) Score(snap *stats.Snapshot, banner v1.Banner, context map[string]string) float64 {
	total := snap.TotalImpressions(banner.BannerID)
	if total == 0 {
		return s.opts.ColdStartScore
	}

	relevant := make(map[v1.Keyword]struct{}, len(banner.Keywords))
	for k, v := range banner.Keywords {
		relevant[v1.Keyword{Key: k, Value: v}] = struct{}{}
	}
	for _, kw := range snap.BestKeywords(banner.BannerID) {
		relevant[kw] = struct{}{}
	}

	var paid float64
	for k, v := range context {
		kw := v1.Keyword{Key: k, Value: v}
		if _, ok := relevant[kw]; !ok {
			continue
		}
		paid += snap.KeywordPaidTotal(kw, banner.BannerID)
	}
	return paid / float64(total)
}
