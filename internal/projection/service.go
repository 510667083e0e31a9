package projection

import (
	"errors"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
)

// maxDailyWindows bounds a 1d query so a careless range cannot produce an unbounded response.
const maxDailyWindows = 366

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid history query")

	// ErrUnknownBanner is returned when the live snapshot does not index the banner.
	ErrUnknownBanner = errors.New("banner not in snapshot")
)

// Service implements the reporting layer over the live statistics snapshot.
// It never touches storage: history outside the rolling horizon is not available.
type Service struct {
	cache *stats.Cache
	nowFn func() time.Time
}

// NewService creates a new projection service.
func NewService(cache *stats.Cache) *Service {
	return &Service{
		cache: cache,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// QueryHistory reports a banner's impressions, optionally narrowed to one keyword.
func (s *Service) QueryHistory(req HistoryQueryRequest) (*HistoryQueryResponse, error) {
	req, err := normalizeAndValidate(req)
	if err != nil {
		return nil, err
	}

	snap := s.cache.Current()
	banner, ok := snap.Banner(req.BannerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBanner, req.BannerID)
	}

	records := loadRecords(snap, req)
	values := rollupForGranularity(records, req.Granularity, req.Start, req.End, req.Keyword != nil)

	// The snapshot folds in impressions up to its build time and every delta since,
	// so data is current as of now unless no snapshot has been built yet.
	dataThrough := s.nowFn()
	if snap.BuiltAt().IsZero() {
		dataThrough = req.Start
	}
	dataThrough = minTime(dataThrough, req.End)

	staleness := int(s.nowFn().Sub(dataThrough).Seconds())
	if staleness < 0 {
		staleness = 0
	}

	return &HistoryQueryResponse{
		BannerID:         banner.BannerID,
		CampaignID:       banner.CampaignID,
		Keyword:          req.Keyword,
		Start:            req.Start,
		End:              req.End,
		Granularity:      req.Granularity,
		SnapshotVersion:  snap.Version(),
		DataThrough:      dataThrough,
		StalenessSeconds: staleness,
		Values:           values,
	}, nil
}

func normalizeAndValidate(req HistoryQueryRequest) (HistoryQueryRequest, error) {
	if req.Granularity == "" {
		req.Granularity = GranularityTotal
	}
	req.Start = req.Start.UTC()
	req.End = req.End.UTC()

	if req.BannerID == "" {
		return req, invalidQueryf("banner_id is required")
	}
	if !req.End.After(req.Start) {
		return req, invalidQueryf("end time must be after start time")
	}
	if req.Keyword != nil && req.Keyword.Key == "" {
		return req, invalidQueryf("keyword name must not be empty")
	}

	switch req.Granularity {
	case GranularityTotal:
	case GranularityDay:
		if days := int(truncateToDay(req.End).Sub(truncateToDay(req.Start)).Hours() / 24); days > maxDailyWindows {
			return req, invalidQueryf("range spans %d days, at most %d allowed for granularity 1d", days, maxDailyWindows)
		}
	default:
		return req, invalidQueryf("invalid granularity: %s (must be total or 1d)", req.Granularity)
	}

	return req, nil
}

// loadRecords reads per-day history for the banner, restricted to days overlapping [Start, End).
func loadRecords(snap *stats.Snapshot, req HistoryQueryRequest) []dayRecord {
	var out []dayRecord
	keep := func(d v1.Day) bool {
		return d.Time().Before(req.End) && d.Time().Add(24*time.Hour).After(req.Start)
	}

	if req.Keyword != nil {
		for _, r := range snap.KeywordBanners(*req.Keyword)[req.BannerID] {
			if keep(r.Day) {
				out = append(out, dayRecord{Day: r.Day, Impressions: r.Count, Paid: r.PaidAmount})
			}
		}
		return out
	}

	dump, _ := snap.DumpBanner(req.BannerID)
	for _, d := range dump.Days {
		if keep(d.Day) {
			out = append(out, dayRecord{Day: d.Day, Impressions: d.Count})
		}
	}
	return out
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
