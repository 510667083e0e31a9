package stats

import (
	"sort"
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// SnapshotDump is a fully ordered copy of a snapshot's contents.
type SnapshotDump struct {
	Version uint64       `json:"version"`
	BuiltAt time.Time    `json:"built_at"`
	Banners []BannerDump `json:"banners"`
}

// BannerDump is one banner's statistics.
type BannerDump struct {
	BannerID     string        `json:"banner_id"`
	CampaignID   string        `json:"campaign_id"`
	BannerSize   string        `json:"banner_size"`
	Impressions  int64         `json:"impressions"`
	Days         []DayCount    `json:"days"`
	BestKeywords []v1.Keyword  `json:"best_keywords"`
	Keywords     []KeywordDump `json:"keywords"`
}

// DayCount is ImpressionsCount for one day.
type DayCount struct {
	Day   v1.Day `json:"day"`
	Count int64  `json:"count"`
}

// KeywordDump is the history of one (keyword, banner) pair.
type KeywordDump struct {
	Keyword v1.Keyword     `json:"keyword"`
	Count   int64          `json:"count"`
	Paid    float64        `json:"paid_amount"`
	Periods []PeriodRecord `json:"periods"`
}

// Dump copies every banner of the snapshot, ordered by banner id.
func (s *Snapshot) Dump() SnapshotDump {
	ids := make([]string, 0, len(s.banners))
	for id := range s.banners {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	d := SnapshotDump{Version: s.version, BuiltAt: s.builtAt, Banners: make([]BannerDump, 0, len(ids))}
	for _, id := range ids {
		bd, _ := s.DumpBanner(id)
		d.Banners = append(d.Banners, bd)
	}
	return d
}

// DumpBanner copies one banner's statistics.
func (s *Snapshot) DumpBanner(bannerID string) (BannerDump, bool) {
	bs, ok := s.banners[bannerID]
	if !ok {
		return BannerDump{}, false
	}

	bd := BannerDump{
		BannerID:     bs.banner.BannerID,
		CampaignID:   bs.banner.CampaignID,
		BannerSize:   bs.banner.BannerSize,
		Impressions:  bs.total.Load(),
		Days:         []DayCount{},
		BestKeywords: append([]v1.Keyword{}, s.BestKeywords(bannerID)...),
		Keywords:     []KeywordDump{},
	}

	bs.days.Range(func(key, value any) bool {
		bd.Days = append(bd.Days, DayCount{Day: key.(v1.Day), Count: value.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(bd.Days, func(i, j int) bool { return bd.Days[i].Day < bd.Days[j].Day })

	bs.keywords.Range(func(key, value any) bool {
		ks := value.(*keywordStats)
		n, paid := ks.total.load()
		bd.Keywords = append(bd.Keywords, KeywordDump{
			Keyword: key.(v1.Keyword),
			Count:   n,
			Paid:    paid,
			Periods: periodRecords(ks),
		})
		return true
	})
	sort.Slice(bd.Keywords, func(i, j int) bool { return bd.Keywords[i].Keyword.Less(bd.Keywords[j].Keyword) })

	return bd, true
}
