package stats

import (
	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// Reasons reported by a DeltaResult that was not applied.
const (
	ReasonUnknownBanner = "unknown_banner"
	ReasonNilEvent      = "nil_event"
)

// DeltaResult reports what an incremental update did.
type DeltaResult struct {
	Applied         bool   `json:"applied"`
	Reason          string `json:"reason,omitempty"`
	KeywordsApplied int    `json:"keywords_applied"`
	KeywordsSkipped int    `json:"keywords_skipped"`
	Version         uint64 `json:"snapshot_version"`
}

// Apply folds one impression into this snapshot's counters.
//
// Unknown banners are a reported no-op. Keywords with an empty name are skipped one by one;
// the rest of the event still counts.
func (s *Snapshot) Apply(imp *v1.Impression) DeltaResult {
	res := DeltaResult{Version: s.version}
	if imp == nil {
		res.Reason = ReasonNilEvent
		return res
	}
	bs, ok := s.banners[imp.BannerID]
	if !ok {
		res.Reason = ReasonUnknownBanner
		return res
	}

	day := imp.Day()
	paid := imp.PaidAmount.InexactFloat64()

	loadOrCreate(&bs.days, day, newCounter).Add(1)
	bs.total.Add(1)

	touched := make([]v1.Keyword, 0, len(imp.Keywords))
	for k, v := range imp.Keywords {
		if k == "" {
			res.KeywordsSkipped++
			continue
		}
		kw := v1.Keyword{Key: k, Value: v}
		ks := s.keywordStatsFor(bs, kw)
		loadOrCreate(&ks.days, day, newCell).add(1, paid)
		ks.total.add(1, paid)
		touched = append(touched, kw)
		res.KeywordsApplied++
	}

	s.bumpBest(bs, touched)
	res.Applied = true
	return res
}
