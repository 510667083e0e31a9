package stats

import (
	"sort"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// KeywordRank is one (keyword, banner) performance total used for ranking.
type KeywordRank struct {
	Keyword v1.Keyword
	Count   int64
	Paid    float64
}

// RevenuePerImpression is Paid/Count, zero when Count is zero.
func (r KeywordRank) RevenuePerImpression() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.Paid / float64(r.Count)
}

// ranksAhead reports whether a orders strictly before b.
func ranksAhead(a, b KeywordRank) bool {
	ra, rb := a.RevenuePerImpression(), b.RevenuePerImpression()
	if ra != rb {
		return ra > rb
	}
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	return a.Keyword.Less(b.Keyword)
}

func sortRanks(ranks []KeywordRank) {
	sort.Slice(ranks, func(i, j int) bool { return ranksAhead(ranks[i], ranks[j]) })
}

func keywordsOf(ranks []KeywordRank) []v1.Keyword {
	out := make([]v1.Keyword, len(ranks))
	for i, r := range ranks {
		out[i] = r.Keyword
	}
	return out
}

// RankKeywords orders ranks by revenue per impression descending, then count descending,
// then keyword lexically, and truncates to limit. The input slice is reordered in place.
func RankKeywords(ranks []KeywordRank, limit int) []v1.Keyword {
	sortRanks(ranks)
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return keywordsOf(ranks)
}

// refreshBest re-derives BestKeywords for one banner from all of its keyword totals.
func (s *Snapshot) refreshBest(bs *bannerStats) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	s.rankAllLocked(bs)
}

func (s *Snapshot) rankAllLocked(bs *bannerStats) {
	var ranks []KeywordRank
	bs.keywords.Range(func(key, value any) bool {
		n, paid := value.(*keywordStats).total.load()
		if n > 0 {
			ranks = append(ranks, KeywordRank{Keyword: key.(v1.Keyword), Count: n, Paid: paid})
		}
		return true
	})
	sortRanks(ranks)
	if limit := s.opts.bestLimit(); len(ranks) > limit {
		ranks = ranks[:limit]
	}
	s.storeTopLocked(bs, ranks)
}

func (s *Snapshot) storeTopLocked(bs *bannerStats, top []KeywordRank) {
	bs.top = top
	best := keywordsOf(top)
	bs.best.Store(&best)
}

// bumpBest folds the touched keywords into the banner's top-K.
//
// Untouched keywords outside the top rank no higher than the current last entry, so merging
// the touched ones and re-sorting the top is exact as long as no top entry lost ground. When
// one did and the list is full, an outside keyword may now outrank it and every keyword is
// ranked again.
func (s *Snapshot) bumpBest(bs *bannerStats, touched []v1.Keyword) {
	if len(touched) == 0 {
		return
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()

	limit := s.opts.bestLimit()
	next := make([]KeywordRank, len(bs.top), len(bs.top)+len(touched))
	copy(next, bs.top)
	pos := make(map[v1.Keyword]int, len(next))
	for i, r := range next {
		pos[r.Keyword] = i
	}

	declined := false
	for _, kw := range touched {
		ks := s.keywordStats(kw, bs.banner.BannerID)
		if ks == nil {
			continue
		}
		n, paid := ks.total.load()
		cur := KeywordRank{Keyword: kw, Count: n, Paid: paid}
		if i, ok := pos[kw]; ok {
			if ranksAhead(next[i], cur) {
				declined = true
			}
			next[i] = cur
			continue
		}
		pos[kw] = len(next)
		next = append(next, cur)
	}

	if declined && len(bs.top) >= limit {
		s.rankAllLocked(bs)
		return
	}
	sortRanks(next)
	if len(next) > limit {
		next = next[:limit]
	}
	s.storeTopLocked(bs, next)
}
