package stats

import "sort"

// SeqSet records which impression ingest sequences a rebuild read, as closed ranges.
// Rebuilds page the log in ingest order, so runs are usually long and the set stays small.
// The zero value is empty and ready to use.
type SeqSet struct {
	ranges []seqRange
}

type seqRange struct{ lo, hi int64 }

// Add inserts seq. Ascending input appends in constant time.
func (s *SeqSet) Add(seq int64) {
	n := len(s.ranges)
	if n > 0 {
		last := &s.ranges[n-1]
		switch {
		case seq >= last.lo && seq <= last.hi:
			return
		case seq == last.hi+1:
			last.hi = seq
			return
		}
	}
	if n == 0 || seq > s.ranges[n-1].hi {
		s.ranges = append(s.ranges, seqRange{lo: seq, hi: seq})
		return
	}

	i := sort.Search(n, func(i int) bool { return s.ranges[i].hi >= seq-1 })
	if s.ranges[i].lo <= seq && seq <= s.ranges[i].hi {
		return
	}
	if s.ranges[i].lo <= seq+1 {
		// Extends range i, and may close the gap to i+1.
		if seq < s.ranges[i].lo {
			s.ranges[i].lo = seq
		} else {
			s.ranges[i].hi = seq
		}
		if i+1 < n && s.ranges[i+1].lo == s.ranges[i].hi+1 {
			s.ranges[i].hi = s.ranges[i+1].hi
			s.ranges = append(s.ranges[:i+1], s.ranges[i+2:]...)
		}
		return
	}
	s.ranges = append(s.ranges, seqRange{})
	copy(s.ranges[i+1:], s.ranges[i:])
	s.ranges[i] = seqRange{lo: seq, hi: seq}
}

// Contains reports whether seq was added. A nil set contains nothing.
func (s *SeqSet) Contains(seq int64) bool {
	if s == nil {
		return false
	}
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].hi >= seq })
	return i < len(s.ranges) && s.ranges[i].lo <= seq
}

// Ranges is the number of disjoint runs held.
func (s *SeqSet) Ranges() int {
	if s == nil {
		return 0
	}
	return len(s.ranges)
}
