package projection

import (
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/shopspring/decimal"
)

// paidPrecision rounds float sums back to the precision impressions are stored with.
const paidPrecision = 8

func rollupForGranularity(records []dayRecord, granularity string, start, end time.Time, withPaid bool) []HistoryValue {
	if granularity == GranularityDay {
		return rollupToDay(records, start, end, withPaid)
	}
	return rollupTotal(records, start, end, withPaid)
}

// rollupTotal sums all records into a single value for the entire range.
func rollupTotal(records []dayRecord, start, end time.Time, withPaid bool) []HistoryValue {
	var impressions int64
	paid := decimal.Zero
	for _, r := range records {
		impressions += r.Impressions
		paid = paid.Add(decimal.NewFromFloat(r.Paid))
	}

	v := HistoryValue{WindowStart: start, WindowEnd: end, Impressions: impressions}
	if withPaid {
		rounded := paid.Round(paidPrecision)
		v.PaidAmount = &rounded
	}
	return []HistoryValue{v}
}

// rollupToDay emits one value per UTC day touching [start, end), zero-filled.
func rollupToDay(records []dayRecord, start, end time.Time, withPaid bool) []HistoryValue {
	byDay := make(map[v1.Day]dayRecord, len(records))
	for _, r := range records {
		byDay[r.Day] = r
	}

	var results []HistoryValue
	currentDay := truncateToDay(start)
	for currentDay.Before(end) {
		r := byDay[v1.DayOf(currentDay)]
		v := HistoryValue{
			WindowStart: currentDay,
			WindowEnd:   currentDay.Add(24 * time.Hour),
			Impressions: r.Impressions,
		}
		if withPaid {
			paid := decimal.NewFromFloat(r.Paid).Round(paidPrecision)
			v.PaidAmount = &paid
		}
		results = append(results, v)
		currentDay = currentDay.Add(24 * time.Hour)
	}
	return results
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
