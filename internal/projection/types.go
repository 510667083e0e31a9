package projection

import (
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/shopspring/decimal"
)

// Granularities accepted by QueryHistory.
const (
	GranularityTotal = "total"
	GranularityDay   = "1d"
)

// HistoryQueryRequest asks for one banner's impressions over [Start, End).
// With Keyword set, only impressions that carried it are counted and paid amounts are reported.
type HistoryQueryRequest struct {
	BannerID    string
	Keyword     *v1.Keyword
	Start       time.Time
	End         time.Time
	Granularity string // default: "total"
}

// HistoryValue is one window of the response. PaidAmount is only set for keyword queries;
// the snapshot tracks revenue per keyword, not per banner.
type HistoryValue struct {
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Impressions int64            `json:"impressions"`
	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
}

// HistoryQueryResponse answers a history query from the snapshot that was live when it ran.
type HistoryQueryResponse struct {
	BannerID         string         `json:"banner_id"`
	CampaignID       string         `json:"campaign_id"`
	Keyword          *v1.Keyword    `json:"keyword,omitempty"`
	Start            time.Time      `json:"start"`
	End              time.Time      `json:"end"`
	Granularity      string         `json:"granularity"`
	SnapshotVersion  uint64         `json:"snapshot_version"`
	DataThrough      time.Time      `json:"data_through"`
	StalenessSeconds int            `json:"staleness_seconds"`
	Values           []HistoryValue `json:"values"`
}

// dayRecord is one day of history regardless of where it came from.
type dayRecord struct {
	Day         v1.Day
	Impressions int64
	Paid        float64
}
