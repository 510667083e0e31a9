package v1

import (
	"time"

	"github.com/google/uuid"
)

// SelectRequest is one banner-selection query.
type SelectRequest struct {
	// Keywords describe the visitor/page context.
	Keywords map[string]string `json:"keywords"`
	// BannerSize is optional; empty matches every size.
	BannerSize string `json:"banner_size,omitempty"`
	// BannerFilters constrain candidates by the banner's own keywords.
	BannerFilters Filters `json:"banner_filters"`
	// Limit caps the number of returned banners; zero means the server default.
	Limit int `json:"limit,omitempty"`

	// Now overrides the evaluation instant. Zero means time.Now().
	Now time.Time `json:"-"`
}

// Validate checks the request shape before it reaches the selector.
func (r *SelectRequest) Validate() error {
	if r.BannerSize != "" && !ValidBannerSize(r.BannerSize) {
		return invalid("banner_size", "malformed size %q", r.BannerSize)
	}
	if r.Limit < 0 {
		return invalid("limit", "must not be negative")
	}
	if err := validateKeywordMap("keywords", r.Keywords); err != nil {
		return err
	}
	return r.BannerFilters.Validate()
}

// ScoredBanner is one ranked candidate.
type ScoredBanner struct {
	BannerID   string  `json:"banner_id"`
	CampaignID string  `json:"campaign_id"`
	Score      float64 `json:"score"`
}

// SelectResponse wraps a ranking with the snapshot it was computed against.
type SelectResponse struct {
	RequestID       uuid.UUID      `json:"request_id"`
	SnapshotVersion uint64         `json:"snapshot_version"`
	Banners         []ScoredBanner `json:"banners"`
}
