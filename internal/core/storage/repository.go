package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// ErrDuplicate is returned when an impression with the same event_id already exists.
var ErrDuplicate = errors.New("impression already exists")

// ErrNotFound is returned when a campaign or banner does not exist.
var ErrNotFound = errors.New("not found")

// CampaignStore is the management write path plus the rebuild's campaign read.
type CampaignStore interface {
	// FetchActiveCampaigns returns campaigns whose [time_start, time_end] contains now,
	// each with its banners, ordered by campaign_id.
	FetchActiveCampaigns(ctx context.Context, now time.Time) ([]v1.Campaign, error)

	// UpsertCampaign replaces the campaign and its full banner set.
	UpsertCampaign(ctx context.Context, campaign *v1.Campaign) error

	// UpsertBanner inserts or replaces one banner. The owning campaign must exist.
	UpsertBanner(ctx context.Context, banner *v1.Banner) error

	// DeleteCampaign removes a campaign and its banners. ErrNotFound if absent.
	DeleteCampaign(ctx context.Context, campaignID string) error
}

// ImpressionStore is the append-only impression log.
type ImpressionStore interface {
	// SaveImpression appends one impression and assigns its IngestSeq. ErrDuplicate on a repeated event_id.
	SaveImpression(ctx context.Context, imp *v1.Impression) error

	// FetchImpressions returns impressions with since <= occurred_at < until and ingest_seq > cursor,
	// in ingest_seq order, at most limit rows. cursor=0 means "from the beginning".
	// Callers page by passing the IngestSeq of the last row they received.
	FetchImpressions(ctx context.Context, since, until time.Time, cursor int64, limit int) ([]*v1.Impression, error)
}

// Repository is everything the engine needs from persistence.
type Repository interface {
	CampaignStore
	ImpressionStore

	Ping(ctx context.Context) error
}
