package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/aevon-lab/adselect/internal/selection"
	"github.com/google/uuid"
)

// Selection outcomes reported to the observer.
const (
	ResultServed  = "served"
	ResultEmpty   = "empty"
	ResultInvalid = "invalid"
)

// Rebuilds is the part of the update pipeline the management surface drives.
type Rebuilds interface {
	RebuildNow(ctx context.Context) (uint64, error)
	RequestRebuild()
}

// SelectionObserver receives the outcome of every selection. The metrics package implements it.
type SelectionObserver interface {
	ObserveSelection(result string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveSelection(string, time.Duration) {}

// Option customizes a Service.
type Option func(*Service)

// WithObserver reports selection outcomes to o.
func WithObserver(o SelectionObserver) Option {
	return func(s *Service) { s.observer = o }
}

// Service is the decision and management layer shared by the REST, JSON-RPC and OpenRTB surfaces.
// Selections read the current snapshot only; campaign writes go to the repository and ask for a
// rebuild, so they become visible once the next snapshot is published.
type Service struct {
	cache     *stats.Cache
	selector  *selection.Selector
	campaigns storage.CampaignStore
	rebuilds  Rebuilds
	observer  SelectionObserver
	newID     func() uuid.UUID
}

// NewService wires the decision layer.
func NewService(
	cache *stats.Cache,
	selector *selection.Selector,
	campaigns storage.CampaignStore,
	rebuilds Rebuilds,
	opts ...Option,
) *Service {
	s := &Service{
		cache:     cache,
		selector:  selector,
		campaigns: campaigns,
		rebuilds:  rebuilds,
		observer:  nopObserver{},
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select ranks banners against the current snapshot. Errors wrap selection.ErrInvalidRequest.
func (s *Service) Select(_ context.Context, req *v1.SelectRequest) (*v1.SelectResponse, error) {
	started := time.Now()
	snap := s.cache.Current()

	banners, err := s.selector.Select(req, snap)
	if err != nil {
		s.observer.ObserveSelection(ResultInvalid, time.Since(started))
		return nil, err
	}

	result := ResultServed
	if len(banners) == 0 {
		result = ResultEmpty
	}
	s.observer.ObserveSelection(result, time.Since(started))

	return &v1.SelectResponse{
		RequestID:       s.newID(),
		SnapshotVersion: snap.Version(),
		Banners:         banners,
	}, nil
}

// UpsertCampaign validates and stores a campaign with its full banner set, then requests a rebuild.
func (s *Service) UpsertCampaign(ctx context.Context, c *v1.Campaign) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.campaigns.UpsertCampaign(ctx, c); err != nil {
		return fmt.Errorf("upsert campaign %s: %w", c.CampaignID, err)
	}
	slog.Info("[Decision] Campaign updated", "campaign_id", c.CampaignID, "banners", len(c.Banners))
	s.rebuilds.RequestRebuild()
	return nil
}

// UpsertBanner stores one banner of an existing campaign. storage.ErrNotFound if the campaign is absent.
func (s *Service) UpsertBanner(ctx context.Context, b *v1.Banner) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := s.campaigns.UpsertBanner(ctx, b); err != nil {
		return fmt.Errorf("upsert banner %s: %w", b.BannerID, err)
	}
	slog.Info("[Decision] Banner updated", "banner_id", b.BannerID, "campaign_id", b.CampaignID)
	s.rebuilds.RequestRebuild()
	return nil
}

// DeleteCampaign removes a campaign and requests a rebuild. storage.ErrNotFound if absent.
func (s *Service) DeleteCampaign(ctx context.Context, campaignID string) error {
	if campaignID == "" {
		return &v1.ValidationError{Field: "campaign_id", Reason: "is required"}
	}
	if err := s.campaigns.DeleteCampaign(ctx, campaignID); err != nil {
		return fmt.Errorf("delete campaign %s: %w", campaignID, err)
	}
	slog.Info("[Decision] Campaign deleted", "campaign_id", campaignID)
	s.rebuilds.RequestRebuild()
	return nil
}

// Rebuild runs a full rebuild now and returns the published snapshot version.
func (s *Service) Rebuild(ctx context.Context) (uint64, error) {
	return s.rebuilds.RebuildNow(ctx)
}

// BannerStats dumps the current statistics of one banner.
func (s *Service) BannerStats(bannerID string) (stats.BannerDump, bool) {
	return s.cache.Current().DumpBanner(bannerID)
}

// SnapshotSummary describes the snapshot currently serving.
type SnapshotSummary struct {
	Version   uint64    `json:"version"`
	BuiltAt   time.Time `json:"built_at"`
	Campaigns int       `json:"campaigns"`
	Banners   int       `json:"banners"`
}

// Summary reports the current snapshot.
func (s *Service) Summary() SnapshotSummary {
	snap := s.cache.Current()
	return SnapshotSummary{
		Version:   snap.Version(),
		BuiltAt:   snap.BuiltAt(),
		Campaigns: len(snap.Campaigns()),
		Banners:   snap.BannerCount(),
	}
}

// IsInvalid reports whether err is a caller mistake rather than a server failure.
func IsInvalid(err error) bool {
	return errors.Is(err, v1.ErrValidation) || errors.Is(err, selection.ErrInvalidRequest)
}
