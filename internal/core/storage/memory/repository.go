package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/storage"
)

// Repository keeps campaigns and impressions in process memory.
// Used for database.type=memory and in tests.
type Repository struct {
	mu          sync.RWMutex
	campaigns   map[string]*v1.Campaign
	impressions []*v1.Impression
	eventIDs    map[string]struct{}
	seq         int64
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		campaigns: make(map[string]*v1.Campaign),
		eventIDs:  make(map[string]struct{}),
	}
}

var _ storage.Repository = (*Repository)(nil)

func (r *Repository) FetchActiveCampaigns(ctx context.Context, now time.Time) ([]v1.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]v1.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		if c.ActiveAt(now) {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

func (r *Repository) UpsertCampaign(ctx context.Context, campaign *v1.Campaign) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := cloneCampaign(campaign)
	r.mu.Lock()
	r.campaigns[c.CampaignID] = &c
	r.mu.Unlock()
	return nil
}

func (r *Repository) UpsertBanner(ctx context.Context, banner *v1.Banner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[banner.CampaignID]
	if !ok {
		return fmt.Errorf("campaign %q: %w", banner.CampaignID, storage.ErrNotFound)
	}
	b := cloneBanner(*banner)
	for i := range c.Banners {
		if c.Banners[i].BannerID == b.BannerID {
			c.Banners[i] = b
			return nil
		}
	}
	c.Banners = append(c.Banners, b)
	return nil
}

func (r *Repository) DeleteCampaign(ctx context.Context, campaignID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.campaigns[campaignID]; !ok {
		return fmt.Errorf("campaign %q: %w", campaignID, storage.ErrNotFound)
	}
	delete(r.campaigns, campaignID)
	return nil
}

func (r *Repository) SaveImpression(ctx context.Context, imp *v1.Impression) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.eventIDs[imp.EventID]; dup {
		return storage.ErrDuplicate
	}
	r.seq++
	imp.IngestSeq = r.seq

	cp := *imp
	cp.Keywords = cloneMap(imp.Keywords)
	r.impressions = append(r.impressions, &cp)
	r.eventIDs[imp.EventID] = struct{}{}
	return nil
}

func (r *Repository) FetchImpressions(ctx context.Context, since, until time.Time, cursor int64, limit int) ([]*v1.Impression, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	// impressions is appended in seq order, so seq-1 is the index of the first candidate.
	start := int(cursor)
	if start < 0 {
		start = 0
	}
	var out []*v1.Impression
	for i := start; i < len(r.impressions); i++ {
		imp := r.impressions[i]
		if imp.OccurredAt.Before(since) || !imp.OccurredAt.Before(until) {
			continue
		}
		cp := *imp
		cp.Keywords = cloneMap(imp.Keywords)
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneCampaign(c *v1.Campaign) v1.Campaign {
	out := *c
	out.Keywords = cloneMap(c.Keywords)
	out.Filters = v1.Filters{Require: cloneMap(c.Filters.Require), Exclude: cloneMap(c.Filters.Exclude)}
	out.Banners = make([]v1.Banner, len(c.Banners))
	for i, b := range c.Banners {
		out.Banners[i] = cloneBanner(b)
	}
	return out
}

func cloneBanner(b v1.Banner) v1.Banner {
	b.Keywords = cloneMap(b.Keywords)
	return b
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
