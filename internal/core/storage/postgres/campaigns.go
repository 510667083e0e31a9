package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/lib/pq"
)

// FetchActiveCampaigns loads campaigns whose window contains now, then their banners in one query.
func (a *Adapter) FetchActiveCampaigns(ctx context.Context, now time.Time) ([]v1.Campaign, error) {
	rows, err := a.db.QueryContext(ctx, queryActiveCampaigns, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []v1.Campaign
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, err
		}
		index[c.CampaignID] = len(campaigns)
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return campaigns, nil
	}

	ids := make([]string, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.CampaignID
	}

	bannerRows, err := a.db.QueryContext(ctx, queryBannersForCampaigns, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query banners: %w", err)
	}
	defer bannerRows.Close()

	for bannerRows.Next() {
		b, err := scanBannerRow(bannerRows)
		if err != nil {
			return nil, err
		}
		i, ok := index[b.CampaignID]
		if !ok {
			continue
		}
		campaigns[i].Banners = append(campaigns[i].Banners, *b)
	}
	if err := bannerRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating banners: %w", err)
	}

	return campaigns, nil
}

// UpsertCampaign writes the campaign row and replaces its banner set in one transaction.
func (a *Adapter) UpsertCampaign(ctx context.Context, campaign *v1.Campaign) error {
	requireJSON, err := marshalKeywords(campaign.Filters.Require)
	if err != nil {
		return err
	}
	excludeJSON, err := marshalKeywords(campaign.Filters.Exclude)
	if err != nil {
		return err
	}
	keywordsJSON, err := marshalKeywords(campaign.Keywords)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert campaign: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, queryUpsertCampaign,
		campaign.CampaignID,
		campaign.TimeStart,
		campaign.TimeEnd,
		requireJSON,
		excludeJSON,
		keywordsJSON,
		now,
	); err != nil {
		return fmt.Errorf("upsert campaign %s: %w", campaign.CampaignID, err)
	}

	keep := make([]string, len(campaign.Banners))
	for i, b := range campaign.Banners {
		keep[i] = b.BannerID
	}
	if _, err := tx.ExecContext(ctx, queryDeleteStaleBanners, campaign.CampaignID, pq.Array(keep)); err != nil {
		return fmt.Errorf("upsert campaign %s: prune banners: %w", campaign.CampaignID, err)
	}

	stmt, err := tx.PrepareContext(ctx, queryUpsertBanner)
	if err != nil {
		return fmt.Errorf("upsert campaign %s: prepare banner upsert: %w", campaign.CampaignID, err)
	}
	defer stmt.Close()

	for i, b := range campaign.Banners {
		bannerKeywords, err := marshalKeywords(b.Keywords)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, b.BannerID, campaign.CampaignID, b.BannerSize, bannerKeywords, i, now); err != nil {
			return fmt.Errorf("upsert campaign %s: banner %s: %w", campaign.CampaignID, b.BannerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert campaign %s: commit: %w", campaign.CampaignID, err)
	}

	slog.Debug("[Postgres] Upserted campaign",
		"campaign_id", campaign.CampaignID,
		"banners", len(campaign.Banners))
	return nil
}

// UpsertBanner inserts or replaces one banner of an existing campaign.
func (a *Adapter) UpsertBanner(ctx context.Context, banner *v1.Banner) error {
	keywordsJSON, err := marshalKeywords(banner.Keywords)
	if err != nil {
		return err
	}

	var position int
	if err := a.db.QueryRowContext(ctx, queryNextBannerPosition, banner.BannerID, banner.CampaignID).Scan(&position); err != nil {
		return fmt.Errorf("upsert banner %s: position: %w", banner.BannerID, err)
	}

	res, err := a.db.ExecContext(ctx, queryUpsertBanner,
		banner.BannerID,
		banner.CampaignID,
		banner.BannerSize,
		keywordsJSON,
		position,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert banner %s: %w", banner.BannerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert banner %s: rows affected: %w", banner.BannerID, err)
	}
	if n == 0 {
		return fmt.Errorf("campaign %q: %w", banner.CampaignID, storage.ErrNotFound)
	}
	return nil
}

// DeleteCampaign removes a campaign; its banners cascade.
func (a *Adapter) DeleteCampaign(ctx context.Context, campaignID string) error {
	res, err := a.db.ExecContext(ctx, queryDeleteCampaign, campaignID)
	if err != nil {
		return fmt.Errorf("delete campaign %s: %w", campaignID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign %s: rows affected: %w", campaignID, err)
	}
	if n == 0 {
		return fmt.Errorf("campaign %q: %w", campaignID, storage.ErrNotFound)
	}
	slog.Info("[Postgres] Deleted campaign", "campaign_id", campaignID)
	return nil
}
