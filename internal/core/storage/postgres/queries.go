package postgres

// SQL for the campaign catalog and the impression log.

const (
	// querySaveImpression appends one impression.
	// RETURNING ingest_seq gives the cursor position; ON CONFLICT DO NOTHING
	// returns no rows (sql.ErrNoRows) for a repeated event_id.
	querySaveImpression = `
		INSERT INTO impressions (
			event_id, user_id, banner_id, publisher_id,
			paid_amount, keywords, occurred_at, ingested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING ingest_seq
	`

	// queryFetchImpressions pages through one time window in ingest_seq order.
	queryFetchImpressions = `
		SELECT
			event_id, user_id, banner_id, publisher_id,
			paid_amount, keywords, occurred_at, ingested_at, ingest_seq
		FROM impressions
		WHERE occurred_at >= $1
		  AND occurred_at < $2
		  AND ingest_seq > $3
		ORDER BY ingest_seq ASC
		LIMIT $4
	`

	queryActiveCampaigns = `
		SELECT campaign_id, time_start, time_end, filter_require, filter_exclude, keywords
		FROM campaigns
		WHERE time_start <= $1
		  AND time_end >= $1
		ORDER BY campaign_id ASC
	`

	queryBannersForCampaigns = `
		SELECT banner_id, campaign_id, banner_size, keywords
		FROM banners
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id ASC, position ASC, banner_id ASC
	`

	queryUpsertCampaign = `
		INSERT INTO campaigns (
			campaign_id, time_start, time_end, filter_require, filter_exclude, keywords, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id) DO UPDATE SET
			time_start     = EXCLUDED.time_start,
			time_end       = EXCLUDED.time_end,
			filter_require = EXCLUDED.filter_require,
			filter_exclude = EXCLUDED.filter_exclude,
			keywords       = EXCLUDED.keywords,
			updated_at     = EXCLUDED.updated_at
	`

	// queryDeleteStaleBanners drops banners no longer listed by a campaign upsert.
	queryDeleteStaleBanners = `
		DELETE FROM banners
		WHERE campaign_id = $1
		  AND NOT (banner_id = ANY($2))
	`

	// queryUpsertBanner only inserts when the owning campaign exists; zero rows
	// affected means it does not.
	queryUpsertBanner = `
		INSERT INTO banners (banner_id, campaign_id, banner_size, keywords, position, updated_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM campaigns WHERE campaign_id = $2)
		ON CONFLICT (banner_id) DO UPDATE SET
			campaign_id = EXCLUDED.campaign_id,
			banner_size = EXCLUDED.banner_size,
			keywords    = EXCLUDED.keywords,
			position    = EXCLUDED.position,
			updated_at  = EXCLUDED.updated_at
	`

	// queryNextBannerPosition appends a standalone banner after the campaign's existing ones.
	queryNextBannerPosition = `
		SELECT COALESCE(
			(SELECT position FROM banners WHERE banner_id = $1),
			(SELECT COALESCE(MAX(position) + 1, 0) FROM banners WHERE campaign_id = $2)
		)
	`

	// Banners go with their campaign through ON DELETE CASCADE.
	queryDeleteCampaign = `DELETE FROM campaigns WHERE campaign_id = $1`

	queryTablesPresent = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_name = ANY($1)
	`
)
