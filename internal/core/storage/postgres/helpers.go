package postgres

import (
	"encoding/json"
	"fmt"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
)

// marshalKeywords encodes a keyword mapping for a JSONB column.
// Nil maps are stored as an empty object so the column stays NOT NULL.
func marshalKeywords(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return b, nil
}

func unmarshalKeywords(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanImpressionRow scans one impressions row.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanImpressionRow(row scanner) (*v1.Impression, error) {
	var imp v1.Impression
	var keywordsJSON []byte

	err := row.Scan(
		&imp.EventID,
		&imp.UserID,
		&imp.BannerID,
		&imp.PublisherID,
		&imp.PaidAmount,
		&keywordsJSON,
		&imp.OccurredAt,
		&imp.IngestedAt,
		&imp.IngestSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan impression row: %w", err)
	}

	if imp.Keywords, err = unmarshalKeywords(keywordsJSON); err != nil {
		return nil, err
	}
	return &imp, nil
}

func scanCampaignRow(row scanner) (*v1.Campaign, error) {
	var c v1.Campaign
	var requireJSON, excludeJSON, keywordsJSON []byte

	if err := row.Scan(&c.CampaignID, &c.TimeStart, &c.TimeEnd, &requireJSON, &excludeJSON, &keywordsJSON); err != nil {
		return nil, fmt.Errorf("failed to scan campaign row: %w", err)
	}

	var err error
	if c.Filters.Require, err = unmarshalKeywords(requireJSON); err != nil {
		return nil, err
	}
	if c.Filters.Exclude, err = unmarshalKeywords(excludeJSON); err != nil {
		return nil, err
	}
	if c.Keywords, err = unmarshalKeywords(keywordsJSON); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanBannerRow(row scanner) (*v1.Banner, error) {
	var b v1.Banner
	var keywordsJSON []byte

	if err := row.Scan(&b.BannerID, &b.CampaignID, &b.BannerSize, &keywordsJSON); err != nil {
		return nil, fmt.Errorf("failed to scan banner row: %w", err)
	}

	var err error
	if b.Keywords, err = unmarshalKeywords(keywordsJSON); err != nil {
		return nil, err
	}
	return &b, nil
}
