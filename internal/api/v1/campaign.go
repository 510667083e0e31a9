package v1

import (
	"sort"
	"time"
)

// Keyword is one visitor/context attribute. Matching is exact equality of both parts.
type Keyword struct {
	Key   string `json:"keyword"`
	Value string `json:"value"`
}

func (k Keyword) String() string {
	return k.Key + "=" + k.Value
}

// Less orders keywords lexically by key, then value.
func (k Keyword) Less(other Keyword) bool {
	if k.Key != other.Key {
		return k.Key < other.Key
	}
	return k.Value < other.Value
}

// KeywordsOf flattens a keyword mapping into a sorted slice.
func KeywordsOf(m map[string]string) []Keyword {
	out := make([]Keyword, 0, len(m))
	for k, v := range m {
		out = append(out, Keyword{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Filters holds require/exclude keyword constraints.
//
// Require: every pair must be present and equal in the matched keywords.
// Exclude: no pair may be present and equal in the matched keywords.
type Filters struct {
	Require map[string]string `json:"require" yaml:"require"`
	Exclude map[string]string `json:"exclude" yaml:"exclude"`
}

// Match applies the filters to a keyword mapping.
func (f Filters) Match(keywords map[string]string) bool {
	for k, v := range f.Require {
		got, ok := keywords[k]
		if !ok || got != v {
			return false
		}
	}
	for k, v := range f.Exclude {
		if got, ok := keywords[k]; ok && got == v {
			return false
		}
	}
	return true
}

// Validate checks that both maps are well formed.
func (f Filters) Validate() error {
	if err := validateKeywordMap("filters.require", f.Require); err != nil {
		return err
	}
	return validateKeywordMap("filters.exclude", f.Exclude)
}

// Campaign is an advertiser's targeting unit with a validity window and a set of banners.
type Campaign struct {
	CampaignID string            `json:"campaign_id" yaml:"campaign_id"`
	TimeStart  int64             `json:"time_start" yaml:"time_start"` // unix seconds, inclusive
	TimeEnd    int64             `json:"time_end" yaml:"time_end"`     // unix seconds, inclusive
	Filters    Filters           `json:"filters" yaml:"filters"`
	Keywords   map[string]string `json:"keywords" yaml:"keywords"`
	Banners    []Banner          `json:"banners" yaml:"banners"`
}

// Banner is a creative belonging to a campaign.
type Banner struct {
	BannerID   string            `json:"banner_id" yaml:"banner_id"`
	CampaignID string            `json:"campaign_id" yaml:"campaign_id"`
	BannerSize string            `json:"banner_size" yaml:"banner_size"`
	Keywords   map[string]string `json:"keywords" yaml:"keywords"`
}

// NewCampaign builds a validated campaign. Banners inherit the campaign id when they omit it.
func NewCampaign(id string, start, end time.Time, filters Filters, keywords map[string]string, banners ...Banner) (*Campaign, error) {
	c := &Campaign{
		CampaignID: id,
		TimeStart:  start.Unix(),
		TimeEnd:    end.Unix(),
		Filters:    filters,
		Keywords:   keywords,
		Banners:    banners,
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewBanner builds a validated banner.
func NewBanner(id, campaignID, size string, keywords map[string]string) (*Banner, error) {
	b := &Banner{BannerID: id, CampaignID: campaignID, BannerSize: size, Keywords: keywords}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Normalize fills the back-reference of nested banners.
func (c *Campaign) Normalize() {
	for i := range c.Banners {
		if c.Banners[i].CampaignID == "" {
			c.Banners[i].CampaignID = c.CampaignID
		}
	}
}

// Validate ensures the campaign and all of its banners are well formed.
func (c *Campaign) Validate() error {
	if c.CampaignID == "" {
		return invalid("campaign_id", "is required")
	}
	if c.TimeStart > c.TimeEnd {
		return invalid("time_start", "must not be after time_end (%d > %d)", c.TimeStart, c.TimeEnd)
	}
	if err := c.Filters.Validate(); err != nil {
		return err
	}
	if err := validateKeywordMap("keywords", c.Keywords); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Banners))
	for i := range c.Banners {
		b := &c.Banners[i]
		if err := b.Validate(); err != nil {
			return err
		}
		if b.CampaignID != c.CampaignID {
			return invalid("banners.campaign_id", "banner %q belongs to %q, not %q", b.BannerID, b.CampaignID, c.CampaignID)
		}
		if _, dup := seen[b.BannerID]; dup {
			return invalid("banners.banner_id", "duplicate banner %q", b.BannerID)
		}
		seen[b.BannerID] = struct{}{}
	}
	return nil
}

// ActiveAt reports whether now falls inside [TimeStart, TimeEnd].
func (c *Campaign) ActiveAt(now time.Time) bool {
	ts := now.Unix()
	return c.TimeStart <= ts && ts <= c.TimeEnd
}

// Validate ensures the banner carries its identifiers and a well-formed size.
func (b *Banner) Validate() error {
	if b.BannerID == "" {
		return invalid("banner_id", "is required")
	}
	if b.CampaignID == "" {
		return invalid("campaign_id", "is required for banner %q", b.BannerID)
	}
	if !ValidBannerSize(b.BannerSize) {
		return invalid("banner_size", "malformed size %q for banner %q", b.BannerSize, b.BannerID)
	}
	return validateKeywordMap("keywords", b.Keywords)
}
