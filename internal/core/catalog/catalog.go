package catalog

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"gopkg.in/yaml.v3"
)

// SeedCampaign is one campaign read from disk.
// Seeds are upserted at startup so a fresh deployment can serve without an admin call.
type SeedCampaign struct {
	Campaign    v1.Campaign
	Path        string
	Fingerprint string // SHA-256 of the raw YAML file
}

// rawCampaign is the on-disk YAML shape. Times are RFC 3339.
type rawCampaign struct {
	CampaignID string            `yaml:"campaign_id"`
	TimeStart  string            `yaml:"time_start"`
	TimeEnd    string            `yaml:"time_end"`
	Filters    v1.Filters        `yaml:"filters"`
	Keywords   map[string]string `yaml:"keywords"`
	Banners    []rawBanner       `yaml:"banners"`
}

type rawBanner struct {
	BannerID   string            `yaml:"banner_id"`
	BannerSize string            `yaml:"banner_size"`
	Keywords   map[string]string `yaml:"keywords"`
}

// Upserter is the slice of the repository seeding needs.
type Upserter interface {
	UpsertCampaign(ctx context.Context, c *v1.Campaign) error
}

// FileSystemLoader loads seed campaigns from *.yaml files in a directory, one campaign per file.
// Campaigns are loaded once; there is no hot reload.
type FileSystemLoader struct {
	dir   string
	seeds map[string]SeedCampaign // keyed by campaign id
}

// NewFileSystemLoader eagerly loads every seed file in dir.
// A missing directory yields zero seeds; a malformed file is an error.
func NewFileSystemLoader(dir string) (*FileSystemLoader, error) {
	l := &FileSystemLoader{
		dir:   dir,
		seeds: make(map[string]SeedCampaign),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileSystemLoader) load() error {
	if l.dir == "" {
		return nil
	}
	info, err := os.Stat(l.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("campaign seed dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("campaign seed path %q is not a directory", l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("reading campaign seed dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading seed file %s: %w", path, err)
		}

		var raw rawCampaign
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing seed file %s: %w", path, err)
		}
		if raw.CampaignID == "" {
			continue // empty or comment-only file
		}

		c, err := raw.toCampaign()
		if err != nil {
			return fmt.Errorf("seed file %s: %w", path, err)
		}
		if _, exists := l.seeds[c.CampaignID]; exists {
			return fmt.Errorf("campaign %q: duplicate seed (check multiple YAML files)", c.CampaignID)
		}

		l.seeds[c.CampaignID] = SeedCampaign{
			Campaign:    *c,
			Path:        path,
			Fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		}
	}
	return nil
}

func (r rawCampaign) toCampaign() (*v1.Campaign, error) {
	start, err := time.Parse(time.RFC3339, r.TimeStart)
	if err != nil {
		return nil, fmt.Errorf("campaign %q: time_start: %w", r.CampaignID, err)
	}
	end, err := time.Parse(time.RFC3339, r.TimeEnd)
	if err != nil {
		return nil, fmt.Errorf("campaign %q: time_end: %w", r.CampaignID, err)
	}

	banners := make([]v1.Banner, 0, len(r.Banners))
	for _, b := range r.Banners {
		banners = append(banners, v1.Banner{BannerID: b.BannerID, BannerSize: b.BannerSize, Keywords: b.Keywords})
	}
	return v1.NewCampaign(r.CampaignID, start, end, r.Filters, r.Keywords, banners...)
}

// Get returns the seed for campaignID.
func (l *FileSystemLoader) Get(campaignID string) (SeedCampaign, bool) {
	s, ok := l.seeds[campaignID]
	return s, ok
}

// Campaigns returns every seed ordered by campaign id.
func (l *FileSystemLoader) Campaigns() []SeedCampaign {
	out := make([]SeedCampaign, 0, len(l.seeds))
	for _, s := range l.seeds {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Campaign.CampaignID < out[j].Campaign.CampaignID })
	return out
}

// Seed upserts every loaded campaign and returns how many were written.
func (l *FileSystemLoader) Seed(ctx context.Context, store Upserter) (int, error) {
	return Seed(ctx, store, l.Campaigns())
}

// Seed upserts seeds in order, stopping at the first failure.
func Seed(ctx context.Context, store Upserter, seeds []SeedCampaign) (int, error) {
	n := 0
	for _, s := range seeds {
		c := s.Campaign
		if err := store.UpsertCampaign(ctx, &c); err != nil {
			return n, fmt.Errorf("seed campaign %q: %w", c.CampaignID, err)
		}
		slog.Info("[Catalog] Seeded campaign",
			"campaign_id", c.CampaignID,
			"banners", len(c.Banners),
			"fingerprint", short(s.Fingerprint),
		)
		n++
	}
	return n, nil
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
