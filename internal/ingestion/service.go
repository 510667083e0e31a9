package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// MaxClockSkew is how far past the receive time an occurred_at may lie. Within it the
// timestamp is clamped to the receive time so a rebuild window ending now still covers it.
const MaxClockSkew = 5 * time.Minute

// Sink applies an accepted impression to the live statistics. *aggregation.Pipeline implements it.
type Sink interface {
	Ingest(imp *v1.Impression) stats.DeltaResult
}

type Service struct {
	store            storage.ImpressionStore
	sink             Sink
	maxBodySizeBytes int
	now              func() time.Time
}

func NewService(store storage.ImpressionStore, sink Sink, maxBodySizeMB int) *Service {
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if sink == nil {
		panic("ingestion: sink must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            store,
		sink:             sink,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		now:              time.Now,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/impressions", s.IngestHandler)
}

// Accept validates, persists and applies one impression. It is shared by the REST handler,
// the JSON-RPC impression_add method and the Redis subscriber.
//
// Errors wrap v1.ErrValidation or storage.ErrDuplicate when the impression is rejected.
// A persisted impression whose banner is not in the live snapshot is still accepted;
// the returned DeltaResult reports why it was not applied.
func (s *Service) Accept(ctx context.Context, imp *v1.Impression) (stats.DeltaResult, error) {
	now := s.now().UTC()
	imp.IngestedAt = now

	if err := imp.Validate(); err != nil {
		return stats.DeltaResult{}, err
	}
	if err := stampOccurredAt(imp, now); err != nil {
		return stats.DeltaResult{}, err
	}
	if err := s.store.SaveImpression(ctx, imp); err != nil {
		return stats.DeltaResult{}, fmt.Errorf("save impression %s: %w", imp.EventID, err)
	}

	res := s.sink.Ingest(imp)
	if !res.Applied {
		slog.Warn("[Ingestion] Impression persisted but not applied to snapshot",
			"event_id", imp.EventID,
			"banner_id", imp.BannerID,
			"reason", res.Reason,
		)
	}
	return res, nil
}

// stampOccurredAt defaults a missing occurred_at to now, rejects one beyond MaxClockSkew in the
// future, and clamps the rest to now.
func stampOccurredAt(imp *v1.Impression, now time.Time) error {
	switch {
	case imp.OccurredAt.IsZero():
		imp.OccurredAt = now
	case imp.OccurredAt.After(now.Add(MaxClockSkew)):
		return &v1.ValidationError{
			Field:  "occurred_at",
			Reason: fmt.Sprintf("is %s ahead of the receive time (max %s)", imp.OccurredAt.Sub(now).Round(time.Second), MaxClockSkew),
		}
	case imp.OccurredAt.After(now):
		imp.OccurredAt = now
	default:
		imp.OccurredAt = imp.OccurredAt.UTC()
	}
	return nil
}
