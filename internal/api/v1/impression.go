package v1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Impression records one banner being shown to one user with the context keywords present
// at serve time and the revenue it earned. Immutable once recorded.
type Impression struct {
	// EventID is unique across all impressions; it is the idempotency key for persistence.
	EventID     string            `json:"event_id"`
	UserID      string            `json:"user_id"`
	BannerID    string            `json:"banner_id"`
	PublisherID string            `json:"publisher_id"`
	PaidAmount  decimal.Decimal   `json:"paid_amount"`
	Keywords    map[string]string `json:"keywords"`

	// OccurredAt is the serve time; the day bucket is derived from it.
	// Ingestion stamps it with the receive time when the client omits it.
	OccurredAt time.Time `json:"occurred_at"`

	// IngestedAt is set by the ingestion service, not the client.
	IngestedAt time.Time `json:"ingested_at"`

	// IngestSeq is assigned by the repository and orders the impression log.
	IngestSeq int64 `json:"-"`
}

// NewImpression builds a validated impression occurring at the given time.
func NewImpression(eventID, userID, bannerID, publisherID string, paid decimal.Decimal, keywords map[string]string, occurredAt time.Time) (*Impression, error) {
	imp := &Impression{
		EventID:     eventID,
		UserID:      userID,
		BannerID:    bannerID,
		PublisherID: publisherID,
		PaidAmount:  paid,
		Keywords:    keywords,
		OccurredAt:  occurredAt.UTC(),
	}
	if err := imp.Validate(); err != nil {
		return nil, err
	}
	return imp, nil
}

// Validate ensures the impression has all required attributes.
// Keyword maps are not rejected here: a malformed keyword only loses its own contribution.
func (i *Impression) Validate() error {
	if i.EventID == "" {
		return invalid("event_id", "is required")
	}
	if i.BannerID == "" {
		return invalid("banner_id", "is required")
	}
	if i.UserID == "" {
		return invalid("user_id", "is required")
	}
	if i.PaidAmount.IsNegative() {
		return invalid("paid_amount", "must not be negative (got %s)", i.PaidAmount.String())
	}
	return nil
}

// Day returns the UTC day bucket of the impression.
func (i *Impression) Day() Day {
	return DayOf(i.OccurredAt)
}

// Day is a day-granularity bucket counted in days since the unix epoch (UTC).
type Day int32

// DayOf returns the bucket containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Unix() / 86400)
}

// Time returns the start of the bucket.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

func (d Day) String() string {
	return d.Time().Format("2006-01-02")
}
