package stats

import (
	"fmt"
	"time"
)

// Horizon is the rolling window of impression history a rebuild folds in.
type Horizon struct {
	Size time.Duration
}

// ParseHorizon parses a duration string into a Horizon.
// Supports Go duration syntax (e.g., "12h", "90m") plus "Xd" for days.
func ParseHorizon(s string) (Horizon, error) {
	if s == "" {
		return Horizon{}, fmt.Errorf("horizon must not be empty")
	}

	// Handle "d" suffix (days), not supported by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return Horizon{}, fmt.Errorf("invalid horizon %q: %w", s, err)
		}
		if days <= 0 {
			return Horizon{}, fmt.Errorf("horizon must be positive, got %q", s)
		}
		return Horizon{Size: time.Duration(days) * 24 * time.Hour}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Horizon{}, fmt.Errorf("invalid horizon %q: %w", s, err)
	}
	if d <= 0 {
		return Horizon{}, fmt.Errorf("horizon must be positive, got %q", s)
	}
	return Horizon{Size: d}, nil
}

// Since returns the inclusive lower bound of the window ending at now.
func (h Horizon) Since(now time.Time) time.Time {
	return now.Add(-h.Size)
}
