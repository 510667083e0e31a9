package v1

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrValidation is wrapped by every ValidationError so callers can map it to an invalid-input response.
var ErrValidation = errors.New("validation failed")

// ValidationError names the offending field of a malformed record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var bannerSizePattern = regexp.MustCompile(`^[1-9][0-9]*x[1-9][0-9]*$`)

// ValidBannerSize reports whether size has the "<width>x<height>" shape, e.g. "728x90".
func ValidBannerSize(size string) bool {
	return bannerSizePattern.MatchString(size)
}

// validateKeywordMap rejects empty keys. Values may be empty strings.
func validateKeywordMap(field string, m map[string]string) error {
	for k := range m {
		if k == "" {
			return invalid(field, "keyword name must not be empty")
		}
	}
	return nil
}
