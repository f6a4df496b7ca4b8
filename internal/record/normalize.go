package record

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// CanonicalLayout is the destination date format (UTC, second precision).
const CanonicalLayout = "2006-01-02T15:04:05Z"

// ErrMalformedTimestamp is returned when actionDate is missing or does not
// match the HiveTracks format YYYY-MM-DDTHH:MM:SS.ffffffZ.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// sourceTimestamp accepts one to six fractional digits and a literal Z.
var sourceTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}Z$`)

// NormalizeTimestamp converts a HiveTracks timestamp into CanonicalLayout.
// The fractional part is truncated, not rounded.
func NormalizeTimestamp(value string) (string, error) {
	if !sourceTimestamp.MatchString(value) {
		return "", fmt.Errorf("%w: %q", ErrMalformedTimestamp, value)
	}

	// time.Parse accepts a fractional second after the seconds field even
	// when the layout does not name one.
	t, err := time.Parse(CanonicalLayout, value)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, value, err)
	}
	return t.UTC().Format(CanonicalLayout), nil
}

// NormalizeDate returns the canonical form of the record's actionDate.
func (r Record) NormalizeDate() (string, error) {
	raw, ok := r[FieldActionDate].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s missing or not a string", ErrMalformedTimestamp, FieldActionDate)
	}
	return NormalizeTimestamp(raw)
}
