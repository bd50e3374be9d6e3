package coerce

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/datapult/insightsync/internal"
)

// ErrNullValue is returned when the raw value for a field is null. The caller
// aborts the whole record on it: partial records are not acceptable.
var ErrNullValue = errors.New("null value for field")

// Value maps a raw dynamic value and a declared field type to a normalized,
// strongly-typed value. It never panics: any failure is reported as an error
// for that field only, and unknown declared types fall open to trimmed text.
func Value(raw any, declaredType string) (any, error) {
	if raw == nil {
		return nil, ErrNullValue
	}

	text := strings.TrimSpace(cast.ToString(raw))

	switch declaredType {
	case internal.TypeBoolean:
		return strings.EqualFold(text, "true") || text == "1", nil

	case internal.TypeNumber, internal.TypeCurrency, internal.TypeDecimal, internal.TypePercent:
		f, err := cast.ToFloat64E(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse number from %q: %w", text, err)
		}
		return f, nil

	case internal.TypeDate:
		t, err := time.Parse(internal.DateLayout, text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date from %q: %w", text, err)
		}
		return t, nil

	case internal.TypeDateTime:
		t, err := ParseExternalDateTime(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse datetime: %w", err)
		}
		return t, nil

	default:
		// Text, long text, picklists, email, phone, URL and anything
		// unrecognized pass through as trimmed text.
		return text, nil
	}
}

// NormalizeExternalTimestamp rewrites the external
// YYYY-MM-DDTHH:MM:SS[.fff]Z form into the fixed-width layout expected by
// ParseExternalDateTime: the trailing Z is stripped, T becomes a space and a
// missing fractional-seconds component is zero-filled.
func NormalizeExternalTimestamp(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "Z")
	s = strings.Replace(s, "T", " ", 1)

	i := strings.Index(s, ".")
	if i < 0 {
		return s + ".000"
	}

	frac := s[i+1:]
	for len(frac) < 3 {
		frac += "0"
	}
	return s[:i+1] + frac[:3]
}

// ParseExternalDateTime parses the normalized external timestamp form into an
// absolute instant.
func ParseExternalDateTime(raw string) (zero time.Time, _ error) {
	t, err := time.Parse(internal.DeltaTimestampLayout, NormalizeExternalTimestamp(raw))
	if err != nil {
		return zero, fmt.Errorf("unable to parse datetime from %q: %w", raw, err)
	}
	return t, nil
}
