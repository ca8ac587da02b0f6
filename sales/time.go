package sales

import (
	"fmt"
	"time"
)

// =============================================================================
// GRANULARITY - Bucket truncation unit for sales statements
// =============================================================================

type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityMonth  Granularity = "month"
	GranularityYear   Granularity = "year"
)

// DefaultGranularity is used when a query does not name one.
const DefaultGranularity = GranularityHour

// ParseGranularity accepts the unit names above. An empty string yields
// DefaultGranularity.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return DefaultGranularity, nil
	case GranularityMinute, GranularityHour, GranularityDay, GranularityMonth, GranularityYear:
		return g, nil
	default:
		return "", invalidInput("unknown granularity %q, expected one of minute, hour, day, month, year", s)
	}
}

func (g Granularity) Valid() bool {
	_, err := ParseGranularity(string(g))
	return err == nil && g != ""
}

// Truncate returns the start of the bucket containing t, in UTC.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		panic(fmt.Sprintf("sales: truncate with unknown granularity %q", string(g)))
	}
}

const (
	minStorableYear = 0
	maxStorableYear = 9999
)

// StorableTime reports whether t's UTC year fits four digits. Stores keep
// instants as fixed-width text and order them lexically.
func StorableTime(t time.Time) bool {
	y := t.UTC().Year()
	return y >= minStorableYear && y <= maxStorableYear
}

// Timestamps cross the API in this layout.
const TimeLayout = time.RFC3339
