package adminsearch

import (
	"time"

	"gorm.io/gorm"
)

const dateParamLayout = "2006-01-02"

// DateRange is a half-open created-date filter parsed from query parameters.
// Either bound may be absent; the To bound is inclusive of the whole day.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// ParseDateRange reads "YYYY-MM-DD" bounds. Malformed values are dropped,
// matching the no-op behavior of malformed search terms.
func ParseDateRange(from, to string) DateRange {
	var dr DateRange
	if parsed, err := time.Parse(dateParamLayout, from); err == nil {
		dr.From = &parsed
	}
	if parsed, err := time.Parse(dateParamLayout, to); err == nil {
		end := parsed.Add(24 * time.Hour)
		dr.To = &end
	}
	return dr
}

// ApplyDateRange narrows query to rows whose column falls inside the range.
func ApplyDateRange(query *gorm.DB, column string, dr DateRange) *gorm.DB {
	if dr.From != nil {
		query = query.Where(column+" >= ?", *dr.From)
	}
	if dr.To != nil {
		query = query.Where(column+" < ?", *dr.To)
	}
	return query
}
