package utils

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// DateRange represents a rental period between two calendar dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseDate converts a yyyy-mm-dd formatted string into a UTC calendar date
func ParseDate(dateStr string) (time.Time, error) {
	d, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, expected yyyy-mm-dd: %w", err)
	}
	return d, nil
}

// ParseDateRange parses both ends of a range. It does not validate ordering.
func ParseDateRange(startStr, endStr string) (DateRange, error) {
	start, err := ParseDate(startStr)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := ParseDate(endStr)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date: %w", err)
	}
	return NewDateRange(start, end), nil
}

// NewDateRange builds a range truncated to calendar days in UTC
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: TruncateDay(start), End: TruncateDay(end)}
}

// TruncateDay drops the time-of-day part of t, keeping its calendar date
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether neither end of the range was set
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate enforces start < end; zero-length rentals are invalid
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("end date must be after start date")
	}
	return nil
}

// NumberOfDays returns ceil(end - start) in whole days. Unset or inverted ranges give <= 0.
func (r DateRange) NumberOfDays() int {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return int(math.Ceil(r.End.Sub(r.Start).Hours() / 24))
}

// Days lists every calendar day of the range, both ends included
func (r DateRange) Days() []time.Time {
	start, end := TruncateDay(r.Start), TruncateDay(r.End)
	if start.IsZero() || end.Before(start) {
		return nil
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}
