package availability

import (
	"fmt"
	"sort"
	"time"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/utils"
)

// Overlaps reports whether two ranges share at least one calendar day. Boundaries are
// inclusive: a return day equal to another booking's pickup day is blocked (same-day
// turnover is not allowed).
func Overlaps(requested, existing utils.DateRange) bool {
	rs, re := utils.TruncateDay(requested.Start), utils.TruncateDay(requested.End)
	es, ee := utils.TruncateDay(existing.Start), utils.TruncateDay(existing.End)
	return !rs.After(ee) && !re.Before(es)
}

// Check explains why requested cannot be booked, or returns nil
func Check(vehicle domain.Vehicle, requested utils.DateRange, existing []utils.DateRange) error {
	if err := requested.Validate(); err != nil {
		return domain.NewValidationError("dates", err.Error())
	}
	if days := requested.NumberOfDays(); days < vehicle.MinRentalDays {
		return domain.NewValidationError("dates", fmt.Sprintf("This vehicle must be rented for at least %d days", vehicle.MinRentalDays))
	}
	for _, r := range existing {
		if Overlaps(requested, r) {
			return domain.NewConflictError(fmt.Sprintf("The vehicle is already booked between %s and %s", r.Start.Format(utils.DateLayout), r.End.Format(utils.DateLayout)))
		}
	}
	return nil
}

// IsAvailable is true iff no existing range overlaps and the minimum duration is met
func IsAvailable(vehicle domain.Vehicle, requested utils.DateRange, existing []utils.DateRange) bool {
	return Check(vehicle, requested, existing) == nil
}

// DateSet is a set of calendar days keyed by yyyy-mm-dd
type DateSet map[string]struct{}

func (s DateSet) Has(day time.Time) bool {
	_, ok := s[day.Format(utils.DateLayout)]
	return ok
}

// Sorted returns the days in ascending order
func (s DateSet) Sorted() []string {
	days := make([]string, 0, len(s))
	for d := range s {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// ExpandBlockedDates materializes every day of every range for calendar disabling.
// It is advisory; the booking insert re-checks against live data.
func ExpandBlockedDates(existing []utils.DateRange) DateSet {
	set := make(DateSet)
	for _, r := range existing {
		for _, d := range r.Days() {
			set[d.Format(utils.DateLayout)] = struct{}{}
		}
	}
	return set
}
