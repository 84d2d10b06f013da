package compat

import (
	"fmt"
	"strings"
	"time"

	"ymmfilter/compat-service/internal/model"
)

// MinYear is the earliest model year accepted anywhere.
const MinYear = 1900

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// YearBounds returns the accepted [MinYear, now.Year()+yearsAhead] interval.
func YearBounds(now time.Time, yearsAhead int) (lo, hi int) {
	return MinYear, now.Year() + yearsAhead
}

// ValidateYear rejects a year outside YearBounds. Out-of-range years are
// never clamped.
func ValidateYear(year int, now time.Time, yearsAhead int) error {
	lo, hi := YearBounds(now, yearsAhead)
	if year < lo || year > hi {
		return &ValidationError{Msg: fmt.Sprintf("year must be between %d and %d, got %d", lo, hi, year)}
	}
	return nil
}

// ValidateQuery checks q before any upstream call is attempted.
func ValidateQuery(q model.CompatibilityQuery, now time.Time, yearsAhead int) error {
	if err := ValidateYear(q.Year, now, yearsAhead); err != nil {
		return err
	}
	if strings.TrimSpace(q.Make) == "" {
		return &ValidationError{Msg: "make is required"}
	}
	if strings.TrimSpace(q.Model) == "" {
		return &ValidationError{Msg: "model is required"}
	}
	return nil
}

// ValidateRange checks a stored vehicle range.
func ValidateRange(start, end int, now time.Time, yearsAhead int) error {
	if err := ValidateYear(start, now, yearsAhead); err != nil {
		return &ValidationError{Msg: "year_start: " + err.Error()}
	}
	if err := ValidateYear(end, now, yearsAhead); err != nil {
		return &ValidationError{Msg: "year_end: " + err.Error()}
	}
	if start > end {
		return &ValidationError{Msg: fmt.Sprintf("year_start %d is after year_end %d", start, end)}
	}
	return nil
}
