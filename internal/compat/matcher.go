// Package compat decides whether a vehicle record fits a year/make/model query.
//
// Two matching modes exist:
//
//	ModeRelaxed  upstream custom-field records; an absent field places no
//	             constraint, make/model compare case-insensitively.
//	ModeStrict   locally stored vehicles; make/model must be identical and
//	             the year must fall inside the stored range.
package compat

import (
	"strings"

	"ymmfilter/compat-service/internal/model"
)

// Mode names a matching contract.
type Mode string

const (
	ModeRelaxed Mode = "RELAXED"
	ModeStrict  Mode = "STRICT"
)

// IsCompatible applies ModeRelaxed: only a present-and-different value
// disqualifies the record.
func IsCompatible(r model.YmmRecord, q model.CompatibilityQuery) bool {
	if r.Make != nil && !strings.EqualFold(*r.Make, q.Make) {
		return false
	}
	if r.Model != nil && !strings.EqualFold(*r.Model, q.Model) {
		return false
	}
	if r.YearStart != nil && q.Year < *r.YearStart {
		return false
	}
	if r.YearEnd != nil && q.Year > *r.YearEnd {
		return false
	}
	return true
}

// IsLocalMatch applies ModeStrict to a stored vehicle. Inactive vehicles
// never match.
func IsLocalMatch(v model.LocalVehicle, q model.CompatibilityQuery) bool {
	if !v.IsActive {
		return false
	}
	return v.Make == q.Make &&
		v.Model == q.Model &&
		q.Year >= v.YearStart &&
		q.Year <= v.YearEnd
}

// RangesOverlap reports whether [aStart, aEnd] and [bStart, bEnd] share at
// least one year: b starts inside a, b ends inside a, or b contains a.
func RangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	startsInside := bStart >= aStart && bStart <= aEnd
	endsInside := bEnd >= aStart && bEnd <= aEnd
	contains := bStart <= aStart && bEnd >= aEnd
	return startsInside || endsInside || contains
}

// Filter keeps the records compatible with q in ModeRelaxed, preserving order.
func Filter(records []model.YmmRecord, q model.CompatibilityQuery) []model.YmmRecord {
	out := make([]model.YmmRecord, 0)
	for _, r := range records {
		if IsCompatible(r, q) {
			out = append(out, r)
		}
	}
	return out
}
