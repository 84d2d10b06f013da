package compat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/model"
)

func str(s string) *string { return &s }
func year(y int) *int      { return &y }

func f150() model.YmmRecord {
	return model.YmmRecord{
		ItemID:    "1",
		Make:      str("Ford"),
		Model:     str("F-150"),
		YearStart: year(2015),
		YearEnd:   year(2020),
	}
}

// ── IsCompatible (relaxed) ─────────────────────────────────────────────────

func TestIsCompatible_FullRecord(t *testing.T) {
	cases := []struct {
		name string
		q    model.CompatibilityQuery
		want bool
	}{
		{"inside range", model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"}, true},
		{"lower bound inclusive", model.CompatibilityQuery{Year: 2015, Make: "Ford", Model: "F-150"}, true},
		{"upper bound inclusive", model.CompatibilityQuery{Year: 2020, Make: "Ford", Model: "F-150"}, true},
		{"case-insensitive", model.CompatibilityQuery{Year: 2018, Make: "ford", Model: "f-150"}, true},
		{"year after range", model.CompatibilityQuery{Year: 2021, Make: "Ford", Model: "F-150"}, false},
		{"year before range", model.CompatibilityQuery{Year: 2014, Make: "Ford", Model: "F-150"}, false},
		{"other model", model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "Ranger"}, false},
		{"other make", model.CompatibilityQuery{Year: 2018, Make: "Chevrolet", Model: "F-150"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, compat.IsCompatible(f150(), c.q))
		})
	}
}

func TestIsCompatible_AbsentFieldsPlaceNoConstraint(t *testing.T) {
	q := model.CompatibilityQuery{Year: 1999, Make: "Honda", Model: "Civic"}

	assert.True(t, compat.IsCompatible(model.YmmRecord{ItemID: "universal"}, q))
	assert.True(t, compat.IsCompatible(model.YmmRecord{Make: str("honda")}, q))
	assert.True(t, compat.IsCompatible(model.YmmRecord{YearStart: year(1990)}, q), "open-ended upper bound")
	assert.True(t, compat.IsCompatible(model.YmmRecord{YearEnd: year(2005)}, q), "open-ended lower bound")
	assert.False(t, compat.IsCompatible(model.YmmRecord{YearStart: year(2000)}, q))
}

// A make mismatch rejects the record for every year.
func TestIsCompatible_MakeMismatchNeverMatches(t *testing.T) {
	r := f150()
	for y := compat.MinYear; y <= 2100; y++ {
		if compat.IsCompatible(r, model.CompatibilityQuery{Year: y, Make: "Toyota", Model: "F-150"}) {
			t.Fatalf("year %d matched despite make mismatch", y)
		}
	}
}

// For a closed record, a year matches exactly when it lies in [start, end].
func TestIsCompatible_YearRangeProperty(t *testing.T) {
	for start := 1990; start <= 2000; start++ {
		for end := start; end <= 2003; end++ {
			r := model.YmmRecord{Make: str("Ford"), Model: str("F-150"), YearStart: year(start), YearEnd: year(end)}
			for y := 1985; y <= 2008; y++ {
				want := y >= start && y <= end
				got := compat.IsCompatible(r, model.CompatibilityQuery{Year: y, Make: "Ford", Model: "F-150"})
				if got != want {
					t.Fatalf("range %d-%d year %d: got %v, want %v", start, end, y, got, want)
				}
			}
		}
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	records := []model.YmmRecord{
		{ItemID: "a", Make: str("Ford")},
		{ItemID: "b", Make: str("Toyota")},
		{ItemID: "c"},
		{ItemID: "d", Make: str("FORD"), YearEnd: year(2010)},
		{ItemID: "e", Make: str("ford"), Model: str("f-150")},
	}
	got := compat.Filter(records, model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"})

	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ItemID)
	}
	assert.Equal(t, []string{"a", "c", "e"}, ids)
}

func TestFilter_NoMatchesIsEmptyNotNil(t *testing.T) {
	got := compat.Filter(nil, model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// ── IsLocalMatch (strict) ──────────────────────────────────────────────────

func TestIsLocalMatch(t *testing.T) {
	v := model.LocalVehicle{Make: "Ford", Model: "F-150", YearStart: 2015, YearEnd: 2020, IsActive: true}

	assert.True(t, compat.IsLocalMatch(v, model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"}))
	assert.True(t, compat.IsLocalMatch(v, model.CompatibilityQuery{Year: 2015, Make: "Ford", Model: "F-150"}))
	assert.False(t, compat.IsLocalMatch(v, model.CompatibilityQuery{Year: 2018, Make: "ford", Model: "F-150"}), "strict mode is case-sensitive")
	assert.False(t, compat.IsLocalMatch(v, model.CompatibilityQuery{Year: 2021, Make: "Ford", Model: "F-150"}))

	v.IsActive = false
	assert.False(t, compat.IsLocalMatch(v, model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"}))
}

// ── RangesOverlap ──────────────────────────────────────────────────────────

func TestRangesOverlap(t *testing.T) {
	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd int
		want                       bool
	}{
		{"identical", 2015, 2020, 2015, 2020, true},
		{"starts inside", 2015, 2020, 2018, 2024, true},
		{"ends inside", 2015, 2020, 2010, 2016, true},
		{"contains", 2015, 2020, 2010, 2025, true},
		{"contained", 2015, 2020, 2016, 2017, true},
		{"touching end", 2015, 2020, 2020, 2022, true},
		{"touching start", 2015, 2020, 2012, 2015, true},
		{"before", 2015, 2020, 2010, 2014, false},
		{"after", 2015, 2020, 2021, 2023, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, compat.RangesOverlap(c.aStart, c.aEnd, c.bStart, c.bEnd))
			assert.Equal(t, c.want, compat.RangesOverlap(c.bStart, c.bEnd, c.aStart, c.aEnd), "overlap is symmetric")
		})
	}
}

// ── Validation ─────────────────────────────────────────────────────────────

func TestValidateQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, compat.ValidateQuery(model.CompatibilityQuery{Year: 2018, Make: "Ford", Model: "F-150"}, now, 2))
	assert.NoError(t, compat.ValidateQuery(model.CompatibilityQuery{Year: 2028, Make: "Ford", Model: "F-150"}, now, 2))
	assert.NoError(t, compat.ValidateQuery(model.CompatibilityQuery{Year: 1900, Make: "Ford", Model: "T"}, now, 2))

	invalid := []model.CompatibilityQuery{
		{Year: 1899, Make: "Ford", Model: "T"},
		{Year: 2029, Make: "Ford", Model: "F-150"},
		{Year: 2018, Make: " ", Model: "F-150"},
		{Year: 2018, Make: "Ford", Model: ""},
	}
	for _, q := range invalid {
		err := compat.ValidateQuery(q, now, 2)
		var ve *compat.ValidationError
		assert.ErrorAs(t, err, &ve, "query %+v", q)
	}
}

func TestValidateRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, compat.ValidateRange(2015, 2020, now, 5))
	assert.NoError(t, compat.ValidateRange(2020, 2020, now, 5))
	assert.NoError(t, compat.ValidateRange(2015, 2031, now, 5))
	assert.Error(t, compat.ValidateRange(2021, 2020, now, 5))
	assert.Error(t, compat.ValidateRange(1800, 2020, now, 5))
	assert.Error(t, compat.ValidateRange(2015, 2032, now, 5))
}
