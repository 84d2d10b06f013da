package catalog

import (
	"strconv"
	"strings"

	"ymmfilter/compat-service/internal/model"
)

// FieldPrefix marks a custom field as vehicle metadata. The match is
// case-sensitive: "YMM_make" is not recognized.
const FieldPrefix = "ymm_"

const (
	FieldMake      = FieldPrefix + "make"
	FieldModel     = FieldPrefix + "model"
	FieldYearStart = FieldPrefix + "year_start"
	FieldYearEnd   = FieldPrefix + "year_end"
)

// Extract projects an item's custom fields onto a YmmRecord. ok is false
// when none of the four recognized fields is present, i.e. the item carries
// no compatibility metadata. Blank values count as absent; a year that does
// not parse leaves that bound open but still marks the item as tagged.
func Extract(item model.Product, fields []model.FieldKV) (rec model.YmmRecord, ok bool) {
	rec = model.YmmRecord{
		ItemID: strconv.FormatInt(item.ID, 10),
		Name:   item.Name,
	}

	for _, f := range fields {
		if !strings.HasPrefix(f.Name, FieldPrefix) {
			continue
		}
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		switch f.Name {
		case FieldMake:
			rec.Make = &v
			ok = true
		case FieldModel:
			rec.Model = &v
			ok = true
		case FieldYearStart:
			rec.YearStart = parseYear(v)
			ok = true
		case FieldYearEnd:
			rec.YearEnd = parseYear(v)
			ok = true
		}
	}

	if !ok {
		return model.YmmRecord{}, false
	}
	return rec, true
}

func parseYear(s string) *int {
	y, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &y
}
