package cache

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tvollmer/mediadmin/internal/api"
)

// clientOrderable declares which sort fields are re-ordered locally over the
// fetched page. Everything else is server-orderable and round-trips through
// List. String fields fully present in the page qualify; timestamps and ids
// follow server ordering so pagination stays consistent.
var clientOrderable = map[string]bool{
	"title":      true,
	"uploadedBy": true,
}

// newCollator returns a locale-neutral, numeric-aware collator, so that
// "img2" orders before "img10".
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}

// fieldValue extracts the named sort key from a resource. Unknown fields
// yield "", which sorts as a missing value.
func fieldValue(r api.Resource, field string) string {
	switch field {
	case "title":
		return r.Title
	case "uploadedBy":
		return r.UploadedBy
	case "createdAt":
		return r.CreatedAt
	case "_id":
		return r.ID
	default:
		return ""
	}
}

// compareResources builds a comparison function for slices.SortStableFunc.
// Missing values sort last regardless of direction; the direction flip is
// applied only to present-value comparisons so that rule holds.
func compareResources(col *collate.Collator, sort Sort) func(a, b api.Resource) int {
	descending := sort.Direction == DirectionDesc

	return func(a, b api.Resource) int {
		av := fieldValue(a, sort.Field)
		bv := fieldValue(b, sort.Field)

		switch {
		case av == "" && bv == "":
			return 0
		case av == "":
			return 1
		case bv == "":
			return -1
		}

		cmp := col.CompareString(av, bv)
		if descending {
			cmp = -cmp
		}

		return cmp
	}
}
