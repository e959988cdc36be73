package engine

import (
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// SortMode selects how the projected view is ordered.
type SortMode int

const (
	// SortNone preserves catalog order.
	SortNone SortMode = iota
	// SortAscending orders by uploader, collated ascending.
	SortAscending
	// SortDescending orders by uploader, collated descending.
	SortDescending
)

// ParseSortMode maps the UI toggle values onto a SortMode. Unknown values
// are an error rather than a silent fallback to SortNone.
func ParseSortMode(s string) (SortMode, error) {
	switch s {
	case "none", "":
		return SortNone, nil
	case "asc", "ascending":
		return SortAscending, nil
	case "desc", "descending":
		return SortDescending, nil
	default:
		return SortNone, fmt.Errorf("unknown sort mode %q", s)
	}
}

// filterAllow is the fixed extension allow-set applied when filtering is
// enabled.
var filterAllow = map[string]bool{
	".py":  true,
	".jpg": true,
}

// Project derives the display sequence from a catalog snapshot and the UI
// toggles. It is pure: the snapshot is never modified, identical inputs
// always yield identical output, and ties under sorting keep their catalog
// order.
func Project(snapshot []protocol.FileRecord, filterEnabled bool, mode SortMode) []protocol.FileRecord {
	out := make([]protocol.FileRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if filterEnabled && !filterAllow[rec.Extension] {
			continue
		}
		out = append(out, rec)
	}

	if mode == SortNone {
		return out
	}

	coll := collate.New(language.Und)
	sort.SliceStable(out, func(i, j int) bool {
		cmp := coll.CompareString(out[i].Uploader, out[j].Uploader)
		if mode == SortDescending {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}
