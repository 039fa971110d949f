package lookup

import (
	"maps"
	"slices"
)

// FindTable returns the first table with key. Duplicate keys are not
// rejected anywhere; the earliest stored table wins.
func FindTable(tables []Table, key string) (Table, bool) {
	for _, t := range tables {
		if t.Key == key {
			return t, true
		}
	}
	return Table{}, false
}

// SearchEntries returns the entries carrying every requested tag, in table
// order. With no tags, all entries are returned unfiltered. Matching is a
// plain superset test, so adding a tag can only shrink the result.
func SearchEntries(table Table, tags []string) []Entry {
	if len(tags) == 0 {
		return table.Entries
	}

	var matched []Entry
	for _, e := range table.Entries {
		if containsAll(e, tags) {
			matched = append(matched, e)
		}
	}
	return matched
}

func containsAll(e Entry, tags []string) bool {
	for _, tag := range tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	return true
}

// AllTags returns the sorted set of tags used anywhere in the table
func AllTags(table Table) []string {
	seen := make(map[string]struct{})
	for _, e := range table.Entries {
		for _, tag := range e.Tags {
			seen[tag] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}
