package lookup

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// NewTable creates an empty table with a fresh ID
func NewTable(key, name string) Table {
	return Table{
		ID:      uuid.NewString(),
		Key:     strings.TrimSpace(key),
		Name:    strings.TrimSpace(name),
		Entries: []Entry{},
	}
}

// NewEntry creates an entry with a fresh ID and trimmed text fields
func NewEntry(description string, tags []string, url string) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(description),
		Tags:        normalizeTags(tags),
		URL:         strings.TrimSpace(url),
	}
}

// AddTable appends a new table and returns its ID
func AddTable(tables []Table, key, name string) ([]Table, string) {
	t := NewTable(key, name)
	return append(slices.Clone(tables), t), t.ID
}

// UpdateTable replaces the table with t.ID
func UpdateTable(tables []Table, t Table) []Table {
	out := slices.Clone(tables)
	for i := range out {
		if out[i].ID == t.ID {
			out[i] = t
		}
	}
	return out
}

// DeleteTable removes the table with id
func DeleteTable(tables []Table, id string) []Table {
	return slices.DeleteFunc(slices.Clone(tables), func(t Table) bool {
		return t.ID == id
	})
}

// AddEntry appends e to tableID
func AddEntry(tables []Table, tableID string, e Entry) []Table {
	return mapTable(tables, tableID, func(t Table) Table {
		t.Entries = append(slices.Clone(t.Entries), e)
		return t
	})
}

// UpdateEntry replaces the entry with e.ID in tableID. Description and URL
// are trimmed as on creation.
func UpdateEntry(tables []Table, tableID string, e Entry) []Table {
	e.Description = strings.TrimSpace(e.Description)
	e.URL = strings.TrimSpace(e.URL)
	e.Tags = normalizeTags(e.Tags)

	return mapTable(tables, tableID, func(t Table) Table {
		t.Entries = slices.Clone(t.Entries)
		for i := range t.Entries {
			if t.Entries[i].ID == e.ID {
				t.Entries[i] = e
			}
		}
		return t
	})
}

// DeleteEntry removes entryID from tableID
func DeleteEntry(tables []Table, tableID, entryID string) []Table {
	return mapTable(tables, tableID, func(t Table) Table {
		t.Entries = slices.DeleteFunc(slices.Clone(t.Entries), func(e Entry) bool {
			return e.ID == entryID
		})
		return t
	})
}

// DuplicateTable inserts a copy of id right after it, with "-copy" appended
// to the key and fresh entry IDs
func DuplicateTable(tables []Table, id string) []Table {
	idx := slices.IndexFunc(tables, func(t Table) bool { return t.ID == id })
	if idx < 0 {
		return tables
	}

	src := tables[idx]
	name := ""
	if src.Name != "" {
		name = src.Name + " (copy)"
	}

	cp := NewTable(src.Key+"-copy", name)
	for _, e := range src.Entries {
		e.ID = uuid.NewString()
		e.Tags = slices.Clone(e.Tags)
		cp.Entries = append(cp.Entries, e)
	}

	return slices.Insert(slices.Clone(tables), idx+1, cp)
}

func mapTable(tables []Table, id string, fn func(Table) Table) []Table {
	out := slices.Clone(tables)
	for i := range out {
		if out[i].ID == id {
			out[i] = fn(out[i])
		}
	}
	return out
}

// normalizeTags drops blank tags and duplicates, keeping first occurrence
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
