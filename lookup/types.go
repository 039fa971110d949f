// Package lookup holds tagged lookup tables: keyed collections of entries
// that a query selects by naming tags every chosen entry must carry.
package lookup

import (
	"slices"
	"time"
)

// Entry is one destination within a table. Tags are case-sensitive and
// unordered; URL may contain ${name} placeholders.
type Entry struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
}

// HasTag reports whether the entry carries tag
func (e Entry) HasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// Table is a keyed collection of tagged entries
type Table struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Entries   []Entry   `json:"entries"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// DisplayName is the name shown to users, falling back to the key
func (t Table) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Key
}
