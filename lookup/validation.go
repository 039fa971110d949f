package lookup

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/liamcoop/linker/rules"
)

// MaxEntries is the most entries a single table may hold
const MaxEntries = 1000

// ValidateTable checks a table before it is stored
func ValidateTable(t Table) error {
	if err := rules.ValidateKey(t.Key); err != nil {
		return err
	}

	if len(t.Entries) > MaxEntries {
		return fmt.Errorf("table %q contains %d entries, maximum allowed is %d", t.Key, len(t.Entries), MaxEntries)
	}

	for i, e := range t.Entries {
		if err := ValidateEntry(e); err != nil {
			return fmt.Errorf("entry %d (%s) in table %q: %w", i, e.Description, t.Key, err)
		}
	}

	return nil
}

// ValidateEntry checks an entry's URL and tags. Tags are matched against
// whitespace-separated query words, so a tag containing whitespace could
// never be requested.
func ValidateEntry(e Entry) error {
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("url cannot be empty")
	}

	for _, tag := range e.Tags {
		if tag == "" {
			return fmt.Errorf("tags cannot be empty")
		}
		if strings.IndexFunc(tag, unicode.IsSpace) >= 0 {
			return fmt.Errorf("tag %q cannot contain whitespace", tag)
		}
	}

	return nil
}
