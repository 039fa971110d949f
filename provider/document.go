package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

// Format is the encoding of an import/export document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ErrInvalidDocument is returned when a document does not have the
// expected shape
var ErrInvalidDocument = errors.New("invalid document")

// Document is the import/export form of both collections
type Document struct {
	Shortcuts []rules.Condition `json:"shortcuts"`
	Tables    []lookup.Table    `json:"tables"`
}

// Snapshot returns the document's contents as a snapshot
func (d *Document) Snapshot() *Snapshot {
	return &Snapshot{Conditions: d.Shortcuts, Tables: d.Tables}
}

// DocumentFromSnapshot wraps a snapshot for export
func DocumentFromSnapshot(s *Snapshot) *Document {
	return &Document{Shortcuts: s.Conditions, Tables: s.Tables}
}

// Validate checks every condition and table. IDs must be present and
// unique: condition and table IDs across the document, rule and entry IDs
// within their parent.
func (d *Document) Validate() error {
	var errs []error

	conditionIDs := make(map[string]bool, len(d.Shortcuts))
	for _, c := range d.Shortcuts {
		if err := checkID("condition", c.ID, conditionIDs); err != nil {
			errs = append(errs, fmt.Errorf("condition %q: %w", c.Key, err))
		}
		ruleIDs := make(map[string]bool, len(c.Rules))
		for i, r := range c.Rules {
			if err := checkID("rule", r.ID, ruleIDs); err != nil {
				errs = append(errs, fmt.Errorf("condition %q: rule %d: %w", c.Key, i, err))
			}
		}
		if err := rules.ValidateCondition(c); err != nil {
			errs = append(errs, fmt.Errorf("condition %q: %w", c.Key, err))
		}
	}

	tableIDs := make(map[string]bool, len(d.Tables))
	for _, t := range d.Tables {
		if err := checkID("table", t.ID, tableIDs); err != nil {
			errs = append(errs, fmt.Errorf("table %q: %w", t.Key, err))
		}
		entryIDs := make(map[string]bool, len(t.Entries))
		for i, e := range t.Entries {
			if err := checkID("entry", e.ID, entryIDs); err != nil {
				errs = append(errs, fmt.Errorf("table %q: entry %d: %w", t.Key, i, err))
			}
		}
		if err := lookup.ValidateTable(t); err != nil {
			errs = append(errs, fmt.Errorf("table %q: %w", t.Key, err))
		}
	}

	return errors.Join(errs...)
}

func checkID(kind, id string, seen map[string]bool) error {
	if id == "" {
		return fmt.Errorf("%s ID cannot be empty", kind)
	}
	if seen[id] {
		return fmt.Errorf("duplicate %s ID %q", kind, id)
	}
	seen[id] = true
	return nil
}

// AssignMissingIDs gives a fresh ID to every condition, rule, table and
// entry that has none, so hand-written documents can omit them
func (d *Document) AssignMissingIDs() {
	for i := range d.Shortcuts {
		c := &d.Shortcuts[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		for j := range c.Rules {
			if c.Rules[j].ID == "" {
				c.Rules[j].ID = uuid.NewString()
			}
		}
	}
	for i := range d.Tables {
		t := &d.Tables[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		for j := range t.Entries {
			if t.Entries[j].ID == "" {
				t.Entries[j].ID = uuid.NewString()
			}
		}
	}
}

// Decode reads a document. YAML documents use the same field names as
// JSON. At least one of "shortcuts" and "tables" must be present, and
// each present field must be a list. Missing IDs are generated.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if format == FormatYAML {
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	shortcuts, hasShortcuts := fields["shortcuts"]
	tables, hasTables := fields["tables"]
	if !hasShortcuts && !hasTables {
		return nil, fmt.Errorf("%w: expected a shortcuts or tables list", ErrInvalidDocument)
	}

	var doc Document
	if hasShortcuts {
		if !isList(shortcuts) {
			return nil, fmt.Errorf("%w: shortcuts must be a list", ErrInvalidDocument)
		}
		if err := json.Unmarshal(shortcuts, &doc.Shortcuts); err != nil {
			return nil, fmt.Errorf("%w: shortcuts: %v", ErrInvalidDocument, err)
		}
	}
	if hasTables {
		if !isList(tables) {
			return nil, fmt.Errorf("%w: tables must be a list", ErrInvalidDocument)
		}
		if err := json.Unmarshal(tables, &doc.Tables); err != nil {
			return nil, fmt.Errorf("%w: tables: %v", ErrInvalidDocument, err)
		}
	}

	doc.AssignMissingIDs()
	return &doc, nil
}

// Encode writes the document
func (d *Document) Encode(w io.Writer, format Format) error {
	out := *d
	if out.Shortcuts == nil {
		out.Shortcuts = []rules.Condition{}
	}
	if out.Tables == nil {
		out.Tables = []lookup.Table{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if format == FormatYAML {
		// JSON is valid YAML; going through a node keeps field order
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return fmt.Errorf("failed to convert document: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		return enc.Close()
	}

	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// ReadFile decodes the document at path, choosing the format by extension
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	return Decode(f, FormatFromPath(path))
}

func isList(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return out, nil
}
