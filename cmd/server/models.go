package main

import (
	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/resolver"
	"github.com/liamcoop/linker/rules"
)

// API request and response models

// EvaluateRequest is the body of POST /api/v1/evaluate
type EvaluateRequest struct {
	Query  string            `json:"q"`
	Origin string            `json:"origin,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// RuleRequest creates or replaces a rule. Preset pattern types ignore Pattern.
type RuleRequest struct {
	Label       string            `json:"label"`
	PatternType rules.PatternType `json:"patternType"`
	Pattern     string            `json:"pattern"`
	URL         string            `json:"url"`
}

func (r RuleRequest) toRule() rules.Rule {
	return rules.NewRule(r.Label, r.PatternType, r.Pattern, r.URL)
}

// ConditionRequest creates or replaces a condition
type ConditionRequest struct {
	Key            string        `json:"key"`
	Name           string        `json:"name"`
	TrimInput      bool          `json:"trimInput"`
	LowercaseInput bool          `json:"lowercaseInput"`
	Rules          []RuleRequest `json:"rules"`
}

// apply copies the request onto c, giving every rule a fresh ID
func (req ConditionRequest) apply(c *rules.Condition) {
	c.Key = req.Key
	c.Name = req.Name
	c.TrimInput = req.TrimInput
	c.LowercaseInput = req.LowercaseInput
	c.Rules = make([]rules.Rule, 0, len(req.Rules))
	for _, r := range req.Rules {
		c.Rules = append(c.Rules, r.toRule())
	}
}

// ReorderRulesRequest lists every rule ID of a condition in its new order
type ReorderRulesRequest struct {
	RuleIDs []string `json:"ruleIds"`
}

// TestRulesRequest is a sample input for a condition's rules
type TestRulesRequest struct {
	Input  string            `json:"input"`
	Params map[string]string `json:"params,omitempty"`
}

// TestRulesResponse reports every rule's outcome for the sample input.
// FirstMatch is the index of the deciding rule, or -1.
type TestRulesResponse struct {
	Input      string             `json:"input"`
	FirstMatch int                `json:"firstMatch"`
	Results    []rules.RuleResult `json:"results"`
}

// EntryRequest creates or replaces a table entry
type EntryRequest struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
}

func (r EntryRequest) toEntry() lookup.Entry {
	return lookup.NewEntry(r.Description, r.Tags, r.URL)
}

// TableRequest creates or replaces a table
type TableRequest struct {
	Key     string         `json:"key"`
	Name    string         `json:"name"`
	Entries []EntryRequest `json:"entries"`
}

func (req TableRequest) apply(t *lookup.Table) {
	t.Key = req.Key
	t.Name = req.Name
	t.Entries = make([]lookup.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		t.Entries = append(t.Entries, e.toEntry())
	}
}

// ConditionsListResponse is the response for listing conditions
type ConditionsListResponse struct {
	Conditions []rules.Condition `json:"conditions"`
}

// TablesListResponse is the response for listing tables
type TablesListResponse struct {
	Tables []lookup.Table `json:"tables"`
}

// PickerEntry is an entry offered by a picker, with its URL ready to open
type PickerEntry struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
}

// PickerResponse is returned with 300 Multiple Choices when a lookup
// matches several entries
type PickerResponse struct {
	Table   string        `json:"table"`
	Name    string        `json:"name"`
	Tags    []string      `json:"tags"`
	Entries []PickerEntry `json:"entries"`
}

func newPickerResponse(p resolver.Picker) PickerResponse {
	resp := PickerResponse{
		Table:   p.Table.Key,
		Name:    p.Table.DisplayName(),
		Tags:    p.Tags,
		Entries: make([]PickerEntry, 0, len(p.Entries)),
	}
	for _, e := range p.Entries {
		resp.Entries = append(resp.Entries, PickerEntry{
			ID:          e.ID,
			Description: e.Description,
			Tags:        e.Tags,
			URL:         p.EntryURL(e),
		})
	}
	return resp
}

// ConditionView is the admin view of one condition
type ConditionView struct {
	Condition  rules.Condition `json:"condition"`
	BrowserURL string          `json:"browserUrl"`
}

// TableView is the admin view of one table
type TableView struct {
	Table     lookup.Table `json:"table"`
	Tags      []string     `json:"tags"`
	LookupURL string       `json:"lookupUrl"`
}

// HomeResponse is returned for an empty or unroutable query
type HomeResponse struct {
	Query   string   `json:"query"`
	Modules []string `json:"modules"`
	Usage   string   `json:"usage"`
}
