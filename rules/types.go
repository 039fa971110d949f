package rules

import (
	"strings"
	"time"
)

// PatternType selects how a Rule tests its input
type PatternType string

const (
	PatternNumber PatternType = "number"
	PatternString PatternType = "string"
	PatternURL    PatternType = "url"
	PatternEmpty  PatternType = "empty"
	PatternConst  PatternType = "const"
	PatternRegex  PatternType = "regex"
	PatternExpr   PatternType = "expr"
)

// PatternTypeInfo describes a pattern type for editors.
// Preset types carry a fixed Pattern; user-supplied types have Preset false.
type PatternTypeInfo struct {
	Label   string `json:"label"`
	Pattern string `json:"pattern,omitempty"`
	Preset  bool   `json:"preset"`
}

// PatternTypes lists every supported pattern type
var PatternTypes = map[PatternType]PatternTypeInfo{
	PatternNumber: {Label: "isNumber", Pattern: `^\d+$`, Preset: true},
	PatternString: {Label: "isAnything", Pattern: `^.*$`, Preset: true},
	PatternURL:    {Label: "isURL", Pattern: `^https?://`, Preset: true},
	PatternEmpty:  {Label: "isEmpty", Pattern: `^$`, Preset: true},
	PatternConst:  {Label: "isConst"},
	PatternRegex:  {Label: "isRegex"},
	PatternExpr:   {Label: "isExpr"},
}

// Valid reports whether t is a known pattern type
func (t PatternType) Valid() bool {
	_, ok := PatternTypes[t]
	return ok
}

// Rule maps inputs accepted by its pattern to a URL template.
// URL may contain ${name} placeholders and a single %s for the input.
type Rule struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	PatternType PatternType `json:"patternType"`
	Pattern     string      `json:"pattern"`
	URL         string      `json:"url"`
}

// Condition is a keyed, ordered list of rules. The first matching rule wins,
// so the order of Rules is significant.
type Condition struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	TrimInput      bool      `json:"trimInput,omitempty"`
	LowercaseInput bool      `json:"lowercaseInput,omitempty"`
	Rules          []Rule    `json:"rules"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// Normalize applies the input normalisation declared on the condition
func (c Condition) Normalize(input string) string {
	if c.TrimInput {
		input = strings.TrimSpace(input)
	}
	if c.LowercaseInput {
		input = strings.ToLower(input)
	}
	return input
}

// RuleResult is the outcome of testing one rule.
// Skipped is set on every rule after the first match: those rules are
// still tested so editors can show what they would produce, but they are
// reported as not matched and never decide a resolution.
type RuleResult struct {
	Rule      Rule   `json:"rule"`
	Matched   bool   `json:"matched"`
	ResultURL string `json:"resultUrl,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Decisive reports whether this result is the one that resolves the input
func (r RuleResult) Decisive() bool {
	return r.Matched && !r.Skipped
}

// FirstMatch returns the index of the decisive result, or -1
func FirstMatch(results []RuleResult) int {
	for i, r := range results {
		if r.Decisive() {
			return i
		}
	}
	return -1
}

// FindCondition returns the first condition with the given key.
// Keys are expected to be unique but this is not enforced; the earliest
// stored condition wins.
func FindCondition(conditions []Condition, key string) (Condition, bool) {
	for _, c := range conditions {
		if c.Key == key {
			return c, true
		}
	}
	return Condition{}, false
}
