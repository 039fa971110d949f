package rules

import (
	"slices"

	"github.com/google/uuid"
)

// The helpers below never modify their input: each returns a new slice and
// leaves conditions shared with other readers untouched.

// NewCondition creates an empty condition with a fresh ID
func NewCondition(key, name string) Condition {
	return Condition{
		ID:    uuid.NewString(),
		Key:   key,
		Name:  name,
		Rules: []Rule{},
	}
}

// NewRule creates a rule with a fresh ID. Preset pattern types always get
// their fixed pattern; pattern is only kept for user-supplied types.
func NewRule(label string, patternType PatternType, pattern, url string) Rule {
	if patternType == "" {
		patternType = PatternNumber
	}
	if info, ok := PatternTypes[patternType]; ok && info.Preset {
		pattern = info.Pattern
	}
	return Rule{
		ID:          uuid.NewString(),
		Label:       label,
		PatternType: patternType,
		Pattern:     pattern,
		URL:         url,
	}
}

// AddCondition appends a new condition and returns its ID
func AddCondition(conditions []Condition, key, name string) ([]Condition, string) {
	c := NewCondition(key, name)
	return append(slices.Clone(conditions), c), c.ID
}

// UpdateCondition replaces the condition with c.ID, keeping its position
func UpdateCondition(conditions []Condition, c Condition) []Condition {
	out := slices.Clone(conditions)
	for i := range out {
		if out[i].ID == c.ID {
			out[i] = c
		}
	}
	return out
}

// DeleteCondition removes the condition with the given ID
func DeleteCondition(conditions []Condition, id string) []Condition {
	return slices.DeleteFunc(slices.Clone(conditions), func(c Condition) bool {
		return c.ID == id
	})
}

// AddRule appends rule to the condition with conditionID
func AddRule(conditions []Condition, conditionID string, rule Rule) []Condition {
	return mapCondition(conditions, conditionID, func(c Condition) Condition {
		c.Rules = append(slices.Clone(c.Rules), rule)
		return c
	})
}

// UpdateRule replaces the rule with rule.ID inside conditionID
func UpdateRule(conditions []Condition, conditionID string, rule Rule) []Condition {
	return mapCondition(conditions, conditionID, func(c Condition) Condition {
		c.Rules = slices.Clone(c.Rules)
		for i := range c.Rules {
			if c.Rules[i].ID == rule.ID {
				c.Rules[i] = rule
			}
		}
		return c
	})
}

// DeleteRule removes ruleID from conditionID
func DeleteRule(conditions []Condition, conditionID, ruleID string) []Condition {
	return mapCondition(conditions, conditionID, func(c Condition) Condition {
		c.Rules = slices.DeleteFunc(slices.Clone(c.Rules), func(r Rule) bool {
			return r.ID == ruleID
		})
		return c
	})
}

// ReorderRules replaces the rule list of conditionID with rules, whose
// order becomes the new evaluation order
func ReorderRules(conditions []Condition, conditionID string, rules []Rule) []Condition {
	return mapCondition(conditions, conditionID, func(c Condition) Condition {
		c.Rules = slices.Clone(rules)
		return c
	})
}

// DuplicateCondition inserts a copy of id right after it. The copy gets
// "-copy" appended to its key and fresh rule IDs.
func DuplicateCondition(conditions []Condition, id string) []Condition {
	idx := slices.IndexFunc(conditions, func(c Condition) bool { return c.ID == id })
	if idx < 0 {
		return conditions
	}

	src := conditions[idx]
	name := ""
	if src.Name != "" {
		name = src.Name + " (copy)"
	}

	cp := NewCondition(src.Key+"-copy", name)
	cp.TrimInput = src.TrimInput
	cp.LowercaseInput = src.LowercaseInput
	for _, r := range src.Rules {
		r.ID = uuid.NewString()
		cp.Rules = append(cp.Rules, r)
	}

	return slices.Insert(slices.Clone(conditions), idx+1, cp)
}

func mapCondition(conditions []Condition, id string, fn func(Condition) Condition) []Condition {
	out := slices.Clone(conditions)
	for i := range out {
		if out[i].ID == id {
			out[i] = fn(out[i])
		}
	}
	return out
}
