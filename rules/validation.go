package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest accepted condition or table key
const MaxKeyLength = 100

// MaxRules is the most rules a single condition may hold
const MaxRules = 200

// ValidateKey checks a lookup key. Keys are the second token of a query,
// so they cannot be empty or contain whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key length %d exceeds maximum of %d characters", len(key), MaxKeyLength)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("key %q cannot contain whitespace", key)
	}
	return nil
}

// ValidateCondition checks a condition before it is stored.
// The matcher itself tolerates invalid data; this only guards writes.
func ValidateCondition(c Condition) error {
	if err := ValidateKey(c.Key); err != nil {
		return err
	}

	if len(c.Rules) > MaxRules {
		return fmt.Errorf("condition %q contains %d rules, maximum allowed is %d", c.Key, len(c.Rules), MaxRules)
	}

	for i, r := range c.Rules {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("rule %d (%s) in condition %q: %w", i, r.Label, c.Key, err)
		}
	}

	return nil
}

// ValidateRule checks that a rule's pattern type is known and its pattern
// can be used
func ValidateRule(r Rule) error {
	info, ok := PatternTypes[r.PatternType]
	if !ok {
		return fmt.Errorf("invalid pattern type %q (must be one of: number, string, url, empty, const, regex, expr)", r.PatternType)
	}

	switch {
	case info.Preset:
		if r.Pattern != info.Pattern {
			return fmt.Errorf("pattern type %q requires pattern %q, got %q", r.PatternType, info.Pattern, r.Pattern)
		}
	case r.PatternType == PatternConst:
		if r.Pattern == "" {
			return errors.New("const pattern cannot be empty")
		}
	case r.PatternType == PatternRegex:
		if r.Pattern == "" {
			return errors.New("regular expression cannot be empty")
		}
		if _, err := defaultMatcher.CompileRegexp(r.Pattern); err != nil {
			return err
		}
	case r.PatternType == PatternExpr:
		if strings.TrimSpace(r.Pattern) == "" {
			return errors.New("expression cannot be empty")
		}
		if _, err := defaultMatcher.CompileExpr(r.Pattern); err != nil {
			return err
		}
	}

	if strings.Count(r.URL, "%s") > 1 {
		return errors.New("url template may contain at most one %s")
	}

	return nil
}
