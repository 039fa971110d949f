package rules

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func preset(t PatternType, url string) Rule {
	return Rule{ID: string(t), Label: string(t), PatternType: t, Pattern: PatternTypes[t].Pattern, URL: url}
}

// TestEvaluateReturnsOneResultPerRule verifies results line up with rules
func TestEvaluateReturnsOneResultPerRule(t *testing.T) {
	ruleSets := [][]Rule{
		nil,
		{preset(PatternNumber, "n/%s")},
		{preset(PatternEmpty, "e"), preset(PatternNumber, "n/%s"), preset(PatternString, "s/%s")},
		{{ID: "bad", PatternType: PatternRegex, Pattern: "("}, preset(PatternString, "s")},
	}

	for i, rules := range ruleSets {
		results := NewMatcher().Evaluate(rules, "42", nil)
		if len(results) != len(rules) {
			t.Fatalf("set %d: got %d results, want %d", i, len(results), len(rules))
		}
		for j := range rules {
			if results[j].Rule.ID != rules[j].ID {
				t.Errorf("set %d: result %d is for rule %q, want %q", i, j, results[j].Rule.ID, rules[j].ID)
			}
		}
	}
}

// TestEvaluateFirstMatchWins verifies rules before the match are plain
// misses and every rule after it is skipped
func TestEvaluateFirstMatchWins(t *testing.T) {
	rules := []Rule{
		preset(PatternEmpty, "https://x.test/empty"),
		preset(PatternURL, "%s"),
		preset(PatternNumber, "https://x.test/mr/%s"),
		preset(PatternString, "https://x.test/search?q=%s"),
		{ID: "const", PatternType: PatternConst, Pattern: "1234", URL: "https://x.test/const"},
	}

	results := NewMatcher().Evaluate(rules, "1234", nil)

	first := FirstMatch(results)
	if first != 2 {
		t.Fatalf("FirstMatch() = %d, want 2", first)
	}
	for i, r := range results {
		switch {
		case i < first:
			if r.Matched || r.Skipped {
				t.Errorf("result %d: matched=%v skipped=%v, want false/false", i, r.Matched, r.Skipped)
			}
		case i == first:
			if !r.Decisive() || r.ResultURL != "https://x.test/mr/1234" {
				t.Errorf("result %d: %+v, want decisive match", i, r)
			}
		default:
			if r.Matched || !r.Skipped {
				t.Errorf("result %d: matched=%v skipped=%v, want false/true", i, r.Matched, r.Skipped)
			}
		}
	}

	// Later rules still report what they would have produced
	if results[4].ResultURL != "https://x.test/const" {
		t.Errorf("hypothetical const URL = %q", results[4].ResultURL)
	}
	if results[3].ResultURL != "https://x.test/search?q=1234" {
		t.Errorf("hypothetical URL = %q", results[3].ResultURL)
	}
}

func TestEvaluateOnlyFirstMatchReportsMatched(t *testing.T) {
	rules := []Rule{preset(PatternNumber, "https://x.test/n/%s"), preset(PatternString, "https://x.test/s/%s")}

	results := NewMatcher().Evaluate(rules, "42", nil)

	if !results[0].Matched || results[0].Skipped {
		t.Errorf("result 0: %+v, want decisive match", results[0])
	}
	if results[1].Matched || !results[1].Skipped || results[1].ResultURL != "https://x.test/s/42" {
		t.Errorf("result 1: %+v, want skipped non-match with hypothetical URL", results[1])
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	rules := []Rule{preset(PatternNumber, "n/%s"), preset(PatternEmpty, "e")}

	results := NewMatcher().Evaluate(rules, "abc", nil)

	if FirstMatch(results) != -1 {
		t.Fatalf("expected no match, got index %d", FirstMatch(results))
	}
	for _, r := range results {
		if r.ResultURL != "" || r.Skipped {
			t.Errorf("unexpected result %+v", r)
		}
	}
}

func TestEvaluateEmptyRuleList(t *testing.T) {
	results := EvaluateRules(nil, "anything", nil)
	if len(results) != 0 || FirstMatch(results) != -1 {
		t.Errorf("EvaluateRules(nil) = %v, want empty", results)
	}
}

// TestEvaluateInvalidRegexIsNonMatch verifies a broken pattern never aborts
// evaluation of the remaining rules
func TestEvaluateInvalidRegexIsNonMatch(t *testing.T) {
	rules := []Rule{
		{ID: "broken", PatternType: PatternRegex, Pattern: "([a-z", URL: "bad"},
		{ID: "lookahead", PatternType: PatternRegex, Pattern: "^(?=a)", URL: "bad"},
		{ID: "ok", PatternType: PatternRegex, Pattern: "^[a-z]+$", URL: "https://x.test/%s"},
	}

	results := NewMatcher().Evaluate(rules, "abc", nil)

	if results[0].Matched || results[0].Error == "" {
		t.Errorf("broken pattern: %+v, want non-match with error", results[0])
	}
	if results[1].Matched {
		t.Errorf("unsupported pattern should not match")
	}
	if !results[2].Decisive() || results[2].ResultURL != "https://x.test/abc" {
		t.Errorf("valid rule after broken ones: %+v", results[2])
	}
}

func TestEvaluateConstIsExactEquality(t *testing.T) {
	rules := []Rule{{ID: "c", PatternType: PatternConst, Pattern: "a.b", URL: "https://x.test/const"}}
	m := NewMatcher()

	if FirstMatch(m.Evaluate(rules, "a.b", nil)) != 0 {
		t.Error("const should match identical input")
	}
	if FirstMatch(m.Evaluate(rules, "axb", nil)) != -1 {
		t.Error("const must not treat its pattern as a regex")
	}
	if FirstMatch(m.Evaluate(rules, "A.B", nil)) != -1 {
		t.Error("const comparison is case-sensitive")
	}
}

func TestEvaluatePresetPatterns(t *testing.T) {
	testCases := []struct {
		patternType PatternType
		input       string
		want        bool
	}{
		{PatternNumber, "1234", true},
		{PatternNumber, "12a", false},
		{PatternNumber, "", false},
		{PatternString, "anything at all", true},
		{PatternString, "", true},
		{PatternString, "two\nlines", false},
		{PatternURL, "https://x.test", true},
		{PatternURL, "http://x.test", true},
		{PatternURL, "ftp://x.test", false},
		{PatternEmpty, "", true},
		{PatternEmpty, " ", false},
	}

	m := NewMatcher()
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%q", tc.patternType, tc.input), func(t *testing.T) {
			got, err := m.Test(preset(tc.patternType, ""), tc.input, nil)
			if err != nil {
				t.Fatalf("Test() error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Test() = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestEvaluateInterpolatesParams verifies named params are substituted
// before the positional input
func TestEvaluateInterpolatesParams(t *testing.T) {
	rules := []Rule{preset(PatternString, "https://${host}/search?q=%s&env=${env}")}
	params := map[string]string{"host": "x.test", "env": "prod"}

	results := NewMatcher().Evaluate(rules, "a b", params)

	want := "https://x.test/search?q=a%20b&env=prod"
	if results[0].ResultURL != want {
		t.Errorf("ResultURL = %q, want %q", results[0].ResultURL, want)
	}
}

func TestEvaluateExpr(t *testing.T) {
	testCases := []struct {
		name  string
		expr  string
		input string
		want  bool
	}{
		{"prefix", `input.startsWith("PR-")`, "PR-12", true},
		{"prefix miss", `input.startsWith("PR-")`, "12", false},
		{"size", `size(input) > 3`, "abcd", true},
		{"params", `"env" in params && params["env"] == "prod"`, "x", true},
		{"matches", `input.matches("^[0-9]+$")`, "42", true},
		{"non bool", `input + "x"`, "a", false},
		{"compile error", `input ==`, "a", false},
		{"unknown variable", `missing == 1`, "a", false},
	}

	m := NewMatcher()
	params := map[string]string{"env": "prod"}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := Rule{ID: tc.name, PatternType: PatternExpr, Pattern: tc.expr, URL: "https://x.test/%s"}
			results := m.Evaluate([]Rule{rule}, tc.input, params)
			if results[0].Matched != tc.want {
				t.Errorf("Matched = %v, want %v (error %q)", results[0].Matched, tc.want, results[0].Error)
			}
		})
	}
}

// TestMatcherCachesCompilation verifies compiled patterns are reused
func TestMatcherCachesCompilation(t *testing.T) {
	m := NewMatcher()

	a, err := m.CompileRegexp(`^\d+$`)
	if err != nil {
		t.Fatalf("CompileRegexp() failed: %v", err)
	}
	b, _ := m.CompileRegexp(`^\d+$`)
	if a != b {
		t.Error("expected the cached *regexp.Regexp to be reused")
	}

	_, err1 := m.CompileRegexp("(")
	_, err2 := m.CompileRegexp("(")
	if err1 == nil || err2 == nil || !strings.Contains(err2.Error(), "compile error") {
		t.Errorf("compile failures should be cached too: %v, %v", err1, err2)
	}
}

// TestMatcherConcurrentUse verifies a shared Matcher is safe under concurrent evaluation
func TestMatcherConcurrentUse(t *testing.T) {
	m := NewMatcher()
	rules := []Rule{
		{ID: "r", PatternType: PatternRegex, Pattern: `^[a-z]+\d*$`, URL: "https://x.test/%s"},
		{ID: "e", PatternType: PatternExpr, Pattern: `size(input) > 0`, URL: "https://x.test/e"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("abc%d", i)
			results := m.Evaluate(rules, input, nil)
			if FirstMatch(results) != 0 {
				t.Errorf("goroutine %d: unexpected first match %d", i, FirstMatch(results))
			}
		}(i)
	}
	wg.Wait()
}

func TestConditionNormalize(t *testing.T) {
	c := Condition{TrimInput: true, LowercaseInput: true}
	if got := c.Normalize("  MiXeD "); got != "mixed" {
		t.Errorf("Normalize() = %q, want %q", got, "mixed")
	}

	plain := Condition{}
	if got := plain.Normalize("  MiXeD "); got != "  MiXeD " {
		t.Errorf("Normalize() without flags changed input to %q", got)
	}
}

// TestFindConditionDuplicateKeys verifies the earliest condition wins when
// keys collide
func TestFindConditionDuplicateKeys(t *testing.T) {
	conditions := []Condition{
		{ID: "1", Key: "mr"},
		{ID: "2", Key: "dup"},
		{ID: "3", Key: "dup"},
	}

	c, ok := FindCondition(conditions, "dup")
	if !ok || c.ID != "2" {
		t.Errorf("FindCondition(dup) = %+v, %v; want ID 2", c, ok)
	}

	if _, ok := FindCondition(conditions, "none"); ok {
		t.Error("FindCondition should report missing keys")
	}
}
