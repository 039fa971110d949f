package rules

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/linker/internal/metrics"
	"github.com/liamcoop/linker/query"
)

// exprCostLimit caps the work a single expr rule may do per evaluation
const exprCostLimit = 100000

// maxCompiled bounds the compiled-pattern caches; on overflow they are reset
const maxCompiled = 4096

// Matcher tests rule lists against an input string.
// Compiled regular expressions and CEL programs are cached by pattern
// source. The cache never changes results, so a Matcher is safe to share
// between concurrent resolutions.
type Matcher struct {
	mu       sync.RWMutex
	regexps  map[string]compiledRegexp
	programs map[string]compiledProgram

	envOnce sync.Once
	env     *cel.Env
	envErr  error
}

type compiledRegexp struct {
	re  *regexp.Regexp
	err error
}

type compiledProgram struct {
	prog cel.Program
	err  error
}

// NewMatcher creates a Matcher with empty caches
func NewMatcher() *Matcher {
	return &Matcher{
		regexps:  make(map[string]compiledRegexp),
		programs: make(map[string]compiledProgram),
	}
}

var defaultMatcher = NewMatcher()

// EvaluateRules evaluates rules with a shared package-level Matcher
func EvaluateRules(rules []Rule, input string, params map[string]string) []RuleResult {
	return defaultMatcher.Evaluate(rules, input, params)
}

// Evaluate tests every rule in order against input and returns one result
// per rule. Only the first matching rule reports Matched; every later rule
// is still tested for its hypothetical ResultURL but reported as not
// matched and Skipped. Rules whose pattern cannot be compiled do not match.
func (m *Matcher) Evaluate(rules []Rule, input string, params map[string]string) []RuleResult {
	results := make([]RuleResult, 0, len(rules))
	matchedBefore := false

	for _, rule := range rules {
		matched, err := m.Test(rule, input, params)

		result := RuleResult{
			Rule:    rule,
			Matched: matched && !matchedBefore,
			Skipped: matchedBefore,
		}
		if err != nil {
			result.Error = err.Error()
		}
		if matched {
			result.ResultURL = query.Expand(rule.URL, params, input)
			matchedBefore = true
		}

		results = append(results, result)
	}

	return results
}

// Test reports whether a single rule accepts input. The returned error
// describes why a pattern could not be used; the rule is then treated as
// not matching.
func (m *Matcher) Test(rule Rule, input string, params map[string]string) (bool, error) {
	switch rule.PatternType {
	case PatternConst:
		return input == rule.Pattern, nil
	case PatternExpr:
		return m.testExpr(rule.Pattern, input, params)
	default:
		re, err := m.CompileRegexp(rule.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(input), nil
	}
}

// CompileRegexp compiles pattern, reusing an earlier compilation of the
// same source. Go regular expressions run in linear time, so a user
// pattern cannot backtrack catastrophically.
func (m *Matcher) CompileRegexp(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	c, ok := m.regexps[pattern]
	m.mu.RUnlock()
	if ok {
		return c.re, c.err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		err = fmt.Errorf("compile error: %w", err)
		metrics.PatternCompileFailures.WithLabelValues(string(PatternRegex)).Inc()
	}

	m.mu.Lock()
	if len(m.regexps) >= maxCompiled {
		m.regexps = make(map[string]compiledRegexp)
	}
	m.regexps[pattern] = compiledRegexp{re: re, err: err}
	m.mu.Unlock()

	return re, err
}

// CompileExpr compiles a CEL boolean expression over `input` and `params`
func (m *Matcher) CompileExpr(expression string) (cel.Program, error) {
	m.mu.RLock()
	c, ok := m.programs[expression]
	m.mu.RUnlock()
	if ok {
		return c.prog, c.err
	}

	prog, err := m.compileExpr(expression)
	if err != nil {
		metrics.PatternCompileFailures.WithLabelValues(string(PatternExpr)).Inc()
	}

	m.mu.Lock()
	if len(m.programs) >= maxCompiled {
		m.programs = make(map[string]compiledProgram)
	}
	m.programs[expression] = compiledProgram{prog: prog, err: err}
	m.mu.Unlock()

	return prog, err
}

func (m *Matcher) compileExpr(expression string) (cel.Program, error) {
	env, err := m.celEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(exprCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return prog, nil
}

func (m *Matcher) celEnv() (*cel.Env, error) {
	m.envOnce.Do(func() {
		m.env, m.envErr = cel.NewEnv(
			cel.Variable("input", cel.StringType),
			cel.Variable("params", cel.MapType(cel.StringType, cel.StringType)),
		)
		if m.envErr != nil {
			m.envErr = fmt.Errorf("failed to create CEL environment: %w", m.envErr)
		}
	})
	return m.env, m.envErr
}

// testExpr evaluates an expr rule. Evaluation errors, cost overruns and
// non-boolean results all count as no match.
func (m *Matcher) testExpr(expression, input string, params map[string]string) (bool, error) {
	prog, err := m.CompileExpr(expression)
	if err != nil {
		return false, err
	}

	if params == nil {
		params = map[string]string{}
	}

	out, _, err := prog.Eval(map[string]any{
		"input":  input,
		"params": params,
	})
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return matched, nil
}
