// Package resolver turns a raw query into a destination. It parses the
// query, dispatches to the condition or table module, and follows URLs that
// point back into the linker until an external destination, a navigation
// hint or the depth limit is reached. Every decision is recorded as a Step.
package resolver

import (
	"maps"
	"strings"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/query"
	"github.com/liamcoop/linker/rules"
)

const (
	// MaxDepth is the deepest chain hop that is still resolved. A query
	// whose chain goes deeper fails; there is no cycle detection beyond it.
	MaxDepth = 5

	// DepthExceededMessage is the Failure message for exhausted chains
	DepthExceededMessage = "Max chain depth reached (possible cycle)"

	ModuleGo   = "go"
	ModuleFind = "find"

	// Sentinel as the positional parameter asks for the admin view
	Sentinel = "?"
)

// Options carries the caller's context for a resolution
type Options struct {
	// Origin is the caller's own scheme://host, used to recognise absolute
	// URLs that point back into the linker
	Origin string

	// Params are named parameters from the caller's URL, excluding q.
	// Query flags override them.
	Params map[string]string

	// Matcher evaluates rules; nil uses a shared default
	Matcher *rules.Matcher
}

// AdminPath returns the administration view for module, pre-selecting key
// when it is not empty. Every module except find administers conditions.
func AdminPath(module, key string) string {
	path := "/go/"
	if module == ModuleFind {
		path = "/find/"
	}
	if key == "" {
		return path
	}
	return path + "?key=" + query.EncodeURIComponent(key)
}

// Evaluate resolves raw against the given conditions and tables.
// It never fails: every outcome, including an exhausted chain, is a Result.
// Inputs are only read, so concurrent calls do not interact.
func Evaluate(raw string, conditions []rules.Condition, tables []lookup.Table, opts Options) Evaluation {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Evaluation{Steps: []Step{}, Result: None{}}
	}

	r := &resolution{
		conditions: conditions,
		tables:     tables,
		origin:     opts.Origin,
		evaluate:   rules.EvaluateRules,
		steps:      []Step{},
	}
	if opts.Matcher != nil {
		r.evaluate = opts.Matcher.Evaluate
	}

	q, params := raw, opts.Params
	for depth := 0; ; depth++ {
		if depth > MaxDepth {
			r.push(ErrorStep{Message: DepthExceededMessage, Depth: depth})
			return r.finish(Failure{Message: DepthExceededMessage})
		}

		result, next := r.resolveOnce(q, depth, params)
		if next == nil {
			return r.finish(result)
		}
		q, params = next.query, next.params
	}
}

type resolution struct {
	conditions []rules.Condition
	tables     []lookup.Table
	origin     string
	evaluate   func([]rules.Rule, string, map[string]string) []rules.RuleResult
	steps      []Step
}

// hop is a nested query to resolve at the next depth
type hop struct {
	query  string
	params map[string]string
}

func (r *resolution) push(s Step) {
	r.steps = append(r.steps, s)
}

func (r *resolution) finish(result Result) Evaluation {
	return Evaluation{Steps: r.steps, Result: result}
}

// resolveOnce resolves a single query level. It returns either a terminal
// result or the hop to follow.
func (r *resolution) resolveOnce(raw string, depth int, urlParams map[string]string) (Result, *hop) {
	p := query.Parse(raw)

	params := make(map[string]string, len(urlParams)+len(p.Flags))
	maps.Copy(params, urlParams)
	maps.Copy(params, p.Flags)

	r.push(ParseStep{
		Module:   p.Module,
		Command:  p.Command,
		Param:    p.Param,
		HasParam: p.HasParam,
		Flags:    p.Flags,
		Params:   params,
		Depth:    depth,
	})

	if p.HasParam && p.Param == Sentinel {
		to := AdminPath(p.Module, p.Command)
		r.push(SentinelStep{NavigateTo: to, Depth: depth})
		return Navigate{To: to}, nil
	}

	actionable := p.Command != "" && (p.HasParam || len(params) > 0)

	switch {
	case p.Module == ModuleGo && actionable:
		return r.resolveCondition(p, params, depth)
	case p.Module == ModuleFind && actionable:
		return r.resolveTable(p, params, depth)
	case p.Module != "":
		return Navigate{To: AdminPath(p.Module, "")}, nil
	default:
		return None{}, nil
	}
}

func (r *resolution) resolveCondition(p query.Parsed, params map[string]string, depth int) (Result, *hop) {
	condition, ok := rules.FindCondition(r.conditions, p.Command)
	if !ok {
		r.push(ConditionNotFoundStep{Command: p.Command, Depth: depth})
		return Navigate{To: AdminPath(ModuleGo, p.Command)}, nil
	}
	r.push(ConditionFoundStep{Condition: condition, Depth: depth})

	input := condition.Normalize(p.Param)
	for _, res := range r.evaluate(condition.Rules, input, params) {
		if !res.Decisive() {
			r.push(RuleFailStep{Rule: res.Rule, Error: res.Error, Depth: depth})
			continue
		}

		r.push(RuleMatchStep{Condition: condition, Rule: res.Rule, RawURL: res.ResultURL, Depth: depth})
		return r.follow(res.ResultURL, params, depth)
	}

	return Navigate{To: AdminPath(ModuleGo, p.Command)}, nil
}

func (r *resolution) resolveTable(p query.Parsed, params map[string]string, depth int) (Result, *hop) {
	table, ok := lookup.FindTable(r.tables, p.Command)
	if !ok {
		r.push(TableNotFoundStep{Command: p.Command, Depth: depth})
		return Navigate{To: AdminPath(ModuleFind, p.Command)}, nil
	}
	r.push(TableFoundStep{Table: table, Depth: depth})

	tags := query.Tags(p.Param)
	entries := lookup.SearchEntries(table, tags)

	switch len(entries) {
	case 0:
		r.push(EntryNoMatchStep{Table: table, Tags: tags, Depth: depth})
		return Navigate{To: AdminPath(ModuleFind, p.Command)}, nil
	case 1:
		r.push(EntryMatchStep{Table: table, Entry: entries[0], Tags: tags, Depth: depth})
		return r.follow(query.Interpolate(entries[0].URL, params), params, depth)
	default:
		r.push(EntryMultiStep{Table: table, Entries: entries, Tags: tags, Depth: depth})
		return Picker{Table: table, Entries: entries, Tags: tags, Params: params}, nil
	}
}

// follow either chains into the query carried by an internal URL or
// redirects to it
func (r *resolution) follow(rawURL string, params map[string]string, depth int) (Result, *hop) {
	resolved := query.ResolveURL(rawURL)

	next, internal := query.ExtractChainQuery(resolved, r.origin)
	if !internal {
		return Redirect{URL: resolved}, nil
	}

	r.push(ChainStep{FromURL: rawURL, ToQuery: next, Depth: depth})
	return nil, &hop{query: next, params: params}
}
