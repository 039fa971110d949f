package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/rules"
)

// Step is one entry of a resolution trace. The set of step types is
// closed; consumers switch over the concrete types below.
type Step interface {
	stepDepth() int
}

// ParseStep records how a query was split at a given chain depth
type ParseStep struct {
	Module   string            `json:"module"`
	Command  string            `json:"command"`
	Param    string            `json:"param"`
	HasParam bool              `json:"hasParam"`
	Flags    map[string]string `json:"flags"`
	Params   map[string]string `json:"params"`
	Depth    int               `json:"depth"`
}

// SentinelStep records a "?" parameter sending the user to an admin view
type SentinelStep struct {
	NavigateTo string `json:"navigateTo"`
	Depth      int    `json:"depth"`
}

type ConditionFoundStep struct {
	Condition rules.Condition `json:"condition"`
	Depth     int             `json:"depth"`
}

type ConditionNotFoundStep struct {
	Command string `json:"command"`
	Depth   int    `json:"depth"`
}

// RuleMatchStep records the decisive rule. RawURL is the expanded rule URL
// before it is resolved into a linker URL.
type RuleMatchStep struct {
	Condition rules.Condition `json:"condition"`
	Rule      rules.Rule      `json:"rule"`
	RawURL    string          `json:"rawUrl"`
	Depth     int             `json:"depth"`
}

// RuleFailStep records a rule tested before the match that did not match.
// Error is set when the rule's pattern could not be compiled.
type RuleFailStep struct {
	Rule  rules.Rule `json:"rule"`
	Error string     `json:"error,omitempty"`
	Depth int        `json:"depth"`
}

type TableFoundStep struct {
	Table lookup.Table `json:"table"`
	Depth int          `json:"depth"`
}

type TableNotFoundStep struct {
	Command string `json:"command"`
	Depth   int    `json:"depth"`
}

type EntryMatchStep struct {
	Table lookup.Table `json:"table"`
	Entry lookup.Entry `json:"entry"`
	Tags  []string     `json:"tags"`
	Depth int          `json:"depth"`
}

type EntryNoMatchStep struct {
	Table lookup.Table `json:"table"`
	Tags  []string     `json:"tags"`
	Depth int          `json:"depth"`
}

type EntryMultiStep struct {
	Table   lookup.Table   `json:"table"`
	Entries []lookup.Entry `json:"entries"`
	Tags    []string       `json:"tags"`
	Depth   int            `json:"depth"`
}

// ChainStep records a resolved URL pointing back into the linker.
// FromURL is the URL before resolution, ToQuery the nested query.
type ChainStep struct {
	FromURL string `json:"fromUrl"`
	ToQuery string `json:"toQuery"`
	Depth   int    `json:"depth"`
}

// ErrorStep records the resolution being abandoned
type ErrorStep struct {
	Message string `json:"message"`
	Depth   int    `json:"depth"`
}

func (s ParseStep) stepDepth() int             { return s.Depth }
func (s SentinelStep) stepDepth() int          { return s.Depth }
func (s ConditionFoundStep) stepDepth() int    { return s.Depth }
func (s ConditionNotFoundStep) stepDepth() int { return s.Depth }
func (s RuleMatchStep) stepDepth() int         { return s.Depth }
func (s RuleFailStep) stepDepth() int          { return s.Depth }
func (s TableFoundStep) stepDepth() int        { return s.Depth }
func (s TableNotFoundStep) stepDepth() int     { return s.Depth }
func (s EntryMatchStep) stepDepth() int        { return s.Depth }
func (s EntryNoMatchStep) stepDepth() int      { return s.Depth }
func (s EntryMultiStep) stepDepth() int        { return s.Depth }
func (s ChainStep) stepDepth() int             { return s.Depth }
func (s ErrorStep) stepDepth() int             { return s.Depth }

// StepDepth returns the chain depth a step was recorded at
func StepDepth(s Step) int {
	return s.stepDepth()
}

// StepKind returns the wire name of a step type
func StepKind(s Step) string {
	switch s.(type) {
	case ParseStep:
		return "parse"
	case SentinelStep:
		return "sentinel"
	case ConditionFoundStep:
		return "condition_found"
	case ConditionNotFoundStep:
		return "condition_not_found"
	case RuleMatchStep:
		return "rule_match"
	case RuleFailStep:
		return "rule_fail"
	case TableFoundStep:
		return "table_found"
	case TableNotFoundStep:
		return "table_not_found"
	case EntryMatchStep:
		return "entry_match"
	case EntryNoMatchStep:
		return "entry_no_match"
	case EntryMultiStep:
		return "entry_multi"
	case ChainStep:
		return "chain"
	case ErrorStep:
		return "error"
	default:
		panic(fmt.Sprintf("resolver: unknown step type %T", s))
	}
}

// Describe renders a step as a single human-readable line
func Describe(s Step) string {
	switch s := s.(type) {
	case ParseStep:
		param := "<none>"
		if s.HasParam {
			param = fmt.Sprintf("%q", s.Param)
		}
		return fmt.Sprintf("parse module=%q command=%q param=%s flags=%v", s.Module, s.Command, param, s.Flags)
	case SentinelStep:
		return "sentinel, navigate to " + s.NavigateTo
	case ConditionFoundStep:
		return fmt.Sprintf("condition %q found with %d rules", s.Condition.Key, len(s.Condition.Rules))
	case ConditionNotFoundStep:
		return fmt.Sprintf("condition %q not found", s.Command)
	case RuleMatchStep:
		return fmt.Sprintf("rule %s matched, url %s", ruleName(s.Rule), s.RawURL)
	case RuleFailStep:
		if s.Error != "" {
			return fmt.Sprintf("rule %s failed: %s", ruleName(s.Rule), s.Error)
		}
		return fmt.Sprintf("rule %s did not match", ruleName(s.Rule))
	case TableFoundStep:
		return fmt.Sprintf("table %q found with %d entries", s.Table.Key, len(s.Table.Entries))
	case TableNotFoundStep:
		return fmt.Sprintf("table %q not found", s.Command)
	case EntryMatchStep:
		return fmt.Sprintf("entry %q matched tags [%s]", s.Entry.Description, strings.Join(s.Tags, " "))
	case EntryNoMatchStep:
		return fmt.Sprintf("no entry matched tags [%s]", strings.Join(s.Tags, " "))
	case EntryMultiStep:
		return fmt.Sprintf("%d entries matched tags [%s]", len(s.Entries), strings.Join(s.Tags, " "))
	case ChainStep:
		return fmt.Sprintf("chain %s -> %q", s.FromURL, s.ToQuery)
	case ErrorStep:
		return "error: " + s.Message
	default:
		panic(fmt.Sprintf("resolver: unknown step type %T", s))
	}
}

func ruleName(r rules.Rule) string {
	if r.Label != "" {
		return fmt.Sprintf("%q", r.Label)
	}
	return fmt.Sprintf("%s(%s)", r.PatternType, r.Pattern)
}

// Each step marshals with a "type" field naming its kind. The alias types
// drop the MarshalJSON method so encoding does not recurse.

func (s ParseStep) MarshalJSON() ([]byte, error) {
	type alias ParseStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s SentinelStep) MarshalJSON() ([]byte, error) {
	type alias SentinelStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s ConditionFoundStep) MarshalJSON() ([]byte, error) {
	type alias ConditionFoundStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s ConditionNotFoundStep) MarshalJSON() ([]byte, error) {
	type alias ConditionNotFoundStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s RuleMatchStep) MarshalJSON() ([]byte, error) {
	type alias RuleMatchStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s RuleFailStep) MarshalJSON() ([]byte, error) {
	type alias RuleFailStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s TableFoundStep) MarshalJSON() ([]byte, error) {
	type alias TableFoundStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s TableNotFoundStep) MarshalJSON() ([]byte, error) {
	type alias TableNotFoundStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s EntryMatchStep) MarshalJSON() ([]byte, error) {
	type alias EntryMatchStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s EntryNoMatchStep) MarshalJSON() ([]byte, error) {
	type alias EntryNoMatchStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s EntryMultiStep) MarshalJSON() ([]byte, error) {
	type alias EntryMultiStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s ChainStep) MarshalJSON() ([]byte, error) {
	type alias ChainStep
	return marshalTagged(StepKind(s), alias(s))
}

func (s ErrorStep) MarshalJSON() ([]byte, error) {
	type alias ErrorStep
	return marshalTagged(StepKind(s), alias(s))
}

// marshalTagged encodes v as a JSON object with a leading "type" field
func marshalTagged(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	tag, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if rest := bytes.TrimPrefix(body, []byte("{")); !bytes.Equal(rest, []byte("}")) {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
