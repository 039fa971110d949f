package resolver

import (
	"fmt"

	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/query"
)

// Result is the outcome of a resolution. The set of result types is closed.
type Result interface {
	isResult()
}

// None means there was nothing to resolve; callers show a neutral home state
type None struct{}

// Redirect sends the user to an external URL
type Redirect struct {
	URL string `json:"url"`
}

// Navigate sends the user to an administration path of the linker
type Navigate struct {
	To string `json:"to"`
}

// Picker asks the user to choose between several matching entries.
// Entry URLs are not yet interpolated; use EntryURL.
type Picker struct {
	Table   lookup.Table      `json:"table"`
	Entries []lookup.Entry    `json:"entries"`
	Tags    []string          `json:"tags"`
	Params  map[string]string `json:"params"`
}

// Failure is a resolution that had to be abandoned
type Failure struct {
	Message string `json:"message"`
}

func (None) isResult()     {}
func (Redirect) isResult() {}
func (Navigate) isResult() {}
func (Picker) isResult()   {}
func (Failure) isResult()  {}

// EntryURL is the destination of choosing e from the picker
func (p Picker) EntryURL(e lookup.Entry) string {
	return query.ResolveURL(query.Interpolate(e.URL, p.Params))
}

// ResultKind returns the wire name of a result type
func ResultKind(r Result) string {
	switch r.(type) {
	case None:
		return "none"
	case Redirect:
		return "redirect"
	case Navigate:
		return "navigate"
	case Picker:
		return "picker"
	case Failure:
		return "error"
	default:
		panic(fmt.Sprintf("resolver: unknown result type %T", r))
	}
}

func (r None) MarshalJSON() ([]byte, error) {
	return marshalTagged(ResultKind(r), struct{}{})
}

func (r Redirect) MarshalJSON() ([]byte, error) {
	type alias Redirect
	return marshalTagged(ResultKind(r), alias(r))
}

func (r Navigate) MarshalJSON() ([]byte, error) {
	type alias Navigate
	return marshalTagged(ResultKind(r), alias(r))
}

func (r Picker) MarshalJSON() ([]byte, error) {
	type alias Picker
	return marshalTagged(ResultKind(r), alias(r))
}

func (r Failure) MarshalJSON() ([]byte, error) {
	type alias Failure
	return marshalTagged(ResultKind(r), alias(r))
}

// Evaluation is a resolution trace together with its outcome
type Evaluation struct {
	Steps  []Step `json:"steps"`
	Result Result `json:"result"`
}

// Hops returns the number of chain steps followed
func (e Evaluation) Hops() int {
	n := 0
	for _, s := range e.Steps {
		if _, ok := s.(ChainStep); ok {
			n++
		}
	}
	return n
}

// Module returns the module named by the outermost query, or "" when the
// query was empty
func (e Evaluation) Module() string {
	for _, s := range e.Steps {
		if p, ok := s.(ParseStep); ok {
			return p.Module
		}
	}
	return ""
}
