// Package query implements the textual side of the linker: splitting a raw
// query into its parts, substituting parameters into URL templates and
// recognising URLs that point back into the linker itself.
package query

import (
	"regexp"
	"strings"
)

// flagPattern matches a named flag token such as --env=prod
var flagPattern = regexp.MustCompile(`^--([a-zA-Z_][\w-]*)=(.*)$`)

// Parsed is the result of splitting a raw query string.
// Module and Command are empty when the corresponding token is absent.
// HasParam distinguishes a missing positional parameter from an empty one.
type Parsed struct {
	Module   string
	Command  string
	Param    string
	HasParam bool
	Flags    map[string]string
}

// Parse splits a query of the form "<module> <command> <tokens...>".
// Tokens after the command that look like --name=value become flags; all
// other tokens are rejoined with single spaces into the positional
// parameter. Parse never fails: malformed flags are kept as plain text.
func Parse(raw string) Parsed {
	parts := strings.Split(raw, " ")

	p := Parsed{
		Module: parts[0],
		Flags:  make(map[string]string),
	}
	if len(parts) > 1 {
		p.Command = parts[1]
	}
	if len(parts) <= 2 {
		return p
	}

	var plain []string
	for _, token := range parts[2:] {
		if m := flagPattern.FindStringSubmatch(token); m != nil {
			p.Flags[m[1]] = m[2]
			continue
		}
		plain = append(plain, token)
	}

	if len(plain) > 0 {
		p.Param = strings.Join(plain, " ")
		p.HasParam = true
	}

	return p
}

// Tags splits a positional parameter into search tags.
// Runs of whitespace never produce empty tags.
func Tags(param string) []string {
	return strings.Fields(param)
}
