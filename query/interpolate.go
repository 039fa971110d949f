package query

import (
	"regexp"
	"strings"
)

// MaxInterpolationPasses bounds how often named placeholders are re-expanded,
// so parameters that reference each other cannot loop forever.
const MaxInterpolationPasses = 10

// PositionalToken is replaced once with the encoded input string.
const PositionalToken = "%s"

var placeholderPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Interpolate replaces every ${name} whose name is a key of params.
// Substituted values may contain further placeholders; expansion repeats
// until nothing changes or MaxInterpolationPasses is reached.
// Unknown placeholders are left untouched.
func Interpolate(template string, params map[string]string) string {
	if len(params) == 0 {
		return template
	}

	result := template
	for i := 0; i < MaxInterpolationPasses; i++ {
		next := placeholderPattern.ReplaceAllStringFunc(result, func(match string) string {
			name := match[2 : len(match)-1]
			if value, ok := params[name]; ok {
				return value
			}
			return match
		})
		if next == result {
			break
		}
		result = next
	}

	return result
}

// SubstitutePositional replaces the first %s in url with the
// percent-encoded input.
func SubstitutePositional(url, input string) string {
	return strings.Replace(url, PositionalToken, EncodeURIComponent(input), 1)
}

// Expand interpolates named params and then the positional input, which is
// how rule URLs are produced.
func Expand(template string, params map[string]string, input string) string {
	return SubstitutePositional(Interpolate(template, params), input)
}

// EncodeURIComponent percent-encodes s the way browsers encode a single URI
// component: only letters, digits and -_.!~*'() are left as is.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreservedComponentByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreservedComponentByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
