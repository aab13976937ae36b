package command

import (
	"regexp"
	"strings"
)

// Param is a single action argument. Name is empty for positional values.
type Param struct {
	Name  string
	Value string
	Index int
}

var (
	namedQuoted = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*"(.*)"$`)
	namedBare   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+)$`)
)

// ParseArguments splits raw on commas outside double quotes and classifies
// every token as named (`name=value`) or positional. Index is the position of
// the token in the split sequence, so skipped tokens still consume an index.
func ParseArguments(raw string) []Param {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var params []Param
	for i, token := range splitArguments(raw) {
		token = strings.TrimSpace(token)
		if p, ok := classify(token); ok {
			p.Index = i
			params = append(params, p)
		}
	}
	return params
}

func classify(token string) (Param, bool) {
	if m := namedQuoted.FindStringSubmatch(token); m != nil {
		return Param{Name: m[1], Value: m[2]}, true
	}
	if m := namedBare.FindStringSubmatch(token); m != nil {
		return Param{Name: m[1], Value: unquote(strings.TrimSpace(m[2]))}, true
	}
	if token == "" {
		return Param{}, false
	}
	return Param{Value: unquote(token)}, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitArguments is a two state tokenizer: commas split only while not
// inside a double quoted run.
func splitArguments(raw string) []string {
	var tokens []string
	var sb strings.Builder
	inQuote := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == ',' && !inQuote:
			tokens = append(tokens, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	return append(tokens, sb.String())
}
