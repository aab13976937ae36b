package command

import (
	"regexp"
	"strings"
)

// Action is a single `name(args)` command inside a block.
type Action struct {
	Name   string
	Params []Param
}

// Param returns the param named name, falling back to the positional param
// at index when no named one is present.
func (a Action) Param(name string, index int) (string, bool) {
	for _, p := range a.Params {
		if p.Name != "" && strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	if index < 0 {
		return "", false
	}
	for _, p := range a.Params {
		if p.Name == "" && p.Index == index {
			return p.Value, true
		}
	}
	return "", false
}

var actionRegexp = regexp.MustCompile(`([A-Za-z]+)\s*\(([^()]*)\)`)

// ParseActions returns every `name(args)` occurrence of body in order of
// appearance. Text between actions is ignored and nested parentheses are not
// supported: the argument capture ends at the first closing parenthesis.
func ParseActions(body string) []Action {
	var actions []Action
	for _, m := range actionRegexp.FindAllStringSubmatch(body, -1) {
		actions = append(actions, Action{
			Name:   strings.TrimSpace(m[1]),
			Params: ParseArguments(strings.TrimSpace(m[2])),
		})
	}
	return actions
}
