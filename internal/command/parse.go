// Package command implements the Command Handler (C9): a slash-command
// parser plus a dispatch table of built-ins operating only on the Memory
// Store and the classifier/agent status surface, per spec.md §4.9.
//
// Grounded on the teacher's declarative Options+Engine construction idiom
// (features/policy/basic/engine.go, reused from C7/C8) for the dispatch
// table itself, and on cmd/demo/main.go's plain main-package wiring style
// for how a small set of named operations get registered against a runtime.
package command

import "strings"

// ParsedCommand is the result of parsing a `/<name>( <token>)*` input line.
type ParsedCommand struct {
	Name       string
	Positional []string
	Named      map[string]any
}

// Parse splits trimmed input of the form "/<name> arg1 --flag value --bool"
// into a command name, an ordered list of positional (bare) tokens, and a
// map of named args. A bare "--key" with no following value (including one
// at the end of input) is a boolean true, per spec.md §4.9.
func Parse(input, prefix string) (ParsedCommand, bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, prefix) {
		return ParsedCommand{}, false
	}
	body := strings.TrimPrefix(trimmed, prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ParsedCommand{}, false
	}

	parsed := ParsedCommand{Name: fields[0], Named: map[string]any{}}
	rest := fields[1:]
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if !strings.HasPrefix(tok, "--") {
			parsed.Positional = append(parsed.Positional, tok)
			continue
		}
		key := strings.TrimPrefix(tok, "--")
		if i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "--") {
			parsed.Named[key] = rest[i+1]
			i++
			continue
		}
		parsed.Named[key] = true
	}
	return parsed, true
}
