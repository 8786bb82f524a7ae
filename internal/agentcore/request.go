// Package agentcore holds the shared request/response/classification/tool/
// workflow/session vocabulary that every component of the agent runtime
// depends on. Centralizing these types here — instead of letting each
// component define its own — keeps the dependency graph a star around this
// package rather than a tangle of cross-component imports.
package agentcore

import "time"

type (
	// RequestContext carries the ambient metadata attached to a Request.
	RequestContext struct {
		// SessionID identifies the conversation this request belongs to.
		SessionID string
		// Source identifies where the request originated (cli, http, test, ...).
		Source string
		// Timestamp records when the request was accepted.
		Timestamp time.Time
		// Environment carries caller-supplied key/value context (cwd, os, ...).
		Environment map[string]string
	}

	// RequestOptions carries optional per-request overrides.
	RequestOptions struct {
		// Method forces a specific classification method instead of the
		// configured default.
		Method string
		// Deadline overrides the dispatcher's default phase timeouts when set.
		Deadline time.Time
	}

	// Request is the immutable unit of work accepted by the dispatcher.
	//
	// A Request never outlives its deadline and is never mutated once
	// accepted; handlers receive it by value.
	Request struct {
		Input   string
		Context RequestContext
		Options *RequestOptions
	}
)

// Clone returns a deep-enough copy of the request context environment map so
// callers may safely mutate the original after building a Request.
func (c RequestContext) Clone() RequestContext {
	out := c
	if c.Environment != nil {
		out.Environment = make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			out.Environment[k] = v
		}
	}
	return out
}
