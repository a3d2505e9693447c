// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// transform models script-driven document rewriting as an interface
// instead of a dynamic-dispatch-over-arbitrary-engines design: the core
// never depends on a particular scripting runtime. Callers that want
// Javascript/Lua/whatever wire their own Transformer implementation in.

package transform

import "context"

// ScriptContext is the mutable context passed to a Transformer, and read
// back afterward for its control directives
type ScriptContext struct {
	Document  map[string]interface{}
	Operation string
	ID        string

	// Index/Type/Parent/Routing override the configured defaults when
	// non-empty
	Index   string
	Type    string
	Parent  string
	Routing string

	// Ignore, when set by the transformer, drops the event; the
	// checkpoint still advances
	Ignore bool

	// Deleted, when set by the transformer, overrides Operation to a
	// delete regardless of the source oplog operation
	Deleted bool
}

// Transformer rewrites a document/operation/id triple before it is
// translated into a bulk action
type Transformer interface {
	Apply(ctx context.Context, sc *ScriptContext) error
}

// NoOp is used when no transformation script is configured
type NoOp struct{}

func (NoOp) Apply(ctx context.Context, sc *ScriptContext) error {
	return nil
}
