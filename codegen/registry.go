// Package codegen serializes a scheduled compute sequence into a tern model
// file.
//
// The three moving parts are the emitter registry (operator kind -> body
// serializer), the page planner (body sizes -> bounded page table) and the
// generator itself, which assembles header, I/O descriptors, constant blob,
// node headers, page table and aligned bodies into one deterministic file.
//
// Code generation is single-threaded by design: every body's file offset
// depends on the measured size of every body before it.
package codegen

import (
	"fmt"

	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
)

// Emitter serializes one graph node into an instruction body. Emitters may
// read the allocation context to resolve operand addresses but must not
// mutate it.
type Emitter func(n graph.Node, ctx *Context) (*Body, error)

// UnsupportedOpError reports an operator kind with neither a registered
// emitter nor an explicit disable marker. This is a configuration error and
// aborts code generation.
type UnsupportedOpError struct {
	Op model.Opcode
}

func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("codegen: no emitter registered for operator %q", e.Op)
}

// Registry maps operator kinds to emitters. It is an explicit instance owned
// by the build context rather than a process-global table, so targets can
// configure op support without hidden cross-module registration order.
type Registry struct {
	emitters map[model.Opcode]Emitter
	disabled map[model.Opcode]struct{}
}

// NewRegistry returns a registry populated from the fixed table of built-in
// op emitters. Placeholder kinds (input, output, constant) are disabled: they
// occupy the compute sequence but produce no runtime body.
func NewRegistry() *Registry {
	r := &Registry{
		emitters: make(map[model.Opcode]Emitter),
		disabled: make(map[model.Opcode]struct{}),
	}
	for op, fn := range builtinEmitters {
		r.Register(op, fn)
	}
	r.Disable(model.OpInput)
	r.Disable(model.OpOutput)
	r.Disable(model.OpConstant)
	return r
}

// Register associates an operator kind with an emitter. Re-registering the
// same kind replaces the previous emitter; last write wins. Registering a
// kind clears a prior disable marker.
func (r *Registry) Register(op model.Opcode, fn Emitter) {
	r.emitters[op] = fn
	delete(r.disabled, op)
}

// Disable marks an operator kind as intentionally unsupported on the current
// target. Nodes of a disabled kind are silently skipped: excluded from the
// node count, node headers and body region.
func (r *Registry) Disable(op model.Opcode) {
	delete(r.emitters, op)
	r.disabled[op] = struct{}{}
}

// Disabled reports whether the kind carries a disable marker.
func (r *Registry) Disabled(op model.Opcode) bool {
	_, ok := r.disabled[op]
	return ok
}

// Emit dispatches a node to its emitter. A disabled kind yields (nil, nil).
// A kind that is neither registered nor disabled is a configuration error.
func (r *Registry) Emit(n graph.Node, ctx *Context) (*Body, error) {
	op := n.Opcode()
	fn, ok := r.emitters[op]
	if !ok {
		if r.Disabled(op) {
			return nil, nil
		}
		return nil, &UnsupportedOpError{Op: op}
	}
	return fn(n, ctx)
}
