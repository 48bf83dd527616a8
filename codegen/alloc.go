package codegen

import (
	"fmt"

	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
)

// Allocator is the read-only view of the upstream memory allocator. It maps
// every output value in the compute sequence to a byte range inside a memory
// space and reports total usage per space.
//
// A lookup miss means the scheduler handed codegen a value the allocator
// never placed; that is a contract violation and generation fails fast.
type Allocator interface {
	Allocation(v *graph.Value) (model.MemoryRange, error)
	Usage(space model.MemorySpace) uint32
}

// AllocationError reports a value with no allocation.
type AllocationError struct {
	Op model.Opcode
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("codegen: value produced by %q has no allocation", e.Op)
}

// Context is the per-build state handed to emitters: allocation lookups over
// the compute sequence being serialized.
type Context struct {
	alloc Allocator
}

// NewContext wraps an allocator for use during emission.
func NewContext(alloc Allocator) *Context {
	return &Context{alloc: alloc}
}

// Allocation resolves the memory range assigned to a value.
func (c *Context) Allocation(v *graph.Value) (model.MemoryRange, error) {
	return c.alloc.Allocation(v)
}

// Usage returns the total bytes the allocator assigned within a space.
func (c *Context) Usage(space model.MemorySpace) uint32 {
	return c.alloc.Usage(space)
}

// StaticAllocator is a simple bump allocator over the two memory spaces,
// provided for tests and the demo driver. Production models are allocated
// upstream by the liveness-aware allocator.
type StaticAllocator struct {
	ranges map[*graph.Value]model.MemoryRange
	usage  map[model.MemorySpace]uint32
}

// NewStaticAllocator returns an empty allocator.
func NewStaticAllocator() *StaticAllocator {
	return &StaticAllocator{
		ranges: make(map[*graph.Value]model.MemoryRange),
		usage:  make(map[model.MemorySpace]uint32),
	}
}

// Assign places v at the current end of the given space, 8-byte aligned, and
// returns the assigned range.
func (a *StaticAllocator) Assign(v *graph.Value, space model.MemorySpace) model.MemoryRange {
	start := uint32(model.Align(uint64(a.usage[space]), model.BodyAlign))
	size := v.Shape.Bytes(v.Type)
	rng := model.MemoryRange{Space: space, Elem: v.Type, Start: start, Size: size}
	a.ranges[v] = rng
	a.usage[space] = start + size
	return rng
}

// AssignSequence walks a compute sequence and places every output value:
// constants in the constants space, everything else in main memory.
func (a *StaticAllocator) AssignSequence(seq []graph.Node) {
	for _, n := range seq {
		space := model.SpaceMain
		if n.Opcode() == model.OpConstant {
			space = model.SpaceConstants
		}
		for _, v := range n.Outputs() {
			a.Assign(v, space)
		}
	}
}

// Allocation implements Allocator.
func (a *StaticAllocator) Allocation(v *graph.Value) (model.MemoryRange, error) {
	rng, ok := a.ranges[v]
	if !ok {
		op := model.Opcode(0)
		if v != nil && v.Owner != nil {
			op = v.Owner.Opcode()
		}
		return model.MemoryRange{}, &AllocationError{Op: op}
	}
	return rng, nil
}

// Usage implements Allocator.
func (a *StaticAllocator) Usage(space model.MemorySpace) uint32 {
	return a.usage[space]
}
