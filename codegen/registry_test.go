package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
)

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	alloc := NewStaticAllocator()

	in := graph.NewInput(model.Float32, model.Shape{4})
	bn := graph.NewBinary(model.BinaryAdd, in.Outputs()[0], in.Outputs()[0])
	alloc.AssignSequence([]graph.Node{in, bn})

	body, err := reg.Emit(bn, NewContext(alloc))
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, model.OpBinary, body.Opcode())
	assert.NotZero(t, body.Len())
}

func TestRegistryDisabledKindsProduceNothing(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	in := graph.NewInput(model.Float32, model.Shape{4})

	// Placeholder kinds are disabled out of the box.
	body, err := reg.Emit(in, NewContext(NewStaticAllocator()))
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestRegistryUnsupportedKind(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register(model.OpBinary, func(graph.Node, *Context) (*Body, error) {
		return NewBody(model.OpBinary), nil
	})
	// Leave reduce neither registered nor disabled.
	reg2 := &Registry{
		emitters: map[model.Opcode]Emitter{},
		disabled: map[model.Opcode]struct{}{},
	}
	in := graph.NewInput(model.Float32, model.Shape{4})
	rn := graph.NewReduce(model.ReduceSum, in.Outputs()[0], []uint32{0}, 0, false)

	_, err := reg2.Emit(rn, NewContext(NewStaticAllocator()))
	var unsupported *UnsupportedOpError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, model.OpReduce, unsupported.Op)
}

func TestRegistryLastWriteWins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	called := 0
	reg.Register(model.OpBinary, func(graph.Node, *Context) (*Body, error) {
		t.Fatal("replaced emitter must not run")
		return nil, nil
	})
	reg.Register(model.OpBinary, func(graph.Node, *Context) (*Body, error) {
		called++
		return NewBody(model.OpBinary), nil
	})

	in := graph.NewInput(model.Float32, model.Shape{4})
	bn := graph.NewBinary(model.BinaryAdd, in.Outputs()[0], in.Outputs()[0])
	_, err := reg.Emit(bn, NewContext(NewStaticAllocator()))
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestRegistryRegisterClearsDisable(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Disable(model.OpBinary)
	assert.True(t, reg.Disabled(model.OpBinary))
	reg.Register(model.OpBinary, func(graph.Node, *Context) (*Body, error) {
		return NewBody(model.OpBinary), nil
	})
	assert.False(t, reg.Disabled(model.OpBinary))
}

func TestAllocationMissFailsFast(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	in := graph.NewInput(model.Float32, model.Shape{4})
	bn := graph.NewBinary(model.BinaryAdd, in.Outputs()[0], in.Outputs()[0])

	// Empty allocator: the binary's operands were never placed.
	_, err := reg.Emit(bn, NewContext(NewStaticAllocator()))
	var miss *AllocationError
	require.ErrorAs(t, err, &miss)
}
