package codegen_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/tern/codegen"
	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
	"github.com/sbl8/tern/runtime"
)

// buildSequence returns a small allocated compute sequence: a quantized
// input is dequantized, biased by a constant, squared and mean-reduced.
func buildSequence(t *testing.T) ([]graph.Node, *codegen.StaticAllocator) {
	t.Helper()
	shape := model.Shape{2, 4}

	in := graph.NewInput(model.Uint8, shape)
	deq := graph.NewDequantize(in.Outputs()[0], 128, 0.5)
	bias := graph.NewConstant(model.Float32, shape, make([]byte, shape.Bytes(model.Float32)))
	add := graph.NewBinary(model.BinaryAdd, deq.Outputs()[0], bias.Outputs()[0])
	sq := graph.NewBinary(model.BinaryMul, add.Outputs()[0], add.Outputs()[0])
	mean := graph.NewReduce(model.ReduceMean, sq.Outputs()[0], []uint32{1}, 0, false)
	out := graph.NewOutput(mean.Outputs()[0])

	seq := []graph.Node{in, bias, deq, add, sq, mean, out}
	alloc := codegen.NewStaticAllocator()
	alloc.AssignSequence(seq)
	return seq, alloc
}

func generate(t *testing.T, seq []graph.Node, alloc codegen.Allocator, reg *codegen.Registry, opts codegen.Options) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, codegen.Generate(&buf, seq, alloc, reg, opts))
	return buf.Bytes()
}

func load(t *testing.T, data []byte) *runtime.Model {
	t.Helper()
	m, err := runtime.Load(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return m
}

func TestGenerateRoundTrip(t *testing.T) {
	t.Parallel()
	seq, alloc := buildSequence(t)
	data := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Target: 7, Paging: true})
	m := load(t, data)

	assert.EqualValues(t, model.Magic, m.Header.Identifier)
	assert.EqualValues(t, 7, m.Header.Target)
	assert.True(t, m.Header.Paged())
	assert.Equal(t, alloc.Usage(model.SpaceConstants), m.Header.Constants)
	assert.Equal(t, alloc.Usage(model.SpaceMain), m.Header.MainMem)

	// dequantize, add, mul, reduce; placeholders emit no bodies.
	require.EqualValues(t, 4, m.Header.Nodes)
	wantOps := []model.Opcode{model.OpDequantize, model.OpBinary, model.OpBinary, model.OpReduce}
	for i, nh := range m.NodeHeaders {
		assert.Equal(t, wantOps[i], nh.Opcode, "node %d", i)
	}

	require.Len(t, m.Inputs, 1)
	require.Len(t, m.InputShapes, 1)
	require.Len(t, m.Outputs, 1)
	assert.Equal(t, model.Shape{2, 4}, m.InputShapes[0])
	assert.Equal(t, model.Uint8, m.Inputs[0].Elem)
	assert.Equal(t, model.SpaceMain, m.Inputs[0].Space)

	wantIn, err := alloc.Allocation(seq[0].Outputs()[0])
	require.NoError(t, err)
	assert.Equal(t, wantIn, m.Inputs[0])
	wantOut, err := alloc.Allocation(seq[6].Inputs()[0].Value)
	require.NoError(t, err)
	assert.Equal(t, wantOut, m.Outputs[0])

	require.Len(t, m.Pages, 1)
	assert.Equal(t, model.PagePersistent, m.Pages[0].Type)
	assert.EqualValues(t, 0, m.Pages[0].Begin)
	assert.EqualValues(t, 3, m.Pages[0].End)
}

func TestGenerateBodiesAligned(t *testing.T) {
	t.Parallel()
	seq, alloc := buildSequence(t)
	data := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: true})
	m := load(t, data)

	// Recompute the file offset of the body region the same way the layout
	// defines it, then check every body start is 8-byte aligned.
	cursor := uint64(model.HeaderSize)
	cursor += uint64(len(m.Inputs)) * model.MemoryRangeSize
	for _, s := range m.InputShapes {
		cursor += s.WireSize()
	}
	cursor += uint64(len(m.Outputs)) * model.MemoryRangeSize
	cursor += uint64(m.Header.Constants)
	cursor += uint64(m.Header.Nodes) * model.NodeHeaderSize
	cursor += model.PageRegionSize(true)

	offset := model.Align(cursor, model.BodyAlign)
	for i, nh := range m.NodeHeaders {
		assert.Zerof(t, offset%model.BodyAlign, "node %d body at unaligned offset %d", i, offset)
		assert.Zerof(t, nh.BodySize%model.BodyAlign, "node %d body size %d not padded", i, nh.BodySize)
		offset += uint64(nh.BodySize)
	}
	assert.EqualValues(t, len(data), offset, "bodies must end at end of file")
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	seq, alloc := buildSequence(t)
	first := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: true})
	second := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: true})
	assert.Equal(t, first, second, "same inputs must produce identical files")
}

func TestGenerateUnpaged(t *testing.T) {
	t.Parallel()
	seq, alloc := buildSequence(t)
	data := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: false})
	m := load(t, data)
	assert.False(t, m.Header.Paged())
	assert.Empty(t, m.Pages)

	paged := generate(t, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: true})
	assert.Less(t, len(data), len(paged), "unpaged file must not carry the page region")
}

func TestGenerateDisableRemovesNodes(t *testing.T) {
	t.Parallel()
	seq, alloc := buildSequence(t)
	reg := codegen.NewRegistry()
	reg.Disable(model.OpReduce)
	data := generate(t, seq, alloc, reg, codegen.Options{Paging: true})
	m := load(t, data)

	require.EqualValues(t, 3, m.Header.Nodes)
	for _, nh := range m.NodeHeaders {
		assert.NotEqual(t, model.OpReduce, nh.Opcode)
	}
	// I/O and constants are untouched by the disable.
	assert.Len(t, m.Inputs, 1)
	assert.Len(t, m.Outputs, 1)
	assert.Equal(t, alloc.Usage(model.SpaceConstants), m.Header.Constants)
}

// mysteryNode has an operator kind no registry knows about.
type mysteryNode struct {
	out *graph.Value
}

func (n *mysteryNode) Opcode() model.Opcode    { return model.Opcode(99) }
func (n *mysteryNode) Inputs() []*graph.Input  { return nil }
func (n *mysteryNode) Outputs() []*graph.Value { return []*graph.Value{n.out} }

func TestGenerateUnsupportedWritesNothing(t *testing.T) {
	t.Parallel()
	n := &mysteryNode{}
	n.out = &graph.Value{Owner: n, Type: model.Float32, Shape: model.Shape{4}}
	seq := []graph.Node{n}
	alloc := codegen.NewStaticAllocator()
	alloc.AssignSequence(seq)

	var buf bytes.Buffer
	err := codegen.Generate(&buf, seq, alloc, codegen.NewRegistry(), codegen.Options{Paging: true})
	var unsupported *codegen.UnsupportedOpError
	require.ErrorAs(t, err, &unsupported)
	assert.Zero(t, buf.Len(), "a failed build must not reach the sink")
}

func TestGenerateRejectsBrokenSequence(t *testing.T) {
	t.Parallel()
	in := graph.NewInput(model.Float32, model.Shape{4})
	dangling := graph.NewUnary(model.UnaryAbs, in.Outputs()[0])
	// The unary's producer is missing from the sequence.
	seq := []graph.Node{dangling}
	alloc := codegen.NewStaticAllocator()
	alloc.AssignSequence(seq)

	var buf bytes.Buffer
	err := codegen.Generate(&buf, seq, alloc, codegen.NewRegistry(), codegen.Options{})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}
