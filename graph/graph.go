// Package graph defines the read-only compute-graph surface consumed by code
// generation.
//
// The graph itself - construction, optimization passes, memory allocation
// and scheduling - lives upstream. Code generation only ever sees an ordered
// compute sequence of nodes, each exposing an operator kind, input
// connections and output values. Nodes are owned by the graph and must be
// treated as immutable here.
package graph

import (
	"fmt"

	"github.com/sbl8/tern/model"
)

// Value is a tensor-producing output slot of a node. The upstream allocator
// assigns each value a byte range inside a memory space; code generation
// resolves values through that mapping and never allocates itself.
type Value struct {
	Owner Node
	Type  model.ElemType
	Shape model.Shape
}

// Input is a connection from a node to the value it consumes.
type Input struct {
	Value *Value
}

// Node is one step of the compute sequence.
type Node interface {
	Opcode() model.Opcode
	Inputs() []*Input
	Outputs() []*Value
}

// base carries the connection bookkeeping shared by all concrete nodes.
type base struct {
	inputs  []*Input
	outputs []*Value
}

func (b *base) Inputs() []*Input  { return b.inputs }
func (b *base) Outputs() []*Value { return b.outputs }

func (b *base) addOutput(owner Node, t model.ElemType, shape model.Shape) *Value {
	v := &Value{Owner: owner, Type: t, Shape: shape.Clone()}
	b.outputs = append(b.outputs, v)
	return v
}

func (b *base) addInput(v *Value) *Input {
	in := &Input{Value: v}
	b.inputs = append(b.inputs, in)
	return in
}

// InputNode is a model input placeholder.
type InputNode struct{ base }

// NewInput creates an input placeholder producing one value.
func NewInput(t model.ElemType, shape model.Shape) *InputNode {
	n := &InputNode{}
	n.addOutput(n, t, shape)
	return n
}

func (*InputNode) Opcode() model.Opcode { return model.OpInput }

// OutputNode is a model output placeholder consuming one value.
type OutputNode struct{ base }

// NewOutput creates an output placeholder for v.
func NewOutput(v *Value) *OutputNode {
	n := &OutputNode{}
	n.addInput(v)
	return n
}

func (*OutputNode) Opcode() model.Opcode { return model.OpOutput }

// Constant holds raw little-endian tensor data baked into the model's
// constants region.
type Constant struct {
	base
	Data []byte
}

// NewConstant creates a constant node owning a copy of data.
func NewConstant(t model.ElemType, shape model.Shape, data []byte) *Constant {
	n := &Constant{Data: append([]byte(nil), data...)}
	n.addOutput(n, t, shape)
	return n
}

func (*Constant) Opcode() model.Opcode { return model.OpConstant }

// Binary is an elementwise binary node over two same-shape operands.
type Binary struct {
	base
	Op model.BinaryOp
}

// NewBinary connects a and b to a new binary node producing one value.
func NewBinary(op model.BinaryOp, a, b *Value) *Binary {
	n := &Binary{Op: op}
	n.addInput(a)
	n.addInput(b)
	n.addOutput(n, a.Type, a.Shape)
	return n
}

func (*Binary) Opcode() model.Opcode { return model.OpBinary }

// Unary is an elementwise unary node.
type Unary struct {
	base
	Op model.UnaryOp
}

// NewUnary connects v to a new unary node producing one value.
func NewUnary(op model.UnaryOp, v *Value) *Unary {
	n := &Unary{Op: op}
	n.addInput(v)
	n.addOutput(n, v.Type, v.Shape)
	return n
}

func (*Unary) Opcode() model.Opcode { return model.OpUnary }

// Reduce reduces the input over the given axes.
type Reduce struct {
	base
	Op       model.ReduceOp
	Axes     []uint32
	Init     float32
	KeepDims bool
}

// NewReduce connects v to a new reduce node. The output shape drops the
// reduced axes, or keeps them with dimension 1 when keepDims is set.
func NewReduce(op model.ReduceOp, v *Value, axes []uint32, init float32, keepDims bool) *Reduce {
	n := &Reduce{Op: op, Axes: append([]uint32(nil), axes...), Init: init, KeepDims: keepDims}
	n.addInput(v)
	n.addOutput(n, v.Type, ReducedShape(v.Shape, axes, keepDims))
	return n
}

func (*Reduce) Opcode() model.Opcode { return model.OpReduce }

// ReducedShape computes the output shape of a reduction.
func ReducedShape(in model.Shape, axes []uint32, keepDims bool) model.Shape {
	reduced := make(map[uint32]bool, len(axes))
	for _, a := range axes {
		reduced[a] = true
	}
	out := make(model.Shape, 0, len(in))
	for i, d := range in {
		if reduced[uint32(i)] {
			if keepDims {
				out = append(out, 1)
			}
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = model.Shape{1}
	}
	return out
}

// Dequantize converts quantized uint8/int8 data to float32 using an affine
// quantization parameter pair derived by the importer.
type Dequantize struct {
	base
	ZeroPoint int32
	Scale     float32
}

// NewDequantize connects v to a new dequantize node producing float32.
func NewDequantize(v *Value, zeroPoint int32, scale float32) *Dequantize {
	n := &Dequantize{ZeroPoint: zeroPoint, Scale: scale}
	n.addInput(v)
	n.addOutput(n, model.Float32, v.Shape)
	return n
}

func (*Dequantize) Opcode() model.Opcode { return model.OpDequantize }

// ValidateSequence checks that every input connection in the compute
// sequence refers to a value produced by an earlier node. A violation is an
// upstream scheduler bug and compilation must not proceed.
func ValidateSequence(seq []Node) error {
	produced := make(map[*Value]bool)
	for i, n := range seq {
		for _, in := range n.Inputs() {
			if in.Value == nil {
				return fmt.Errorf("node %d (%s): disconnected input", i, n.Opcode())
			}
			if !produced[in.Value] {
				return fmt.Errorf("node %d (%s): input value not produced by an earlier node", i, n.Opcode())
			}
		}
		for _, v := range n.Outputs() {
			produced[v] = true
		}
	}
	return nil
}
