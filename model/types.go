// Package model defines the tern binary model format.
//
// A model file is the self-contained artifact produced by codegen and
// consumed by the runtime loader: header, I/O descriptors, constant blob,
// node headers, optional page table, then the 8-byte aligned instruction
// body region. Every record here is a write-once wire structure encoded
// little-endian; the runtime only ever reads a model back, never mutates it.
//
// This package is the shared vocabulary between compile time and run time:
// operator kinds, element types, memory spaces and shapes appear both in
// graph nodes and inside serialized instruction bodies, so they live in the
// format package rather than in either side.
package model

import "fmt"

// Opcode identifies a node's runtime behavior.
type Opcode uint32

const (
	OpInput Opcode = iota
	OpOutput
	OpConstant
	OpBinary
	OpUnary
	OpReduce
	OpDequantize
)

var opcodeNames = map[Opcode]string{
	OpInput:      "input",
	OpOutput:     "output",
	OpConstant:   "constant",
	OpBinary:     "binary",
	OpUnary:      "unary",
	OpReduce:     "reduce",
	OpDequantize: "dequantize",
}

// String returns the lower-case op name used in target descriptors and logs.
func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", uint32(op))
}

// OpcodeByName resolves a target-descriptor op name back to its tag.
func OpcodeByName(name string) (Opcode, bool) {
	for op, s := range opcodeNames {
		if s == name {
			return op, true
		}
	}
	return 0, false
}

// ElemType tags the numeric element type of a tensor. The set is closed:
// kernels dispatch over this tag instead of reinterpreting raw bytes as a
// single hardcoded type.
type ElemType uint32

const (
	Float32 ElemType = iota
	Int32
	Uint8
	Int8
)

// Size returns the byte size of one element.
func (t ElemType) Size() uint32 {
	switch t {
	case Float32, Int32:
		return 4
	default:
		return 1
	}
}

func (t ElemType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	}
	return fmt.Sprintf("elemtype(%d)", uint32(t))
}

// MemorySpace is a logical partition within which byte offsets are assigned
// independently by the upstream allocator.
type MemorySpace uint32

const (
	SpaceConstants MemorySpace = iota
	SpaceMain
)

func (s MemorySpace) String() string {
	switch s {
	case SpaceConstants:
		return "constants"
	case SpaceMain:
		return "main"
	}
	return fmt.Sprintf("space(%d)", uint32(s))
}

// BinaryOp selects the elementwise binary operation inside a binary body.
type BinaryOp uint32

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMin
	BinaryMax
)

// UnaryOp selects the elementwise unary operation inside a unary body.
type UnaryOp uint32

const (
	UnaryAbs UnaryOp = iota
	UnaryNeg
	UnarySqrt
	UnaryExp
)

// ReduceOp selects the reduction inside a reduce body.
type ReduceOp uint32

const (
	ReduceMean ReduceOp = iota
	ReduceMin
	ReduceMax
	ReduceSum
)

// Shape holds tensor dimensions, outermost first. Rank is variable; on the
// wire a shape is a rank count followed by that many uint32 dims.
type Shape []uint32

// Elements returns the total element count of the shape.
func (s Shape) Elements() uint32 {
	n := uint32(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Bytes returns the byte size of a tensor of this shape and element type.
func (s Shape) Bytes(t ElemType) uint32 {
	return s.Elements() * t.Size()
}

// DefaultStrides computes row-major strides in elements.
func (s Shape) DefaultStrides() Shape {
	strides := make(Shape, len(s))
	acc := uint32(1)
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}
