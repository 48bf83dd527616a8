package codegen

import (
	"bytes"
	"encoding/binary"

	"github.com/sbl8/tern/model"
)

// Body is the serialized form of one node: the operator kind plus a
// variable-length instruction stream. Bodies are produced once per node and
// immutable afterward; their size is only known after encoding.
type Body struct {
	opcode model.Opcode
	buf    bytes.Buffer
}

// NewBody starts an empty instruction body for the given operator kind.
func NewBody(op model.Opcode) *Body {
	return &Body{opcode: op}
}

// Opcode returns the operator kind recorded in the node header.
func (b *Body) Opcode() model.Opcode { return b.opcode }

// Bytes returns the encoded instruction stream.
func (b *Body) Bytes() []byte { return b.buf.Bytes() }

// Len returns the unaligned encoded size.
func (b *Body) Len() int { return b.buf.Len() }

func (b *Body) instr(i model.Instr, fields ...any) {
	b.buf.WriteByte(byte(i))
	for _, f := range fields {
		// bytes.Buffer writes cannot fail.
		_ = binary.Write(&b.buf, binary.LittleEndian, f)
	}
}

// PushRange emits an address push for the given memory range.
func (b *Body) PushRange(rng model.MemoryRange) {
	b.instr(model.InstrPushRange, rng)
}

// PushScalar emits an immediate scalar push.
func (b *Body) PushScalar(v float32) {
	b.instr(model.InstrPushScalar, v)
}

// LoadShape emits a write of shape into shape register reg.
func (b *Body) LoadShape(reg uint8, shape model.Shape) {
	b.instr(model.InstrLoadShape, reg, uint32(len(shape)), []uint32(shape))
}

// LoadStride emits a write of strides into stride register reg.
func (b *Body) LoadStride(reg uint8, strides model.Shape) {
	b.instr(model.InstrLoadStride, reg, uint32(len(strides)), []uint32(strides))
}

// Binary emits an elementwise binary execute over shape register rshape.
func (b *Body) Binary(op model.BinaryOp, rshape uint8) {
	b.instr(model.InstrBinary, uint32(op), rshape)
}

// Unary emits an elementwise unary execute over shape register rshape.
func (b *Body) Unary(op model.UnaryOp, rshape uint8) {
	b.instr(model.InstrUnary, uint32(op), rshape)
}

// Reduce emits a reduction execute reading the four named registers.
func (b *Body) Reduce(op model.ReduceOp, keepDims bool, rshapeSrc, rshapeAxis, rstrideSrc, rstrideDest uint8) {
	kd := uint8(0)
	if keepDims {
		kd = 1
	}
	b.instr(model.InstrReduce, uint32(op), kd, rshapeSrc, rshapeAxis, rstrideSrc, rstrideDest)
}

// Dequantize emits an affine dequantize execute.
func (b *Body) Dequantize(zeroPoint int32, scale float32) {
	b.instr(model.InstrDequantize, zeroPoint, scale)
}
