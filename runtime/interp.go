package runtime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/sbl8/tern/kernels"
	"github.com/sbl8/tern/model"
)

// operand is one entry of the interpreter's operand stack: either a resolved
// address (buffer view plus its descriptor) or an immediate scalar.
type operand struct {
	buf    []byte
	rng    model.MemoryRange
	scalar float32
	isBuf  bool
}

// Interpreter executes a loaded model. It is a register-based stack machine:
// instruction bodies push addresses and scalars onto the operand stack and
// load shapes and strides into small register files, then an executing
// instruction pops its operands and dispatches the matching kernel.
//
// The interpreter owns the model's main working memory. Set inputs, call
// Run, then read outputs; the same interpreter can run repeatedly.
type Interpreter struct {
	m       *Model
	working []byte

	shapeRegs  [model.NumRegs]model.Shape
	strideRegs [model.NumRegs]model.Shape
	stack      []operand
}

// NewInterpreter allocates working memory for the model.
func NewInterpreter(m *Model) (*Interpreter, error) {
	if m == nil {
		return nil, &BadModelError{Reason: "nil model"}
	}
	return &Interpreter{
		m:       m,
		working: make([]byte, m.Header.MainMem),
	}, nil
}

// SetInput copies data into input slot i's working-memory range.
func (it *Interpreter) SetInput(i int, data []byte) error {
	if i < 0 || i >= len(it.m.Inputs) {
		return fmt.Errorf("runtime: input index %d out of range", i)
	}
	rng := it.m.Inputs[i]
	if uint32(len(data)) != rng.Size {
		return &ShapeMismatchError{Shape: it.m.InputShapes[i], Elem: rng.Elem, Have: uint32(len(data))}
	}
	buf, err := it.resolve(rng)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// Output returns a copy of output slot i's bytes.
func (it *Interpreter) Output(i int) ([]byte, error) {
	if i < 0 || i >= len(it.m.Outputs) {
		return nil, fmt.Errorf("runtime: output index %d out of range", i)
	}
	buf, err := it.resolve(it.m.Outputs[i])
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf...), nil
}

// Run executes every node body in header order. Pages are made resident one
// at a time as execution crosses page boundaries.
func (it *Interpreter) Run() error {
	for i, nh := range it.m.NodeHeaders {
		body, err := it.m.Body(i)
		if err != nil {
			return &NodeError{Index: i, Opcode: nh.Opcode, Err: err}
		}
		if err := it.exec(body); err != nil {
			return &NodeError{Index: i, Opcode: nh.Opcode, Err: err}
		}
	}
	return nil
}

// resolve maps a memory range to its backing bytes: the read-only constants
// blob or the interpreter's working memory.
func (it *Interpreter) resolve(rng model.MemoryRange) ([]byte, error) {
	var space []byte
	switch rng.Space {
	case model.SpaceConstants:
		space = it.m.Constants
	case model.SpaceMain:
		space = it.working
	default:
		return nil, &AddressError{Range: rng}
	}
	end := uint64(rng.Start) + uint64(rng.Size)
	if end > uint64(len(space)) {
		return nil, &AddressError{Range: rng}
	}
	return space[rng.Start:end], nil
}

func (it *Interpreter) push(op operand) {
	it.stack = append(it.stack, op)
}

func (it *Interpreter) pop(in model.Instr) (operand, error) {
	if len(it.stack) == 0 {
		return operand{}, &StackUnderflowError{Instr: in}
	}
	op := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	return op, nil
}

func (it *Interpreter) popBuf(in model.Instr) (operand, error) {
	op, err := it.pop(in)
	if err != nil {
		return operand{}, err
	}
	if !op.isBuf {
		return operand{}, fmt.Errorf("runtime: instruction %d expected an address operand", in)
	}
	return op, nil
}

func (it *Interpreter) shapeReg(reg uint8) (model.Shape, error) {
	if reg >= model.NumRegs {
		return nil, &BadRegisterError{Reg: reg}
	}
	return it.shapeRegs[reg], nil
}

func (it *Interpreter) strideReg(reg uint8) (model.Shape, error) {
	if reg >= model.NumRegs {
		return nil, &BadRegisterError{Reg: reg}
	}
	return it.strideRegs[reg], nil
}

// exec interprets one instruction body. Trailing alignment padding decodes
// as instruction 0 and ends the stream.
func (it *Interpreter) exec(body []byte) error {
	r := bytes.NewReader(body)
	for {
		b, err := r.ReadByte()
		if err == io.EOF || (err == nil && b == 0) {
			it.stack = it.stack[:0]
			return nil
		}
		if err != nil {
			return err
		}
		if err := it.visit(model.Instr(b), r); err != nil {
			return err
		}
	}
}

func (it *Interpreter) visit(in model.Instr, r *bytes.Reader) error {
	switch in {
	case model.InstrPushRange:
		var rng model.MemoryRange
		if err := model.ReadRecord(r, &rng); err != nil {
			return err
		}
		buf, err := it.resolve(rng)
		if err != nil {
			return err
		}
		it.push(operand{buf: buf, rng: rng, isBuf: true})
		return nil

	case model.InstrPushScalar:
		var v float32
		if err := model.ReadRecord(r, &v); err != nil {
			return err
		}
		it.push(operand{scalar: v})
		return nil

	case model.InstrLoadShape, model.InstrLoadStride:
		var reg uint8
		if err := model.ReadRecord(r, &reg); err != nil {
			return err
		}
		if reg >= model.NumRegs {
			return &BadRegisterError{Reg: reg}
		}
		s, err := model.ReadShape(r)
		if err != nil {
			return err
		}
		if in == model.InstrLoadShape {
			it.shapeRegs[reg] = s
		} else {
			it.strideRegs[reg] = s
		}
		return nil

	case model.InstrBinary:
		return it.visitBinary(r)
	case model.InstrUnary:
		return it.visitUnary(r)
	case model.InstrReduce:
		return it.visitReduce(r)
	case model.InstrDequantize:
		return it.visitDequantize(r)
	}
	return fmt.Errorf("runtime: unknown instruction %d", in)
}

// checkOperand verifies an address operand covers the shape in its tagged
// element type and, when want is tagged, that the types agree.
func checkOperand(op operand, shape model.Shape, want model.ElemType) error {
	if op.rng.Elem != want {
		return &TypeMismatchError{Want: want, Got: op.rng.Elem}
	}
	if shape.Bytes(op.rng.Elem) > op.rng.Size {
		return &ShapeMismatchError{Shape: shape, Elem: op.rng.Elem, Have: op.rng.Size}
	}
	return nil
}

func (it *Interpreter) visitBinary(r *bytes.Reader) error {
	var op uint32
	var rshape uint8
	if err := model.ReadRecord(r, &op); err != nil {
		return err
	}
	if err := model.ReadRecord(r, &rshape); err != nil {
		return err
	}
	out, err := it.popBuf(model.InstrBinary)
	if err != nil {
		return err
	}
	rhs, err := it.popBuf(model.InstrBinary)
	if err != nil {
		return err
	}
	lhs, err := it.popBuf(model.InstrBinary)
	if err != nil {
		return err
	}
	shape, err := it.shapeReg(rshape)
	if err != nil {
		return err
	}
	elem := lhs.rng.Elem
	for _, o := range []operand{lhs, rhs, out} {
		if err := checkOperand(o, shape, elem); err != nil {
			return err
		}
	}
	return kernels.Binary(model.BinaryOp(op), elem, lhs.buf, rhs.buf, out.buf, int(shape.Elements()))
}

func (it *Interpreter) visitUnary(r *bytes.Reader) error {
	var op uint32
	var rshape uint8
	if err := model.ReadRecord(r, &op); err != nil {
		return err
	}
	if err := model.ReadRecord(r, &rshape); err != nil {
		return err
	}
	out, err := it.popBuf(model.InstrUnary)
	if err != nil {
		return err
	}
	in, err := it.popBuf(model.InstrUnary)
	if err != nil {
		return err
	}
	shape, err := it.shapeReg(rshape)
	if err != nil {
		return err
	}
	elem := in.rng.Elem
	if err := checkOperand(in, shape, elem); err != nil {
		return err
	}
	if err := checkOperand(out, shape, elem); err != nil {
		return err
	}
	return kernels.Unary(model.UnaryOp(op), elem, in.buf, out.buf, int(shape.Elements()))
}

func (it *Interpreter) visitReduce(r *bytes.Reader) error {
	var op uint32
	var keepDims, rshapeSrc, rshapeAxis, rstrideSrc, rstrideDest uint8
	for _, f := range []any{&op, &keepDims, &rshapeSrc, &rshapeAxis, &rstrideSrc, &rstrideDest} {
		if err := model.ReadRecord(r, f); err != nil {
			return err
		}
	}
	init, err := it.pop(model.InstrReduce)
	if err != nil {
		return err
	}
	out, err := it.popBuf(model.InstrReduce)
	if err != nil {
		return err
	}
	in, err := it.popBuf(model.InstrReduce)
	if err != nil {
		return err
	}
	shape, err := it.shapeReg(rshapeSrc)
	if err != nil {
		return err
	}
	axes, err := it.shapeReg(rshapeAxis)
	if err != nil {
		return err
	}
	inStrides, err := it.strideReg(rstrideSrc)
	if err != nil {
		return err
	}
	outStrides, err := it.strideReg(rstrideDest)
	if err != nil {
		return err
	}
	elem := in.rng.Elem
	if err := checkOperand(in, shape, elem); err != nil {
		return err
	}
	if out.rng.Elem != elem {
		return &TypeMismatchError{Want: elem, Got: out.rng.Elem}
	}
	return kernels.Reduce(model.ReduceOp(op), elem, init.scalar, in.buf, out.buf,
		shape, axes, inStrides, outStrides, keepDims != 0)
}

func (it *Interpreter) visitDequantize(r *bytes.Reader) error {
	var zeroPoint int32
	var scale float32
	if err := model.ReadRecord(r, &zeroPoint); err != nil {
		return err
	}
	if err := model.ReadRecord(r, &scale); err != nil {
		return err
	}
	out, err := it.popBuf(model.InstrDequantize)
	if err != nil {
		return err
	}
	in, err := it.popBuf(model.InstrDequantize)
	if err != nil {
		return err
	}
	if out.rng.Elem != model.Float32 {
		return &TypeMismatchError{Want: model.Float32, Got: out.rng.Elem}
	}
	n := int(out.rng.Size / model.Float32.Size())
	if uint32(n)*in.rng.Elem.Size() > in.rng.Size {
		return &ShapeMismatchError{Shape: model.Shape{uint32(n)}, Elem: in.rng.Elem, Have: in.rng.Size}
	}
	return kernels.Dequantize(in.rng.Elem, in.buf, out.buf, zeroPoint, scale, n)
}

// Float32s reinterprets a little-endian byte buffer as float32 values,
// convenience for hosts reading outputs.
func Float32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Float32Bytes encodes float32 values little-endian, convenience for hosts
// filling inputs.
func Float32Bytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
