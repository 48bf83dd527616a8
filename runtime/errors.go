package runtime

import (
	"fmt"

	"github.com/sbl8/tern/model"
)

// BadModelError reports a file the loader refuses to parse.
type BadModelError struct {
	Reason string
}

func (e *BadModelError) Error() string {
	return "runtime: bad model: " + e.Reason
}

// StackUnderflowError reports an op that popped more operands than its body
// pushed.
type StackUnderflowError struct {
	Instr model.Instr
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("runtime: operand stack underflow in instruction %d", e.Instr)
}

// BadRegisterError reports a register id outside the register files.
type BadRegisterError struct {
	Reg uint8
}

func (e *BadRegisterError) Error() string {
	return fmt.Sprintf("runtime: register %d out of range (max %d)", e.Reg, model.NumRegs-1)
}

// AddressError reports a memory range that does not fit its memory space.
type AddressError struct {
	Range model.MemoryRange
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("runtime: range [%d,%d) exceeds %s space",
		e.Range.Start, e.Range.Start+e.Range.Size, e.Range.Space)
}

// ShapeMismatchError reports operand buffers too small for the shape an op
// executes over.
type ShapeMismatchError struct {
	Shape model.Shape
	Elem  model.ElemType
	Have  uint32
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("runtime: shape %v of %s needs %d B, operand has %d B",
		[]uint32(e.Shape), e.Elem, e.Shape.Bytes(e.Elem), e.Have)
}

// TypeMismatchError reports operands whose element type tags disagree.
type TypeMismatchError struct {
	Want, Got model.ElemType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("runtime: operand element type %s, expected %s", e.Got, e.Want)
}

// NodeError wraps any execution failure with the node that raised it, so a
// hosting application can report the specific failing op.
type NodeError struct {
	Index  int
	Opcode model.Opcode
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.Index, e.Opcode, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
