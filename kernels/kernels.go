// Package kernels implements the numeric operations dispatched by the
// bytecode interpreter.
//
// Every kernel is generic over the element type tag carried in the operand's
// address descriptor; raw bytes are viewed as the tagged type rather than
// reinterpreted as a single hardcoded one. Kernels operate in place on
// caller-provided buffers with zero allocations and report arithmetic
// failures as typed errors so a hosting application can name the failing op.
package kernels

import (
	"errors"
	"math"
	"unsafe"

	"github.com/sbl8/tern/model"
)

// ErrDivideByZero is returned for integer division by zero. Float division
// follows IEEE semantics and never fails.
var ErrDivideByZero = errors.New("kernels: integer division by zero")

// ErrBadElemType is returned for an element type outside the closed set.
var ErrBadElemType = errors.New("kernels: unknown element type")

// ErrBadStrides is returned when a stride walk addresses outside an operand
// buffer.
var ErrBadStrides = errors.New("kernels: strides address outside operand buffer")

type number interface {
	~float32 | ~int32 | ~uint8 | ~int8
}

// view reinterprets b as a slice of n elements of type T. The caller has
// already bounds-checked b against n.
func view[T number](b []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Binary applies an elementwise binary op over n elements of type t.
func Binary(op model.BinaryOp, t model.ElemType, lhs, rhs, out []byte, n int) error {
	if sz := n * int(t.Size()); len(lhs) < sz || len(rhs) < sz || len(out) < sz {
		return errors.New("kernels: binary operand buffer too small")
	}
	switch t {
	case model.Float32:
		return binaryT(op, view[float32](lhs, n), view[float32](rhs, n), view[float32](out, n))
	case model.Int32:
		return binaryT(op, view[int32](lhs, n), view[int32](rhs, n), view[int32](out, n))
	case model.Uint8:
		return binaryT(op, view[uint8](lhs, n), view[uint8](rhs, n), view[uint8](out, n))
	case model.Int8:
		return binaryT(op, view[int8](lhs, n), view[int8](rhs, n), view[int8](out, n))
	}
	return ErrBadElemType
}

func binaryT[T number](op model.BinaryOp, lhs, rhs, out []T) error {
	switch op {
	case model.BinaryAdd:
		for i := range out {
			out[i] = lhs[i] + rhs[i]
		}
	case model.BinarySub:
		for i := range out {
			out[i] = lhs[i] - rhs[i]
		}
	case model.BinaryMul:
		for i := range out {
			out[i] = lhs[i] * rhs[i]
		}
	case model.BinaryDiv:
		isFloat := T(1)/T(2) != 0 // integer division truncates to zero
		for i := range out {
			if rhs[i] == 0 && !isFloat {
				return ErrDivideByZero
			}
			out[i] = lhs[i] / rhs[i]
		}
	case model.BinaryMin:
		for i := range out {
			out[i] = min(lhs[i], rhs[i])
		}
	case model.BinaryMax:
		for i := range out {
			out[i] = max(lhs[i], rhs[i])
		}
	default:
		return errors.New("kernels: unknown binary op")
	}
	return nil
}

// Unary applies an elementwise unary op over n elements of type t.
func Unary(op model.UnaryOp, t model.ElemType, in, out []byte, n int) error {
	if sz := n * int(t.Size()); len(in) < sz || len(out) < sz {
		return errors.New("kernels: unary operand buffer too small")
	}
	switch t {
	case model.Float32:
		return unaryT(op, view[float32](in, n), view[float32](out, n))
	case model.Int32:
		return unaryT(op, view[int32](in, n), view[int32](out, n))
	case model.Uint8:
		return unaryT(op, view[uint8](in, n), view[uint8](out, n))
	case model.Int8:
		return unaryT(op, view[int8](in, n), view[int8](out, n))
	}
	return ErrBadElemType
}

func unaryT[T number](op model.UnaryOp, in, out []T) error {
	switch op {
	case model.UnaryAbs:
		for i := range out {
			v := in[i]
			if v < 0 {
				v = -v
			}
			out[i] = v
		}
	case model.UnaryNeg:
		for i := range out {
			out[i] = -in[i]
		}
	case model.UnarySqrt:
		for i := range out {
			out[i] = T(math.Sqrt(float64(in[i])))
		}
	case model.UnaryExp:
		for i := range out {
			out[i] = T(math.Exp(float64(in[i])))
		}
	default:
		return errors.New("kernels: unknown unary op")
	}
	return nil
}

// Dequantize converts n quantized elements of type t to float32 with an
// affine zero point and scale.
func Dequantize(t model.ElemType, in, out []byte, zeroPoint int32, scale float32, n int) error {
	if len(in) < n*int(t.Size()) || len(out) < n*4 {
		return errors.New("kernels: dequantize operand buffer too small")
	}
	dst := view[float32](out, n)
	switch t {
	case model.Uint8:
		src := view[uint8](in, n)
		for i := range dst {
			dst[i] = float32(int32(src[i])-zeroPoint) * scale
		}
	case model.Int8:
		src := view[int8](in, n)
		for i := range dst {
			dst[i] = float32(int32(src[i])-zeroPoint) * scale
		}
	default:
		return ErrBadElemType
	}
	return nil
}
