package kernels

import (
	"errors"

	"github.com/sbl8/tern/model"
)

// Reduce folds the input tensor over the given axes.
//
// Offsets are computed from explicit element strides so the kernel works for
// any memory layout the allocator produced. The output must be pre-sized to
// the reduced shape; every output element starts at init and accumulates the
// covered input elements. Mean divides by the reduction count at the end.
func Reduce(op model.ReduceOp, t model.ElemType, init float32, in, out []byte,
	shape, axes, inStrides, outStrides model.Shape, keepDims bool) error {

	n := int(shape.Elements())
	outN := int(reducedElements(shape, axes))
	if len(in) < n*int(t.Size()) || len(out) < outN*int(t.Size()) {
		return errors.New("kernels: reduce operand buffer too small")
	}
	switch t {
	case model.Float32:
		return reduceT(op, float32(init), view[float32](in, n), view[float32](out, outN), shape, axes, inStrides, outStrides, keepDims)
	case model.Int32:
		return reduceT(op, int32(init), view[int32](in, n), view[int32](out, outN), shape, axes, inStrides, outStrides, keepDims)
	case model.Uint8:
		return reduceT(op, uint8(init), view[uint8](in, n), view[uint8](out, outN), shape, axes, inStrides, outStrides, keepDims)
	case model.Int8:
		return reduceT(op, int8(init), view[int8](in, n), view[int8](out, outN), shape, axes, inStrides, outStrides, keepDims)
	}
	return ErrBadElemType
}

func reducedElements(shape model.Shape, axes model.Shape) uint32 {
	reduced := axisSet(axes)
	n := uint32(1)
	for i, d := range shape {
		if !reduced[uint32(i)] {
			n *= d
		}
	}
	return n
}

func axisSet(axes model.Shape) map[uint32]bool {
	set := make(map[uint32]bool, len(axes))
	for _, a := range axes {
		set[a] = true
	}
	return set
}

func reduceT[T number](op model.ReduceOp, init T, in, out []T,
	shape, axes, inStrides, outStrides model.Shape, keepDims bool) error {

	if len(inStrides) != len(shape) {
		return errors.New("kernels: reduce stride rank mismatch")
	}
	reduced := axisSet(axes)
	reduceCount := uint32(1)
	for _, a := range axes {
		if int(a) >= len(shape) {
			return errors.New("kernels: reduce axis out of range")
		}
		reduceCount *= shape[a]
	}
	outRank := 0
	for i := range shape {
		if reduced[uint32(i)] {
			if keepDims {
				outRank++
			}
			continue
		}
		outRank++
	}
	if len(outStrides) < outRank {
		return errors.New("kernels: reduce output stride rank mismatch")
	}

	for i := range out {
		out[i] = init
	}

	apply := func(a, b T) T {
		switch op {
		case model.ReduceMin:
			return min(a, b)
		case model.ReduceMax:
			return max(a, b)
		default: // sum and mean accumulate
			return a + b
		}
	}

	// Odometer walk over the full input index space.
	coord := make([]uint32, len(shape))
	for {
		inOff := uint32(0)
		for i, c := range coord {
			inOff += c * inStrides[i]
		}
		outOff := uint32(0)
		j := 0
		for i, c := range coord {
			if reduced[uint32(i)] {
				if keepDims {
					j++ // reduced dim is 1; coordinate 0 contributes nothing
				}
				continue
			}
			outOff += c * outStrides[j]
			j++
		}
		// Strides arrive from instruction bodies and are untrusted.
		if int(inOff) >= len(in) || int(outOff) >= len(out) {
			return ErrBadStrides
		}
		out[outOff] = apply(out[outOff], in[inOff])

		// advance
		k := len(coord) - 1
		for ; k >= 0; k-- {
			coord[k]++
			if coord[k] < shape[k] {
				break
			}
			coord[k] = 0
		}
		if k < 0 {
			break
		}
	}

	if op == model.ReduceMean && reduceCount > 0 {
		for i := range out {
			out[i] = out[i] / T(reduceCount)
		}
	}
	return nil
}
