package model

// Instr is a one-byte operation inside an instruction body. A body is a
// short stack-machine program: operand pushes and register loads followed by
// one executing instruction. The interpreter pops addresses and scalars from
// its operand stack and reads shapes and strides from small register files,
// so several instructions can share a shape without re-encoding it.
//
// Body wire grammar, little endian after each instruction byte:
//
//	InstrPushRange   MemoryRange (16 bytes); resolves and pushes an address
//	InstrPushScalar  float32 immediate
//	InstrLoadShape   reg uint8, rank uint32, rank x uint32 dims
//	InstrLoadStride  reg uint8, rank uint32, rank x uint32 strides
//	InstrBinary      BinaryOp uint32, shape reg uint8; pops out, rhs, lhs
//	InstrUnary       UnaryOp uint32, shape reg uint8; pops out, in
//	InstrReduce      ReduceOp uint32, keepDims uint8, shape-src reg uint8,
//	                 shape-axis reg uint8, stride-src reg uint8,
//	                 stride-dest reg uint8; pops init scalar, out, in
//	InstrDequantize  zero point int32, scale float32; pops out, in
type Instr uint8

const (
	InstrPushRange Instr = iota + 1
	InstrPushScalar
	InstrLoadShape
	InstrLoadStride
	InstrBinary
	InstrUnary
	InstrReduce
	InstrDequantize
)

// NumRegs is the size of each of the shape and stride register files.
// Register ids embedded in bodies must be below this.
const NumRegs = 16
