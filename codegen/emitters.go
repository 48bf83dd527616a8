package codegen

import (
	"fmt"

	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
)

// builtinEmitters is the fixed table NewRegistry populates from. Targets
// overlay this with Register/Disable calls.
var builtinEmitters = map[model.Opcode]Emitter{
	model.OpBinary:     emitBinary,
	model.OpUnary:      emitUnary,
	model.OpReduce:     emitReduce,
	model.OpDequantize: emitDequantize,
}

// Shape and stride register assignments used by the built-in emitters.
// Registers persist across nodes, so consecutive nodes sharing a shape
// simply skip the redundant load; the built-ins reload unconditionally.
const (
	regShapeMain uint8 = iota
	regShapeAxis
	regStrideSrc
	regStrideDest
)

func operandRange(ctx *Context, v *graph.Value) (model.MemoryRange, error) {
	rng, err := ctx.Allocation(v)
	if err != nil {
		return model.MemoryRange{}, err
	}
	return rng, nil
}

func emitBinary(n graph.Node, ctx *Context) (*Body, error) {
	bn, ok := n.(*graph.Binary)
	if !ok {
		return nil, fmt.Errorf("codegen: binary emitter got %T", n)
	}
	lhs, err := operandRange(ctx, bn.Inputs()[0].Value)
	if err != nil {
		return nil, err
	}
	rhs, err := operandRange(ctx, bn.Inputs()[1].Value)
	if err != nil {
		return nil, err
	}
	out, err := operandRange(ctx, bn.Outputs()[0])
	if err != nil {
		return nil, err
	}

	b := NewBody(model.OpBinary)
	b.PushRange(lhs)
	b.PushRange(rhs)
	b.PushRange(out)
	b.LoadShape(regShapeMain, bn.Outputs()[0].Shape)
	b.Binary(bn.Op, regShapeMain)
	return b, nil
}

func emitUnary(n graph.Node, ctx *Context) (*Body, error) {
	un, ok := n.(*graph.Unary)
	if !ok {
		return nil, fmt.Errorf("codegen: unary emitter got %T", n)
	}
	in, err := operandRange(ctx, un.Inputs()[0].Value)
	if err != nil {
		return nil, err
	}
	out, err := operandRange(ctx, un.Outputs()[0])
	if err != nil {
		return nil, err
	}

	b := NewBody(model.OpUnary)
	b.PushRange(in)
	b.PushRange(out)
	b.LoadShape(regShapeMain, un.Outputs()[0].Shape)
	b.Unary(un.Op, regShapeMain)
	return b, nil
}

func emitReduce(n graph.Node, ctx *Context) (*Body, error) {
	rn, ok := n.(*graph.Reduce)
	if !ok {
		return nil, fmt.Errorf("codegen: reduce emitter got %T", n)
	}
	src := rn.Inputs()[0].Value
	dst := rn.Outputs()[0]
	in, err := operandRange(ctx, src)
	if err != nil {
		return nil, err
	}
	out, err := operandRange(ctx, dst)
	if err != nil {
		return nil, err
	}

	b := NewBody(model.OpReduce)
	b.PushRange(in)
	b.PushRange(out)
	b.PushScalar(rn.Init)
	b.LoadShape(regShapeMain, src.Shape)
	b.LoadShape(regShapeAxis, model.Shape(rn.Axes))
	b.LoadStride(regStrideSrc, src.Shape.DefaultStrides())
	b.LoadStride(regStrideDest, dst.Shape.DefaultStrides())
	b.Reduce(rn.Op, rn.KeepDims, regShapeMain, regShapeAxis, regStrideSrc, regStrideDest)
	return b, nil
}

func emitDequantize(n graph.Node, ctx *Context) (*Body, error) {
	dn, ok := n.(*graph.Dequantize)
	if !ok {
		return nil, fmt.Errorf("codegen: dequantize emitter got %T", n)
	}
	in, err := operandRange(ctx, dn.Inputs()[0].Value)
	if err != nil {
		return nil, err
	}
	out, err := operandRange(ctx, dn.Outputs()[0])
	if err != nil {
		return nil, err
	}

	b := NewBody(model.OpDequantize)
	b.PushRange(in)
	b.PushRange(out)
	b.Dequantize(dn.ZeroPoint, dn.Scale)
	return b, nil
}
