package codegen

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
)

var log = commonlog.GetLogger("tern.codegen")

// Options selects per-build properties of the emitted model file.
type Options struct {
	// Target is the device identifier recorded in the header.
	Target uint32
	// Paging splits the body region into pages and emits the page table.
	Paging bool
}

// Generate serializes the compute sequence into a single model file on w.
//
// The whole file is staged in memory first: classification and body emission
// run over a virtual cursor, then one sequential write hands the finished
// layout to the sink. A failure of any kind (unsupported operator, missing
// allocation, page overflow) therefore aborts before a single byte reaches
// w, and a successful run is byte-identical for identical inputs.
func Generate(w io.Writer, seq []graph.Node, alloc Allocator, reg *Registry, opts Options) error {
	if err := graph.ValidateSequence(seq); err != nil {
		return fmt.Errorf("codegen: invalid compute sequence: %w", err)
	}

	ctx := NewContext(alloc)

	// Classify nodes by role in sequence order. Disabled kinds drop out of
	// the runtime node set but still contribute their I/O and constants.
	var (
		runtimeNodes []graph.Node
		inputs       []model.MemoryRange
		inputShapes  []model.Shape
		outputs      []model.MemoryRange
		constants    []*graph.Constant
	)
	for _, n := range seq {
		if !reg.Disabled(n.Opcode()) {
			runtimeNodes = append(runtimeNodes, n)
		}
		switch n.Opcode() {
		case model.OpInput:
			v := n.Outputs()[0]
			rng, err := ctx.Allocation(v)
			if err != nil {
				return err
			}
			inputs = append(inputs, rng)
			inputShapes = append(inputShapes, v.Shape.Clone())
		case model.OpOutput:
			rng, err := ctx.Allocation(n.Inputs()[0].Value)
			if err != nil {
				return err
			}
			outputs = append(outputs, rng)
		case model.OpConstant:
			constants = append(constants, n.(*graph.Constant))
		}
	}

	header := model.Header{
		Identifier: model.Magic,
		Version:    model.Version,
		Target:     opts.Target,
		Constants:  ctx.Usage(model.SpaceConstants),
		MainMem:    ctx.Usage(model.SpaceMain),
		Nodes:      uint32(len(runtimeNodes)),
		Inputs:     uint32(len(inputs)),
		Outputs:    uint32(len(outputs)),
	}
	if opts.Paging {
		header.Flags |= model.FlagPaging
	}

	constBlob, err := buildConstantBlob(ctx, constants)
	if err != nil {
		return err
	}

	// Virtual cursor up to the body region. Sizes of everything before the
	// bodies are fixed once the counts are known, so the region start is
	// computable before any body bytes exist.
	cursor := uint64(model.HeaderSize)
	cursor += uint64(len(inputs)) * model.MemoryRangeSize
	for _, s := range inputShapes {
		cursor += s.WireSize()
	}
	cursor += uint64(len(outputs)) * model.MemoryRangeSize
	cursor += uint64(len(constBlob))
	cursor += uint64(len(runtimeNodes)) * model.NodeHeaderSize
	cursor += model.PageRegionSize(opts.Paging)
	bodyStart := model.Align(cursor, model.BodyAlign)
	bodyPad := bodyStart - cursor

	// Emit every body into memory and measure it. Node header sizes include
	// the trailing padding that keeps the next body 8-byte aligned.
	var bodyRegion bytes.Buffer
	headers := make([]model.NodeHeader, 0, len(runtimeNodes))
	for _, n := range runtimeNodes {
		body, err := reg.Emit(n, ctx)
		if err != nil {
			return err
		}
		if body == nil {
			continue
		}
		raw := body.Bytes()
		padded := model.Align(uint64(len(raw)), model.BodyAlign)
		bodyRegion.Write(raw)
		bodyRegion.Write(make([]byte, padded-uint64(len(raw))))
		headers = append(headers, model.NodeHeader{
			Opcode:   body.Opcode(),
			BodySize: uint32(padded),
		})
	}
	header.Nodes = uint32(len(headers))

	var table model.PageTable
	var pages []model.MemoryPage
	if opts.Paging {
		table, pages, err = PlanPages(headers)
		if err != nil {
			return err
		}
		for _, p := range pages {
			log.Infof("page %d: %s nodes [%d,%d] offset %d size %d",
				p.Index, p.Type, p.Begin, p.End, p.Offset, p.Size)
		}
		log.Infof("body working buffer: %d B over %d pages", table.BodyBufferSize, table.NumPages)
	}
	log.Infof("constants %d B, main memory %d B, %d nodes", header.Constants, header.MainMem, header.Nodes)

	// Everything measured; stream the finished layout to the sink.
	out := &countingWriter{w: w}
	if err := model.WriteRecord(out, &header); err != nil {
		return err
	}
	for _, rng := range inputs {
		if err := model.WriteRecord(out, &rng); err != nil {
			return err
		}
	}
	for _, s := range inputShapes {
		if err := model.WriteShape(out, s); err != nil {
			return err
		}
	}
	for _, rng := range outputs {
		if err := model.WriteRecord(out, &rng); err != nil {
			return err
		}
	}
	if _, err := out.Write(constBlob); err != nil {
		return err
	}
	for _, nh := range headers {
		if err := model.WriteRecord(out, &nh); err != nil {
			return err
		}
	}
	if opts.Paging {
		if err := writePageRegion(out, table, pages); err != nil {
			return err
		}
	}
	if _, err := out.Write(make([]byte, bodyPad)); err != nil {
		return err
	}
	if _, err := out.Write(bodyRegion.Bytes()); err != nil {
		return err
	}

	if out.n != bodyStart+uint64(bodyRegion.Len()) {
		return fmt.Errorf("codegen: layout mismatch: wrote %d bytes, expected %d",
			out.n, bodyStart+uint64(bodyRegion.Len()))
	}
	return nil
}

// buildConstantBlob materializes the constants region: a buffer sized to the
// space's total usage with every constant copied to its assigned offset.
func buildConstantBlob(ctx *Context, constants []*graph.Constant) ([]byte, error) {
	blob := make([]byte, ctx.Usage(model.SpaceConstants))
	for _, c := range constants {
		rng, err := ctx.Allocation(c.Outputs()[0])
		if err != nil {
			return nil, err
		}
		if uint64(rng.Start)+uint64(len(c.Data)) > uint64(len(blob)) {
			return nil, fmt.Errorf("codegen: constant at %d+%d overruns constants region (%d B)",
				rng.Start, len(c.Data), len(blob))
		}
		copy(blob[rng.Start:], c.Data)
	}
	return blob, nil
}

// writePageRegion writes the page table followed by MaxPages record slots,
// zero-filling the unused tail so the region size is independent of the
// actual page count.
func writePageRegion(w io.Writer, table model.PageTable, pages []model.MemoryPage) error {
	if err := model.WriteRecord(w, &table); err != nil {
		return err
	}
	for _, p := range pages {
		if err := model.WriteRecord(w, &p); err != nil {
			return err
		}
	}
	for i := len(pages); i < model.MaxPages; i++ {
		if err := model.WriteRecord(w, &model.MemoryPage{}); err != nil {
			return err
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
