// terninfo inspects a tern model file: header, I/O descriptors, node headers
// and page layout, as human-readable text or a canonical CBOR summary for
// tooling.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/tliron/commonlog/simple"

	"github.com/sbl8/tern/runtime"
)

// summary is the machine-readable dump. Canonical CBOR keeps the encoding
// deterministic so dumps of the same model diff clean.
type summary struct {
	Version   uint32      `cbor:"version"`
	Target    uint32      `cbor:"target"`
	Paged     bool        `cbor:"paged"`
	Constants uint32      `cbor:"constants_bytes"`
	MainMem   uint32      `cbor:"main_memory_bytes"`
	Inputs    []rangeInfo `cbor:"inputs"`
	Outputs   []rangeInfo `cbor:"outputs"`
	Nodes     []nodeInfo  `cbor:"nodes"`
	Pages     []pageInfo  `cbor:"pages,omitempty"`
	Budget    uint64      `cbor:"working_budget_bytes,omitempty"`
}

type rangeInfo struct {
	Space string   `cbor:"space"`
	Elem  string   `cbor:"elem"`
	Start uint32   `cbor:"start"`
	Size  uint32   `cbor:"size"`
	Shape []uint32 `cbor:"shape,omitempty"`
}

type nodeInfo struct {
	Opcode   string `cbor:"opcode"`
	BodySize uint32 `cbor:"body_size"`
}

type pageInfo struct {
	Index  uint32 `cbor:"index"`
	Type   string `cbor:"type"`
	Begin  uint32 `cbor:"begin"`
	End    uint32 `cbor:"end"`
	Offset uint64 `cbor:"offset"`
	Size   uint64 `cbor:"size"`
}

func main() {
	var (
		asCBOR = flag.Bool("cbor", false, "Emit a canonical CBOR summary on stdout")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <model.tern>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(args[0])
	if err != nil {
		log.Fatalf("open model: %v", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		log.Fatalf("stat model: %v", err)
	}

	m, err := runtime.Load(f, st.Size())
	if err != nil {
		log.Fatalf("load model: %v", err)
	}

	if *asCBOR {
		emitCBOR(m)
		return
	}
	emitText(m)
}

func emitText(m *runtime.Model) {
	h := m.Header
	fmt.Printf("tern model v%d, target %d, paged=%v\n", h.Version, h.Target, h.Paged())
	fmt.Printf("constants %d B, main memory %d B\n", h.Constants, h.MainMem)
	for i, rng := range m.Inputs {
		fmt.Printf("input  %d: %s %s [%d,%d) shape %v\n",
			i, rng.Space, rng.Elem, rng.Start, rng.Start+rng.Size, []uint32(m.InputShapes[i]))
	}
	for i, rng := range m.Outputs {
		fmt.Printf("output %d: %s %s [%d,%d)\n", i, rng.Space, rng.Elem, rng.Start, rng.Start+rng.Size)
	}
	for i, nh := range m.NodeHeaders {
		fmt.Printf("node %3d: %-12s %6d B\n", i, nh.Opcode, nh.BodySize)
	}
	for _, p := range m.Pages {
		fmt.Printf("page %d: %-10s nodes [%d,%d] offset %d size %d\n",
			p.Index, p.Type, p.Begin, p.End, p.Offset, p.Size)
	}
	if h.Paged() {
		fmt.Printf("working budget: %d B over %d pages\n", m.Table.BodyBufferSize, m.Table.NumPages)
	}
}

func emitCBOR(m *runtime.Model) {
	s := summary{
		Version:   m.Header.Version,
		Target:    m.Header.Target,
		Paged:     m.Header.Paged(),
		Constants: m.Header.Constants,
		MainMem:   m.Header.MainMem,
	}
	for i, rng := range m.Inputs {
		s.Inputs = append(s.Inputs, rangeInfo{
			Space: rng.Space.String(), Elem: rng.Elem.String(),
			Start: rng.Start, Size: rng.Size, Shape: []uint32(m.InputShapes[i]),
		})
	}
	for _, rng := range m.Outputs {
		s.Outputs = append(s.Outputs, rangeInfo{
			Space: rng.Space.String(), Elem: rng.Elem.String(),
			Start: rng.Start, Size: rng.Size,
		})
	}
	for _, nh := range m.NodeHeaders {
		s.Nodes = append(s.Nodes, nodeInfo{Opcode: nh.Opcode.String(), BodySize: nh.BodySize})
	}
	for _, p := range m.Pages {
		s.Pages = append(s.Pages, pageInfo{
			Index: p.Index, Type: p.Type.String(),
			Begin: p.Begin, End: p.End, Offset: p.Offset, Size: p.Size,
		})
	}
	if m.Header.Paged() {
		s.Budget = m.Table.BodyBufferSize
	}

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		log.Fatalf("cbor enc mode: %v", err)
	}
	data, err := em.Marshal(&s)
	if err != nil {
		log.Fatalf("cbor marshal: %v", err)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		log.Fatalf("write: %v", err)
	}
}
