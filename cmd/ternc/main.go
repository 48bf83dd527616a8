// ternc compiles a compute sequence into a tern model file.
//
// The graph importer front-end is still out of tree, so ternc currently
// compiles a built-in demonstration graph: a quantized input is dequantized,
// biased by a constant, squared and mean-reduced. It exercises the full
// pipeline (allocation, emission, paging, serialization) end to end.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/tliron/commonlog/simple"

	"github.com/sbl8/tern/codegen"
	"github.com/sbl8/tern/graph"
	"github.com/sbl8/tern/model"
	"github.com/sbl8/tern/target"
)

func main() {
	var (
		targetPath = flag.String("target", "", "Path to a target descriptor (.toml)")
		paging     = flag.Bool("paging", true, "Emit a paged body region")
		targetID   = flag.Uint("target-id", 0, "Target id when no descriptor is given")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ternc - tern compiler v1.0.0")
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <out.tern>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	outFile := args[0]

	reg := codegen.NewRegistry()
	opts := codegen.Options{Target: uint32(*targetID), Paging: *paging}
	if *targetPath != "" {
		desc, err := target.Load(*targetPath)
		if err != nil {
			log.Fatalf("target descriptor: %v", err)
		}
		desc.Apply(reg)
		opts = desc.Options()
	}

	seq, alloc := demoSequence()

	f, err := os.Create(outFile)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	if err := codegen.Generate(f, seq, alloc, reg, opts); err != nil {
		os.Remove(outFile) // partial files are invalid
		log.Fatalf("compilation failed: %v", err)
	}
	fmt.Printf("Successfully compiled demo graph -> %s\n", outFile)
}

// demoSequence builds the built-in graph and allocates its values.
func demoSequence() ([]graph.Node, codegen.Allocator) {
	shape := model.Shape{1, 16}

	in := graph.NewInput(model.Uint8, shape)
	deq := graph.NewDequantize(in.Outputs()[0], 128, 0.05)

	bias := make([]byte, shape.Bytes(model.Float32))
	bc := graph.NewConstant(model.Float32, shape, bias)
	add := graph.NewBinary(model.BinaryAdd, deq.Outputs()[0], bc.Outputs()[0])
	sq := graph.NewBinary(model.BinaryMul, add.Outputs()[0], add.Outputs()[0])
	mean := graph.NewReduce(model.ReduceMean, sq.Outputs()[0], []uint32{1}, 0, false)
	out := graph.NewOutput(mean.Outputs()[0])

	seq := []graph.Node{in, bc, deq, add, sq, mean, out}
	alloc := codegen.NewStaticAllocator()
	alloc.AssignSequence(seq)
	return seq, alloc
}
