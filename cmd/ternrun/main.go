// ternrun loads a tern model file and executes it once, printing outputs as
// float32 values. Inputs are read as comma-separated numbers or zero-filled.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/tliron/commonlog/simple"

	"github.com/sbl8/tern/model"
	"github.com/sbl8/tern/runtime"
)

func main() {
	var (
		inputArg = flag.String("input", "", "Comma-separated input values (zero-filled if empty)")
		verbose  = flag.Bool("verbose", false, "Enable verbose output")
		version  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ternrun - tern runtime v1.0.0")
		return
	}

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
	if *verbose {
		fmt.Printf("Loaded model with %d nodes, %d inputs, %d outputs\n",
			m.Header.Nodes, m.Header.Inputs, m.Header.Outputs)
	}

	interp, err := runtime.NewInterpreter(m)
	if err != nil {
		log.Fatalf("create interpreter: %v", err)
	}

	for i, rng := range m.Inputs {
		data, err := inputBytes(*inputArg, rng)
		if err != nil {
			log.Fatalf("input %d: %v", i, err)
		}
		if err := interp.SetInput(i, data); err != nil {
			log.Fatalf("set input %d: %v", i, err)
		}
	}

	if err := interp.Run(); err != nil {
		log.Fatalf("execution failed: %v", err)
	}

	for i, rng := range m.Outputs {
		out, err := interp.Output(i)
		if err != nil {
			log.Fatalf("read output %d: %v", i, err)
		}
		if rng.Elem == model.Float32 {
			fmt.Printf("output %d: %v\n", i, runtime.Float32s(out))
		} else {
			fmt.Printf("output %d (%s): % x\n", i, rng.Elem, out)
		}
	}
}

// inputBytes builds an input buffer from the -input flag, zero-filled when
// the flag is empty or shorter than the range.
func inputBytes(arg string, rng model.MemoryRange) ([]byte, error) {
	data := make([]byte, rng.Size)
	if arg == "" {
		return data, nil
	}
	fields := strings.Split(arg, ",")
	switch rng.Elem {
	case model.Float32:
		vals := make([]float32, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, err
			}
			vals = append(vals, float32(v))
		}
		copy(data, runtime.Float32Bytes(vals))
	default:
		for i, f := range fields {
			if i >= len(data) {
				break
			}
			v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
			if err != nil {
				return nil, err
			}
			data[i] = byte(v)
		}
	}
	return data, nil
}
