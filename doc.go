// Package tern compiles scheduled computation graphs into paged binary model
// files for constrained embedded devices.
//
// A tern model packs an entire inference program - instruction bodies,
// constant weights, I/O descriptors and a page table - into a single
// self-contained file. The page table splits the instruction body region
// into a bounded number of pages so a device with a small RAM budget can
// keep a persistent prefix resident and swap the remaining pages in from
// slower storage one at a time.
//
// # Architecture Overview
//
// The toolchain consists of several key components:
//
//   - graph: read-only compute-graph node types handed over by the scheduler
//   - codegen: emitter registry, page planner and model serializer
//   - model: the binary file format (headers, memory ranges, page records)
//   - runtime: loader, page residency manager and bytecode interpreter
//   - kernels: numeric kernels dispatched over a tagged element type
//   - target: TOML target descriptors selecting op support per device
//
// # Basic Usage
//
//	// Compile a scheduled graph
//	err := codegen.Generate(out, seq, alloc, codegen.NewRegistry(), opts)
//
//	// Load and execute
//	m, err := runtime.Load(file, size)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interp, err := runtime.NewInterpreter(m)
//	err = interp.SetInput(0, data)
//	err = interp.Run()
//	out, err := interp.Output(0)
//
// # Package Structure
//
//   - graph: graph node types consumed by code generation
//   - model: binary model format and layout constants
//   - codegen: graph-to-model serialization and page planning
//   - runtime: execution engine and paging support
//   - kernels: element-type generic math operations
//   - cmd: command-line tools (ternc, terninfo, ternrun)
//
// For more information, see the documentation at
// https://pkg.go.dev/github.com/sbl8/tern and the project repository at
// https://github.com/sbl8/tern
package tern
