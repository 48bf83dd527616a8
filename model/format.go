package model

import (
	"encoding/binary"
	"fmt"
	"io"
)

// File layout constants. These are wire contract values shared with device
// loaders; changing any of them breaks every deployed model.
const (
	Magic   = 0x4E524554 // "TERN" little endian
	Version = 1

	// FlagPaging marks a model whose body region is split into pages.
	FlagPaging = 0x02

	// MaxPages bounds the page table. The file always reserves this many
	// page record slots when paging is enabled so loaders can compute
	// offsets without re-measuring.
	MaxPages = 8

	// TargetPageSize is the byte budget the planner packs each page toward.
	TargetPageSize = 2_300_000

	// BodyAlign is the alignment of every instruction body in the file.
	BodyAlign = 8
)

// Fixed wire sizes in bytes.
const (
	HeaderSize      = 36
	MemoryRangeSize = 16
	NodeHeaderSize  = 8
	PageTableSize   = 16
	PageRecordSize  = 32
)

// PageType distinguishes always-resident pages from swapped ones.
type PageType uint32

const (
	PagePersistent PageType = iota
	PageSwap
)

func (t PageType) String() string {
	if t == PagePersistent {
		return "persistent"
	}
	return "swap"
}

// Header is the file-level metadata record at offset 0.
type Header struct {
	Identifier uint32
	Version    uint32
	Flags      uint32
	Target     uint32
	Constants  uint32 // constants-region bytes
	MainMem    uint32 // working-region bytes, assigned by the allocator
	Nodes      uint32
	Inputs     uint32
	Outputs    uint32
}

// Paged reports whether the paging flag bit is set.
func (h *Header) Paged() bool { return h.Flags&FlagPaging != 0 }

// MemoryRange is the address descriptor embedded in instruction bodies and
// in the header's I/O descriptor arrays.
type MemoryRange struct {
	Space MemorySpace
	Elem  ElemType
	Start uint32
	Size  uint32
}

// NodeHeader records one emitted node: its kind and measured body size
// (including trailing alignment padding).
type NodeHeader struct {
	Opcode   Opcode
	BodySize uint32
}

// MemoryPage is a contiguous range of node indices [Begin, End] (inclusive)
// within the body region.
type MemoryPage struct {
	Index  uint32
	Type   PageType
	Begin  uint32
	End    uint32
	Offset uint64 // byte offset of the page contents within the body region
	Size   uint64 // byte size of the page contents
}

// PageTable summarizes the page layout. BodyBufferSize is the working-memory
// budget needed to execute the model: all persistent pages plus the single
// largest swap page (at most one swap page is resident at a time).
type PageTable struct {
	NumPages       uint32
	MaxPages       uint32
	BodyBufferSize uint64
}

// Align rounds size up to the given power-of-two alignment.
func Align(size, align uint64) uint64 {
	return (size + align - 1) &^ (align - 1)
}

// WriteRecord encodes any fixed-layout wire record little-endian.
func WriteRecord(w io.Writer, rec any) error {
	return binary.Write(w, binary.LittleEndian, rec)
}

// ReadRecord decodes any fixed-layout wire record little-endian.
func ReadRecord(r io.Reader, rec any) error {
	return binary.Read(r, binary.LittleEndian, rec)
}

// WriteShape encodes a variable-rank shape record: rank then dims.
func WriteShape(w io.Writer, s Shape) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, []uint32(s))
}

// ReadShape decodes a variable-rank shape record.
func ReadShape(r io.Reader) (Shape, error) {
	var rank uint32
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return nil, err
	}
	if rank > 64 {
		return nil, fmt.Errorf("shape rank %d out of range", rank)
	}
	s := make(Shape, rank)
	if err := binary.Read(r, binary.LittleEndian, []uint32(s)); err != nil {
		return nil, err
	}
	return s, nil
}

// WireSize returns the encoded size of a shape record.
func (s Shape) WireSize() uint64 {
	return 4 + 4*uint64(len(s))
}

// PageRegionSize returns the byte size of the reserved page region: the page
// table followed by MaxPages fixed record slots. Zero when paging is off.
func PageRegionSize(paged bool) uint64 {
	if !paged {
		return 0
	}
	return PageTableSize + MaxPages*PageRecordSize
}
