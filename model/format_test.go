package model

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWireSizesMatchConstants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  any
		want int
	}{
		{"header", &Header{}, HeaderSize},
		{"memory range", &MemoryRange{}, MemoryRangeSize},
		{"node header", &NodeHeader{}, NodeHeaderSize},
		{"page table", &PageTable{}, PageTableSize},
		{"page record", &MemoryPage{}, PageRecordSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := binary.Size(tt.rec); got != tt.want {
				t.Errorf("binary.Size(%s) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	h := Header{
		Identifier: Magic,
		Version:    Version,
		Flags:      FlagPaging,
		Target:     3,
		Constants:  1024,
		MainMem:    4096,
		Nodes:      7,
		Inputs:     1,
		Outputs:    2,
	}
	var buf bytes.Buffer
	if err := WriteRecord(&buf, &h); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("encoded header is %d bytes, want %d", buf.Len(), HeaderSize)
	}

	var got Header
	if err := ReadRecord(&buf, &got); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if !got.Paged() {
		t.Error("Paged() = false with paging flag set")
	}
}

func TestPageRecordRoundTrip(t *testing.T) {
	t.Parallel()
	p := MemoryPage{Index: 2, Type: PageSwap, Begin: 5, End: 9, Offset: 2_300_000, Size: 1_000_000}
	var buf bytes.Buffer
	if err := WriteRecord(&buf, &p); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	var got MemoryPage
	if err := ReadRecord(&buf, &got); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestShapeRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		shape Shape
	}{
		{"scalar", Shape{1}},
		{"vector", Shape{128}},
		{"rank 4", Shape{1, 3, 224, 224}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteShape(&buf, tt.shape); err != nil {
				t.Fatalf("WriteShape failed: %v", err)
			}
			if uint64(buf.Len()) != tt.shape.WireSize() {
				t.Errorf("encoded size %d, WireSize() %d", buf.Len(), tt.shape.WireSize())
			}
			got, err := ReadShape(&buf)
			if err != nil {
				t.Fatalf("ReadShape failed: %v", err)
			}
			if len(got) != len(tt.shape) {
				t.Fatalf("rank mismatch: got %d, want %d", len(got), len(tt.shape))
			}
			for i := range got {
				if got[i] != tt.shape[i] {
					t.Errorf("dim %d: got %d, want %d", i, got[i], tt.shape[i])
				}
			}
		})
	}
}

func TestShapeHelpers(t *testing.T) {
	t.Parallel()
	s := Shape{2, 3, 4}
	if s.Elements() != 24 {
		t.Errorf("Elements() = %d, want 24", s.Elements())
	}
	if s.Bytes(Float32) != 96 {
		t.Errorf("Bytes(Float32) = %d, want 96", s.Bytes(Float32))
	}
	strides := s.DefaultStrides()
	want := Shape{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("stride %d: got %d, want %d", i, strides[i], want[i])
		}
	}
}

func TestAlign(t *testing.T) {
	t.Parallel()
	tests := []struct {
		size, align, want uint64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{100, 4, 100},
	}
	for _, tt := range tests {
		if got := Align(tt.size, tt.align); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.size, tt.align, got, tt.want)
		}
	}
}

func TestOpcodeNames(t *testing.T) {
	t.Parallel()
	for op := OpInput; op <= OpDequantize; op++ {
		name := op.String()
		back, ok := OpcodeByName(name)
		if !ok || back != op {
			t.Errorf("OpcodeByName(%q) = %v, %v; want %v", name, back, ok, op)
		}
	}
	if _, ok := OpcodeByName("frobnicate"); ok {
		t.Error("OpcodeByName accepted an unknown name")
	}
}
