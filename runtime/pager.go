package runtime

import (
	"fmt"
	"io"

	"github.com/sbl8/tern/model"
)

// Pager keeps the body region within the working-memory budget from the page
// table. Persistent pages are read once at construction and stay resident at
// their body-region offsets; a single slot after the persistent prefix holds
// at most one swap page at a time, refilled from the backing source whenever
// execution crosses into a different swap page.
//
// Callers must not hold on to body slices across a load of a different swap
// page: the slot memory is reused.
type Pager struct {
	src       io.ReaderAt
	bodyStart int64
	pages     []model.MemoryPage

	buf      []byte
	slotOff  uint64 // offset of the swap slot in buf (= persistent bytes)
	resident int    // index into pages of the loaded swap page, -1 if none

	// Loads counts swap page reads, for tests and diagnostics.
	Loads int
}

// NewPager allocates the working buffer and loads every persistent page.
func NewPager(src io.ReaderAt, bodyStart int64, table model.PageTable, pages []model.MemoryPage) (*Pager, error) {
	p := &Pager{
		src:       src,
		bodyStart: bodyStart,
		pages:     pages,
		buf:       make([]byte, table.BodyBufferSize),
		resident:  -1,
	}
	var persistent uint64
	for _, pg := range pages {
		if pg.Type != model.PagePersistent {
			continue
		}
		if pg.Offset+pg.Size > table.BodyBufferSize {
			return nil, &BadModelError{Reason: fmt.Sprintf("persistent page %d overruns working buffer", pg.Index)}
		}
		if err := p.read(pg, p.buf[pg.Offset:pg.Offset+pg.Size]); err != nil {
			return nil, err
		}
		persistent += pg.Size
	}
	p.slotOff = persistent
	return p, nil
}

func (p *Pager) read(pg model.MemoryPage, dst []byte) error {
	if _, err := p.src.ReadAt(dst, p.bodyStart+int64(pg.Offset)); err != nil {
		return fmt.Errorf("runtime: load page %d: %w", pg.Index, err)
	}
	return nil
}

// page finds the page covering a node index.
func (p *Pager) page(node uint32) (model.MemoryPage, error) {
	for _, pg := range p.pages {
		if node >= pg.Begin && node <= pg.End {
			return pg, nil
		}
	}
	return model.MemoryPage{}, &BadModelError{Reason: fmt.Sprintf("no page covers node %d", node)}
}

// Body returns the body bytes of a node, given its offset within the body
// region and its size, loading the covering swap page on demand.
func (p *Pager) Body(node uint32, bodyOff, size uint64) ([]byte, error) {
	pg, err := p.page(node)
	if err != nil {
		return nil, err
	}
	if bodyOff < pg.Offset || bodyOff+size > pg.Offset+pg.Size {
		return nil, &BadModelError{Reason: fmt.Sprintf("node %d body outside page %d", node, pg.Index)}
	}

	if pg.Type == model.PagePersistent {
		// Persistent pages sit at their region offsets in the buffer.
		return p.buf[bodyOff : bodyOff+size], nil
	}

	if p.slotOff+pg.Size > uint64(len(p.buf)) {
		return nil, &BadModelError{Reason: fmt.Sprintf("swap page %d overruns working buffer", pg.Index)}
	}
	if p.resident != int(pg.Index) {
		slot := p.buf[p.slotOff : p.slotOff+pg.Size]
		if err := p.read(pg, slot); err != nil {
			return nil, err
		}
		p.resident = int(pg.Index)
		p.Loads++
	}
	rel := bodyOff - pg.Offset
	return p.buf[p.slotOff+rel : p.slotOff+rel+size], nil
}
