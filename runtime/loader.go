// Package runtime loads and executes tern model files.
//
// The loader parses the fixed file layout back into memory; the pager keeps
// the body region within the working-memory budget recorded in the page
// table; the interpreter is a register-based stack machine walking the node
// headers in order and dispatching instruction bodies to numeric kernels.
// Model files are read-only: nothing here ever mutates the artifact.
package runtime

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/sbl8/tern/model"
)

var log = commonlog.GetLogger("tern.runtime")

// Model is a loaded model file.
type Model struct {
	Header      model.Header
	Inputs      []model.MemoryRange
	InputShapes []model.Shape
	Outputs     []model.MemoryRange
	Constants   []byte
	NodeHeaders []model.NodeHeader
	Table       model.PageTable
	Pages       []model.MemoryPage

	// nodeOffsets[i] is the byte offset of node i's body within the body
	// region; derived from the node header sizes.
	nodeOffsets []uint64

	// body holds the whole region when paging is off; pager manages
	// residency when it is on. Exactly one of the two is set.
	body  []byte
	pager *Pager
}

// Load parses a model file from a random-access source of the given size.
func Load(r io.ReaderAt, size int64) (*Model, error) {
	sec := io.NewSectionReader(r, 0, size)
	m := &Model{}

	if err := model.ReadRecord(sec, &m.Header); err != nil {
		return nil, fmt.Errorf("runtime: read header: %w", err)
	}
	if m.Header.Identifier != model.Magic {
		return nil, &BadModelError{Reason: fmt.Sprintf("bad magic %#x", m.Header.Identifier)}
	}
	if m.Header.Version != model.Version {
		return nil, &BadModelError{Reason: fmt.Sprintf("unsupported version %d", m.Header.Version)}
	}

	// Size every region the header promises against the file before any
	// buffer is allocated for it; a crafted count must fail as a bad model,
	// not as a giant allocation. Each input shape is at least a rank word.
	need := uint64(model.HeaderSize) +
		uint64(m.Header.Inputs)*(model.MemoryRangeSize+4) +
		uint64(m.Header.Outputs)*model.MemoryRangeSize +
		uint64(m.Header.Constants) +
		uint64(m.Header.Nodes)*model.NodeHeaderSize +
		model.PageRegionSize(m.Header.Paged())
	if need > uint64(size) {
		return nil, &BadModelError{Reason: fmt.Sprintf("header promises %d B, file has %d", need, size)}
	}

	m.Inputs = make([]model.MemoryRange, m.Header.Inputs)
	for i := range m.Inputs {
		if err := model.ReadRecord(sec, &m.Inputs[i]); err != nil {
			return nil, fmt.Errorf("runtime: read input range: %w", err)
		}
	}
	m.InputShapes = make([]model.Shape, m.Header.Inputs)
	for i := range m.InputShapes {
		s, err := model.ReadShape(sec)
		if err != nil {
			return nil, fmt.Errorf("runtime: read input shape: %w", err)
		}
		m.InputShapes[i] = s
	}
	m.Outputs = make([]model.MemoryRange, m.Header.Outputs)
	for i := range m.Outputs {
		if err := model.ReadRecord(sec, &m.Outputs[i]); err != nil {
			return nil, fmt.Errorf("runtime: read output range: %w", err)
		}
	}

	m.Constants = make([]byte, m.Header.Constants)
	if _, err := io.ReadFull(sec, m.Constants); err != nil {
		return nil, fmt.Errorf("runtime: read constants: %w", err)
	}

	m.NodeHeaders = make([]model.NodeHeader, m.Header.Nodes)
	var bodyBytes uint64
	m.nodeOffsets = make([]uint64, m.Header.Nodes)
	for i := range m.NodeHeaders {
		if err := model.ReadRecord(sec, &m.NodeHeaders[i]); err != nil {
			return nil, fmt.Errorf("runtime: read node header: %w", err)
		}
		m.nodeOffsets[i] = bodyBytes
		bodyBytes += uint64(m.NodeHeaders[i].BodySize)
	}

	if m.Header.Paged() {
		if err := model.ReadRecord(sec, &m.Table); err != nil {
			return nil, fmt.Errorf("runtime: read page table: %w", err)
		}
		if m.Table.NumPages > m.Table.MaxPages || m.Table.MaxPages != model.MaxPages {
			return nil, &BadModelError{Reason: fmt.Sprintf("page table counts %d/%d", m.Table.NumPages, m.Table.MaxPages)}
		}
		m.Pages = make([]model.MemoryPage, m.Table.NumPages)
		for i := range m.Pages {
			if err := model.ReadRecord(sec, &m.Pages[i]); err != nil {
				return nil, fmt.Errorf("runtime: read page record: %w", err)
			}
		}
		// Skip the unused reserved slots.
		skip := int64(model.MaxPages-len(m.Pages)) * model.PageRecordSize
		if _, err := sec.Seek(skip, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("runtime: skip page slots: %w", err)
		}
	}

	pos, err := sec.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	bodyStart := int64(model.Align(uint64(pos), model.BodyAlign))
	if bodyStart+int64(bodyBytes) > size {
		return nil, &BadModelError{Reason: "body region extends past end of file"}
	}

	if m.Header.Paged() {
		pager, err := NewPager(r, bodyStart, m.Table, m.Pages)
		if err != nil {
			return nil, err
		}
		m.pager = pager
		log.Infof("loaded paged model: %d nodes, %d pages, %d B resident",
			m.Header.Nodes, m.Table.NumPages, m.Table.BodyBufferSize)
	} else {
		m.body = make([]byte, bodyBytes)
		if _, err := r.ReadAt(m.body, bodyStart); err != nil && bodyBytes > 0 {
			return nil, fmt.Errorf("runtime: read body region: %w", err)
		}
		log.Infof("loaded model: %d nodes, %d B body resident whole", m.Header.Nodes, bodyBytes)
	}
	return m, nil
}

// Body returns the instruction body of the given node, loading its page if
// necessary. The returned slice is only valid until the next Body call on a
// paged model: a different swap page may be loaded over the same slot.
func (m *Model) Body(node int) ([]byte, error) {
	if node < 0 || node >= len(m.NodeHeaders) {
		return nil, &BadModelError{Reason: fmt.Sprintf("node index %d out of range", node)}
	}
	size := uint64(m.NodeHeaders[node].BodySize)
	if m.pager != nil {
		return m.pager.Body(uint32(node), m.nodeOffsets[node], size)
	}
	off := m.nodeOffsets[node]
	return m.body[off : off+size], nil
}
