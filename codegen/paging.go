package codegen

import (
	"fmt"

	"github.com/sbl8/tern/model"
)

// PageOverflowError reports a model whose body region needs more pages than
// the target supports. This is a build-time capacity failure: the model must
// be restructured or re-targeted, never truncated.
type PageOverflowError struct {
	Pages int
}

func (e *PageOverflowError) Error() string {
	return fmt.Sprintf("codegen: model needs %d pages, target allows %d", e.Pages, model.MaxPages)
}

// PlanPages partitions the emitted node bodies into memory pages with a
// single greedy forward pass over the measured body sizes.
//
// Page 0 starts persistent at node 0. Each further node extends the current
// page unless its body would push the running size past the target page
// size, in which case the page is closed and a new swap page opens at that
// node. Only the first page is ever persistent: the early nodes it covers
// (inputs and their consumers) are assumed always needed. That policy is
// part of the file format contract and is kept even though a pathological
// size sequence can leave a small final swap page while a larger earlier
// swap page dominates the budget.
//
// The returned table's BodyBufferSize is the working-memory budget: the sum
// of all persistent page sizes plus the largest swap page size, since at
// most one swap page is resident at a time.
func PlanPages(headers []model.NodeHeader) (model.PageTable, []model.MemoryPage, error) {
	if len(headers) == 0 {
		return model.PageTable{MaxPages: model.MaxPages}, nil, nil
	}

	var pages []model.MemoryPage
	current := model.MemoryPage{
		Index:  0,
		Type:   model.PagePersistent,
		Begin:  0,
		End:    0,
		Offset: 0,
		Size:   uint64(headers[0].BodySize),
	}

	for i := 1; i < len(headers); i++ {
		size := uint64(headers[i].BodySize)
		if current.Size+size > model.TargetPageSize {
			pages = append(pages, current)
			current = model.MemoryPage{
				Index:  current.Index + 1,
				Type:   model.PageSwap,
				Begin:  uint32(i),
				End:    uint32(i),
				Offset: current.Offset + current.Size,
				Size:   size,
			}
		} else {
			current.End = uint32(i)
			current.Size += size
		}
	}
	pages = append(pages, current)

	if len(pages) > model.MaxPages {
		return model.PageTable{}, nil, &PageOverflowError{Pages: len(pages)}
	}

	var persistent, largestSwap uint64
	for _, p := range pages {
		if p.Type == model.PagePersistent {
			persistent += p.Size
		} else if p.Size > largestSwap {
			largestSwap = p.Size
		}
	}

	table := model.PageTable{
		NumPages:       uint32(len(pages)),
		MaxPages:       model.MaxPages,
		BodyBufferSize: persistent + largestSwap,
	}
	return table, pages, nil
}
