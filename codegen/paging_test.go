package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/tern/model"
)

func headersOf(sizes ...uint32) []model.NodeHeader {
	hs := make([]model.NodeHeader, len(sizes))
	for i, s := range sizes {
		hs[i] = model.NodeHeader{Opcode: model.OpBinary, BodySize: s}
	}
	return hs
}

// checkPartition asserts the pages cover [0, n) exactly once, in order.
func checkPartition(t *testing.T, pages []model.MemoryPage, n int) {
	t.Helper()
	require.NotEmpty(t, pages)
	assert.EqualValues(t, 0, pages[0].Begin)
	assert.EqualValues(t, 0, pages[0].Offset)
	for i, p := range pages {
		assert.EqualValues(t, i, p.Index)
		assert.LessOrEqual(t, p.Begin, p.End)
		if i > 0 {
			prev := pages[i-1]
			assert.Equal(t, prev.End+1, p.Begin, "page %d not contiguous", i)
			assert.Equal(t, prev.Offset+prev.Size, p.Offset, "page %d offset gap", i)
		}
	}
	assert.EqualValues(t, n-1, pages[len(pages)-1].End)
}

func TestPlanPagesSingleSmallPage(t *testing.T) {
	t.Parallel()
	table, pages, err := PlanPages(headersOf(100, 200, 300))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, model.PagePersistent, pages[0].Type)
	assert.EqualValues(t, 600, pages[0].Size)
	assert.EqualValues(t, 1, table.NumPages)
	assert.EqualValues(t, model.MaxPages, table.MaxPages)
	assert.EqualValues(t, 600, table.BodyBufferSize)
	checkPartition(t, pages, 3)
}

func TestPlanPagesDocumentedScenario(t *testing.T) {
	t.Parallel()
	// 1,000,000 + 1,500,000 exceeds the 2,300,000 target, so every node
	// lands on its own page.
	table, pages, err := PlanPages(headersOf(1_000_000, 1_500_000, 1_000_000))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, model.PagePersistent, pages[0].Type)
	assert.EqualValues(t, 1_000_000, pages[0].Size)
	assert.Equal(t, model.PageSwap, pages[1].Type)
	assert.EqualValues(t, 1_500_000, pages[1].Size)
	assert.EqualValues(t, 1_000_000, pages[1].Offset)
	assert.Equal(t, model.PageSwap, pages[2].Type)
	assert.EqualValues(t, 1_000_000, pages[2].Size)
	assert.EqualValues(t, 2_500_000, pages[2].Offset)

	// persistent 1,000,000 + largest swap 1,500,000
	assert.EqualValues(t, 2_500_000, table.BodyBufferSize)
	checkPartition(t, pages, 3)
}

// Only the first page is ever persistent. This policy is part of the file
// format contract; the assertions here pin it against well-meaning fixes.
func TestPlanPagesOnlyFirstPagePersistent(t *testing.T) {
	t.Parallel()
	// All three pages would individually fit the target, but pages 1 and 2
	// must still come out as swap.
	_, pages, err := PlanPages(headersOf(2_000_000, 2_000_000, 2_000_000))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, model.PagePersistent, pages[0].Type)
	for _, p := range pages[1:] {
		assert.Equal(t, model.PageSwap, p.Type)
	}
}

func TestPlanPagesBudgetFormula(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		sizes []uint32
		want  uint64
	}{
		{"single persistent", []uint32{500}, 500},
		{"persistent plus one swap", []uint32{2_000_000, 400_000}, 2_400_000},
		{"largest swap dominates", []uint32{2_000_000, 2_200_000, 64}, 4_200_064},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			table, pages, err := PlanPages(headersOf(tt.sizes...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.BodyBufferSize)

			var persistent, largest uint64
			for _, p := range pages {
				if p.Type == model.PagePersistent {
					persistent += p.Size
				} else if p.Size > largest {
					largest = p.Size
				}
			}
			assert.Equal(t, persistent+largest, table.BodyBufferSize)
		})
	}
}

func TestPlanPagesOverflow(t *testing.T) {
	t.Parallel()
	// 9 nodes, each larger than the target, need 9 pages.
	sizes := make([]uint32, model.MaxPages+1)
	for i := range sizes {
		sizes[i] = model.TargetPageSize + 1
	}
	_, _, err := PlanPages(headersOf(sizes...))
	require.Error(t, err)
	var overflow *PageOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, model.MaxPages+1, overflow.Pages)
}

func TestPlanPagesManySequences(t *testing.T) {
	t.Parallel()
	// A spread of size mixes; every plan must partition its index space.
	sequences := [][]uint32{
		{8},
		{8, 16, 24, 32},
		{2_300_000, 8, 8, 2_300_000},
		{1, 2_299_999, 1, 1},
		{700_000, 700_000, 700_000, 700_000, 700_000, 700_000},
	}
	for _, sizes := range sequences {
		table, pages, err := PlanPages(headersOf(sizes...))
		require.NoError(t, err)
		checkPartition(t, pages, len(sizes))
		assert.Equal(t, uint32(len(pages)), table.NumPages)

		var total uint64
		for _, s := range sizes {
			total += uint64(s)
		}
		var covered uint64
		for _, p := range pages {
			covered += p.Size
		}
		assert.Equal(t, total, covered, "pages must cover every body byte")
	}
}

func TestPlanPagesEmpty(t *testing.T) {
	t.Parallel()
	table, pages, err := PlanPages(nil)
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.EqualValues(t, 0, table.NumPages)
	assert.EqualValues(t, 0, table.BodyBufferSize)
}
