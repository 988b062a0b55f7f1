package framecache

import (
	"github.com/golang/geo/r3"
)

// CellGap is the spacing between neighboring offset cells, chosen large
// enough that no single frame's local coordinate span can reach a neighbor.
const CellGap = 1000.0

// Cell identifies a non-overlapping placement slot in the shared render
// space. Multiplying by CellGap yields the actual placement vector.
type Cell struct {
	X, Y, Z int
}

// Vector returns the placement translation for the cell.
func (c Cell) Vector() r3.Vector {
	return r3.Vector{X: float64(c.X) * CellGap, Y: float64(c.Y) * CellGap, Z: float64(c.Z) * CellGap}
}

// offsetAllocator hands out placement cells outward from the origin in
// deterministic ring order, reusing released cells before generating new
// rings. It is guarded by the cache's mutex; allocation never fails.
type offsetAllocator struct {
	free   []Cell
	radius int
	alive  int
}

func newOffsetAllocator() *offsetAllocator {
	return &offsetAllocator{free: []Cell{{}}}
}

func (a *offsetAllocator) allocate() Cell {
	if len(a.free) == 0 {
		a.radius++
		a.free = append(a.free, ringCells(a.radius)...)
	}
	c := a.free[0]
	a.free = a.free[1:]
	a.alive++
	return c
}

// release returns a cell to the free pool. When the last live cell is
// released the allocator resets, so the next allocation after a full
// teardown yields the origin again.
func (a *offsetAllocator) release(c Cell) {
	if a.alive > 0 {
		a.alive--
	}
	if a.alive == 0 {
		a.radius = 0
		a.free = []Cell{{}}
		return
	}
	a.free = append(a.free, c)
}

// ringCells enumerates the shell of cells at Chebyshev radius r in a fixed
// lexicographic order.
func ringCells(r int) []Cell {
	var cells []Cell
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				if maxAbs(x, y, z) == r {
					cells = append(cells, Cell{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return cells
}

func maxAbs(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}
