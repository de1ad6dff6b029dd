package fluid

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// CellRange is the logical content of one grid cell: the starting index of
// the cell's particles in the sorted buffer and how many there are. The
// invariant after a grid build is that the ranges of all cells exactly
// partition [0, particleCount).
type CellRange struct {
	Offset uint32
	Count  uint32
}

// packedCountBits is the width of the count field in the packed cell word.
// Counts beyond the field's capacity saturate at export; see PackedCell.
const packedCountBits = 8

// packedCountMax is the largest count representable in the packed word.
const packedCountMax = (1 << packedCountBits) - 1

// Grid is the uniform cell grid over the simulation domain. Cell size equals
// the kernel support radius, so a neighbor query only visits the 3x3x3 block
// around a particle's cell.
//
// Counts and offsets are kept as two full-width arrays rather than one
// bit-packed word: the packing exists for GPU image formats, and keeping the
// fields separate means the passes and the tests never reason about bit
// shifts. The packed form is available at the export boundary via PackedCell.
type Grid struct {
	origin      mgl32.Vec3
	cellSize    float32
	invCellSize float32
	resX        int32
	resY        int32
	resZ        int32
	numCells    int

	counts  []uint32 // mutated with atomics during passes 1 and 3
	offsets []uint32
}

// NewGrid builds a grid covering [boxMin, boxMax] with the given cell size.
// Resolution is the ceiling of extent over cell size per axis, at least one
// cell per axis.
func NewGrid(boxMin, boxMax mgl32.Vec3, cellSize float32) *Grid {
	res := func(axis int) int32 {
		n := int32(math.Ceil(float64((boxMax[axis] - boxMin[axis]) / cellSize)))
		if n < 1 {
			n = 1
		}
		return n
	}

	g := &Grid{
		origin:      boxMin,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		resX:        res(0),
		resY:        res(1),
		resZ:        res(2),
	}
	g.numCells = int(g.resX) * int(g.resY) * int(g.resZ)
	g.counts = make([]uint32, g.numCells)
	g.offsets = make([]uint32, g.numCells)
	return g
}

// NumCells returns the total cell count.
func (g *Grid) NumCells() int {
	return g.numCells
}

// Res returns the per-axis resolution.
func (g *Grid) Res() (x, y, z int32) {
	return g.resX, g.resY, g.resZ
}

// CellSize returns the edge length of a cell.
func (g *Grid) CellSize() float32 {
	return g.cellSize
}

// Clear zeroes all cells. The grid carries no state across substeps; it is
// rebuilt from scratch every time.
func (g *Grid) Clear() {
	clear(g.counts)
	clear(g.offsets)
}

// CellCoords maps a position to clamped integer cell coordinates. Positions
// on or beyond a domain wall land in the boundary cell.
func (g *Grid) CellCoords(p mgl32.Vec3) (x, y, z int32) {
	x = clampCoord(int32((p[0]-g.origin[0])*g.invCellSize), g.resX)
	y = clampCoord(int32((p[1]-g.origin[1])*g.invCellSize), g.resY)
	z = clampCoord(int32((p[2]-g.origin[2])*g.invCellSize), g.resZ)
	return x, y, z
}

func clampCoord(c, res int32) int32 {
	if c < 0 {
		return 0
	}
	if c >= res {
		return res - 1
	}
	return c
}

// FlatIndex converts cell coordinates to the flat cell index.
func (g *Grid) FlatIndex(x, y, z int32) int {
	return (int(z)*int(g.resY)+int(y))*int(g.resX) + int(x)
}

// CellIndex maps a position directly to its flat cell index.
func (g *Grid) CellIndex(p mgl32.Vec3) int {
	x, y, z := g.CellCoords(p)
	return g.FlatIndex(x, y, z)
}

// Cell returns the logical (offset, count) range of a cell. Only valid
// between grid builds, not while a pass is mutating the counts.
func (g *Grid) Cell(i int) CellRange {
	return CellRange{Offset: g.offsets[i], Count: g.counts[i]}
}

// addCount atomically increments a cell's count (pass 1).
func (g *Grid) addCount(i int) {
	atomic.AddUint32(&g.counts[i], 1)
}

// takeSlot atomically reserves the next free intra-cell slot (pass 3) and
// returns the absolute index in the sorted buffer.
func (g *Grid) takeSlot(i int) uint32 {
	slot := atomic.AddUint32(&g.counts[i], 1) - 1
	return g.offsets[i] + slot
}

// PackedCell exports a cell as the single GPU-style word, offset shifted
// above a narrow count field. Counts beyond the field's capacity saturate;
// the second return reports that the cell was too full to represent, so the
// caller can surface it instead of silently corrupting neighbor lookups.
func (g *Grid) PackedCell(i int) (word uint32, saturated bool) {
	count := g.counts[i]
	if count > packedCountMax {
		return g.offsets[i]<<packedCountBits | packedCountMax, true
	}
	return g.offsets[i]<<packedCountBits | count, false
}
