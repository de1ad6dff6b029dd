package fluid

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/kaltas21/WaterSimulation/compute"
)

// ImpulseRequest is a transient external interaction: an impulse applied to
// every particle within Radius of Position, at full strength at the center
// and falling off quadratically to zero at the radius. It is consumed by the
// next integration pass and then cleared; a caller that wants sustained
// contact must resubmit it every frame.
type ImpulseRequest struct {
	Position mgl32.Vec3
	Impulse  mgl32.Vec3
	Radius   float32
	Active   bool
}

// GridBuilder runs the three ordered passes that integrate particle motion
// and counting-sort the particles into grid-cell-contiguous order:
//
//	pass 1  integrate kinematics, count particles per cell
//	pass 2  carve the flat output range into per-cell offsets
//	pass 3  scatter particles to their reserved slots, swap buffers
//
// The passes form a strict sequential chain; each Pool.Run is a barrier.
// Within a pass the only shared writes are the per-cell counters and the
// global offset cursor, both advanced with atomic fetch-and-add, which
// guarantees every particle a unique slot but no particular intra-cell
// order.
type GridBuilder struct {
	grid  *Grid
	store *ParticleStore
	pool  *compute.Pool

	boxMin    mgl32.Vec3
	boxMax    mgl32.Vec3
	dt        float32
	damping   float32
	groupSize int

	cursor uint32 // global base-offset reservation counter (pass 2)
}

func newGridBuilder(grid *Grid, store *ParticleStore, pool *compute.Pool, boxMin, boxMax mgl32.Vec3, dt, damping float32, groupSize int) *GridBuilder {
	if groupSize < 1 {
		groupSize = 64
	}
	return &GridBuilder{
		grid:      grid,
		store:     store,
		pool:      pool,
		boxMin:    boxMin,
		boxMax:    boxMax,
		dt:        dt,
		damping:   damping,
		groupSize: groupSize,
	}
}

// integrateAndCount is pass 1: semi-implicit Euler at the fixed step with
// gravity and the optional one-shot impulse, wall reflection with damping,
// then an atomic count increment on the particle's new cell.
func (b *GridBuilder) integrateAndCount(gravity mgl32.Vec3, imp ImpulseRequest) {
	particles := b.store.Current()
	gravityStep := gravity.Mul(b.dt)

	b.pool.Run(len(particles), func(start, end int) {
		for i := start; i < end; i++ {
			p := &particles[i]

			vel := p.Velocity.Add(gravityStep)

			if imp.Active {
				delta := p.Position.Sub(imp.Position)
				dist := delta.Len()
				if dist < imp.Radius {
					falloff := 1 - dist/imp.Radius
					vel = vel.Add(imp.Impulse.Mul(falloff * falloff))
				}
			}

			pos := p.Position.Add(vel.Mul(b.dt))

			// Reflect off domain walls per axis, with damping, and clamp
			// the position onto the wall.
			for axis := 0; axis < 3; axis++ {
				if pos[axis] < b.boxMin[axis] {
					pos[axis] = b.boxMin[axis]
					vel[axis] = -vel[axis] * b.damping
				} else if pos[axis] > b.boxMax[axis] {
					pos[axis] = b.boxMax[axis]
					vel[axis] = -vel[axis] * b.damping
				}
			}

			p.Position = pos
			p.Velocity = vel

			b.grid.addCount(b.grid.CellIndex(pos))
		}
	})
}

// assignOffsets is pass 2: partition one flat output range across all cells.
// Each group of cells sums its counts locally, makes a single atomic
// reservation against the global cursor to receive a contiguous base, then
// distributes the base back as per-cell offsets. Group order is not
// deterministic across runs, but the resulting partition is always disjoint
// and exhaustive.
//
// Counts are zeroed here so pass 3 can reuse them as intra-cell cursors;
// after the scatter they once again equal each cell's population.
func (b *GridBuilder) assignOffsets() {
	atomic.StoreUint32(&b.cursor, 0)

	numCells := b.grid.NumCells()
	numGroups := (numCells + b.groupSize - 1) / b.groupSize

	b.pool.Run(numGroups, func(start, end int) {
		for gi := start; gi < end; gi++ {
			lo := gi * b.groupSize
			hi := lo + b.groupSize
			if hi > numCells {
				hi = numCells
			}

			var local uint32
			for c := lo; c < hi; c++ {
				local += b.grid.counts[c]
			}

			base := atomic.AddUint32(&b.cursor, local) - local

			running := base
			for c := lo; c < hi; c++ {
				b.grid.offsets[c] = running
				running += b.grid.counts[c]
				b.grid.counts[c] = 0
			}
		}
	})
}

// scatter is pass 3: place every particle at its cell's next free slot in
// the scratch buffer, then swap so the sorted buffer becomes current.
func (b *GridBuilder) scatter() {
	src := b.store.Current()
	dst := b.store.Scratch()

	b.pool.Run(len(src), func(start, end int) {
		for i := start; i < end; i++ {
			p := src[i]
			cell := b.grid.CellIndex(p.Position)
			dst[b.grid.takeSlot(cell)] = p
		}
	})

	b.store.Swap()
}

// Build clears the grid and runs all three passes. After Build, the current
// buffer is grid-sorted and every cell's (offset, count) range is valid.
func (b *GridBuilder) Build(gravity mgl32.Vec3, imp ImpulseRequest) {
	b.grid.Clear()
	b.integrateAndCount(gravity, imp)
	b.assignOffsets()
	b.scatter()
}
