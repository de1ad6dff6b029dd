package fluid

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/kaltas21/WaterSimulation/compute"
)

// minDistanceSq guards the force loop against division by zero for
// coincident particles; a pair closer than this contributes zero force.
const minDistanceSq = 1e-12

// ForceSolver accumulates the pressure-gradient and viscosity forces over
// the grid stencil, integrates velocity with explicit Euler, and clamps the
// resulting speed. The clamp is the sole stability safety valve for the
// stiff equation of state under explicit integration.
type ForceSolver struct {
	grid  *Grid
	store *ParticleStore
	pool  *compute.Pool
	kern  Kernels

	mass          float32
	viscosity     float32
	velocityLimit float32
	dt            float32

	accel []mgl32.Vec3 // per-particle scratch, sized to store capacity
}

func newForceSolver(grid *Grid, store *ParticleStore, pool *compute.Pool, kern Kernels, mass, viscosity, velocityLimit, dt float32) *ForceSolver {
	return &ForceSolver{
		grid:          grid,
		store:         store,
		pool:          pool,
		kern:          kern,
		mass:          mass,
		viscosity:     viscosity,
		velocityLimit: velocityLimit,
		dt:            dt,
		accel:         make([]mgl32.Vec3, store.Capacity()),
	}
}

// Solve runs two phases: a read-only phase that accumulates each particle's
// acceleration into scratch, and a write phase that integrates and clamps
// velocities. Splitting the phases keeps neighbor velocity reads free of
// concurrent writes; the per-cell counters in the grid build remain the only
// atomically contended state in the whole substep.
//
// Returns the number of particles whose speed hit the velocity limit.
func (s *ForceSolver) Solve(gravity mgl32.Vec3) int {
	particles := s.store.Current()
	resX, resY, resZ := s.grid.Res()

	s.pool.Run(len(particles), func(start, end int) {
		for i := start; i < end; i++ {
			p := &particles[i]
			cx, cy, cz := s.grid.CellCoords(p.Position)

			var force mgl32.Vec3
			for dz := int32(-1); dz <= 1; dz++ {
				z := cz + dz
				if z < 0 || z >= resZ {
					continue
				}
				for dy := int32(-1); dy <= 1; dy++ {
					y := cy + dy
					if y < 0 || y >= resY {
						continue
					}
					for dx := int32(-1); dx <= 1; dx++ {
						x := cx + dx
						if x < 0 || x >= resX {
							continue
						}

						cell := s.grid.Cell(s.grid.FlatIndex(x, y, z))
						for j := cell.Offset; j < cell.Offset+cell.Count; j++ {
							if int(j) == i {
								continue
							}
							q := &particles[j]

							delta := p.Position.Sub(q.Position)
							distSq := delta.LenSqr()
							if distSq >= s.kern.H2 || distSq < minDistanceSq {
								continue
							}

							dist := float32(math.Sqrt(float64(distSq)))
							unit := delta.Mul(1 / dist)

							// Pressure-gradient force from the averaged pair
							// pressure; SpikyGrad is negative, so a positive
							// pair pressure pushes the particles apart.
							pairPressure := (p.Pressure + q.Pressure) * 0.5
							force = force.Add(unit.Mul(-s.mass * pairPressure / q.Density * s.kern.SpikyGrad(dist)))

							// Viscosity force from relative velocity.
							relVel := q.Velocity.Sub(p.Velocity)
							force = force.Add(relVel.Mul(s.viscosity * s.mass / q.Density * s.kern.ViscLap(dist)))
						}
					}
				}
			}

			force = force.Add(gravity.Mul(p.Density))
			s.accel[i] = force.Mul(1 / p.Density)
		}
	})

	var clamped uint32
	limitSq := s.velocityLimit * s.velocityLimit

	s.pool.Run(len(particles), func(start, end int) {
		var localClamped uint32
		for i := start; i < end; i++ {
			p := &particles[i]

			vel := p.Velocity.Add(s.accel[i].Mul(s.dt))

			speedSq := vel.LenSqr()
			if speedSq > limitSq {
				vel = vel.Mul(s.velocityLimit / float32(math.Sqrt(float64(speedSq))))
				localClamped++
			}

			p.Velocity = vel
		}
		if localClamped > 0 {
			atomic.AddUint32(&clamped, localClamped)
		}
	})

	return int(clamped)
}
