package fluid

import "github.com/kaltas21/WaterSimulation/compute"

// DensityPressureSolver computes per-particle density as the kernel-weighted
// sum of neighbor masses, then pressure from a linearized equation of state.
// It requires the particle buffer to be grid-sorted.
type DensityPressureSolver struct {
	grid  *Grid
	store *ParticleStore
	pool  *compute.Pool
	kern  Kernels

	mass        float32
	restDensity float32
	stiffness   float32
}

func newDensityPressureSolver(grid *Grid, store *ParticleStore, pool *compute.Pool, kern Kernels, mass, restDensity, stiffness float32) *DensityPressureSolver {
	return &DensityPressureSolver{
		grid:        grid,
		store:       store,
		pool:        pool,
		kern:        kern,
		mass:        mass,
		restDensity: restDensity,
		stiffness:   stiffness,
	}
}

// Solve walks each particle's 3x3x3 cell stencil and accumulates
// density += mass * Poly6(h, r) over every candidate inside the kernel
// radius, including the particle's own zero-distance contribution. Pressure
// is stiffness * (density - restDensity), with no lower clamp: negative
// pressure (tension) is part of this model.
//
// The pass reads only positions and writes only each particle's own density
// and pressure, so it is free of cross-task hazards.
func (s *DensityPressureSolver) Solve() {
	particles := s.store.Current()
	resX, resY, resZ := s.grid.Res()

	s.pool.Run(len(particles), func(start, end int) {
		for i := start; i < end; i++ {
			p := &particles[i]
			cx, cy, cz := s.grid.CellCoords(p.Position)

			var density float32
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
							distSq := p.Position.Sub(particles[j].Position).LenSqr()
							if distSq < s.kern.H2 {
								density += s.mass * s.kern.Poly6(distSq)
							}
						}
					}
				}
			}

			p.Density = density
			p.Pressure = s.stiffness * (density - s.restDensity)
		}
	})
}
