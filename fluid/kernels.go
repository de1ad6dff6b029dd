package fluid

import "github.com/kaltas21/WaterSimulation/config"

// Kernels bundles the three smoothing kernels with their coefficients
// precomputed for a fixed support radius h. Weights are defined as zero at
// and beyond h.
//
// Poly6 estimates density, the Spiky gradient drives the pressure force and
// the viscosity Laplacian the viscosity force (Mueller et al. 2003 forms).
type Kernels struct {
	H  float32 // support radius
	H2 float32 // h^2

	poly6     float32 // 315 / (64 pi h^9)
	spikyGrad float32 // -45 / (pi h^6)
	viscLap   float32 // 45 / (pi h^6)
}

// NewKernels builds the kernel set from derived config values.
func NewKernels(d *config.DerivedConfig) Kernels {
	return Kernels{
		H:         d.KernelRadius,
		H2:        d.KernelRadius2,
		poly6:     d.Poly6Coeff,
		spikyGrad: d.SpikyGradCoeff,
		viscLap:   d.ViscLapCoeff,
	}
}

// Poly6 evaluates the density kernel for a squared distance. Taking the
// squared distance lets the density loop skip the sqrt entirely.
func (k Kernels) Poly6(distSq float32) float32 {
	if distSq >= k.H2 {
		return 0
	}
	d := k.H2 - distSq
	return k.poly6 * d * d * d
}

// SpikyGrad evaluates the scalar magnitude of the Spiky kernel gradient at
// distance r. The result is negative: the gradient points from the neighbor
// toward the particle, so a positive pair pressure yields repulsion.
func (k Kernels) SpikyGrad(dist float32) float32 {
	if dist >= k.H {
		return 0
	}
	d := k.H - dist
	return k.spikyGrad * d * d
}

// ViscLap evaluates the viscosity kernel Laplacian at distance r.
func (k Kernels) ViscLap(dist float32) float32 {
	if dist >= k.H {
		return 0
	}
	return k.viscLap * (k.H - dist)
}
