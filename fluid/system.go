package fluid

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/kaltas21/WaterSimulation/compute"
	"github.com/kaltas21/WaterSimulation/config"
	"github.com/kaltas21/WaterSimulation/telemetry"
)

// System owns the particle buffers, the spatial grid and the solver passes,
// and advances them on a fixed-step clock. All device-like resources live on
// this object; constructing one allocates everything, Close releases the
// worker pool. Between Update calls the current particle buffer may be read
// freely from the same goroutine; nothing mutates it outside Update.
type System struct {
	store   *ParticleStore
	grid    *Grid
	builder *GridBuilder
	density *DensityPressureSolver
	forces  *ForceSolver
	pool    *compute.Pool

	perf     *telemetry.PerfCollector
	counters *telemetry.Collector

	boxMin         mgl32.Vec3
	boxMax         mgl32.Vec3
	particleRadius float32
	restDensity    float32
	dt             float64
	maxSubsteps    int

	gravity     mgl32.Vec3
	impulse     ImpulseRequest
	accumulated float64
	simTime     float64
}

// NewSystem builds a simulation from the given configuration. The particle
// capacity is rounded up to the parallel-dispatch alignment (a multiple of
// 512); the rounded value is observable via Capacity.
func NewSystem(cfg *config.Config) (*System, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fluid: nil config")
	}

	d := &cfg.Derived
	for axis := 0; axis < 3; axis++ {
		if d.BoxMax[axis] <= d.BoxMin[axis] {
			return nil, fmt.Errorf("fluid: domain max must exceed min on axis %d", axis)
		}
	}
	if d.CellSize <= 0 {
		return nil, fmt.Errorf("fluid: cell size must be positive, got %v", d.CellSize)
	}

	pool := compute.NewPool(cfg.Solver.Workers, cfg.Solver.SerialThreshold)
	store := NewParticleStore(cfg.Fluid.MaxParticles)
	grid := NewGrid(d.BoxMin, d.BoxMax, d.CellSize)
	kern := NewKernels(d)

	maxSubsteps := cfg.Solver.MaxSubstepsPerUpdate
	if maxSubsteps < 1 {
		maxSubsteps = 1
	}

	s := &System{
		store:          store,
		grid:           grid,
		builder:        newGridBuilder(grid, store, pool, d.BoxMin, d.BoxMax, d.DT32, d.BoundaryDamping, cfg.Solver.OffsetGroupSize),
		density:        newDensityPressureSolver(grid, store, pool, kern, d.Mass, d.RestDensity, d.Stiffness),
		forces:         newForceSolver(grid, store, pool, kern, d.Mass, d.Viscosity, d.VelocityLimit, d.DT32),
		pool:           pool,
		perf:           telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		counters:       telemetry.NewCollector(),
		boxMin:         d.BoxMin,
		boxMax:         d.BoxMax,
		particleRadius: d.ParticleRadius,
		restDensity:    d.RestDensity,
		dt:             float64(d.DT32),
		maxSubsteps:    maxSubsteps,
		gravity:        d.Gravity,
	}
	return s, nil
}

// Close releases the worker pool. The system must not be used afterwards.
func (s *System) Close() {
	s.pool.Close()
}

// Reset clears all particles and reseeds the deterministic dam-break block:
// a rectangle over the central 25-75% footprint of the domain, filled from
// the floor to half height, particles spaced at twice the particle radius in
// row-major order, stopping at capacity. Velocities start at zero.
func (s *System) Reset() {
	s.store.Clear()
	s.accumulated = 0
	s.impulse = ImpulseRequest{}

	size := s.boxMax.Sub(s.boxMin)
	spacing := s.particleRadius * 2

	fluidMin := s.boxMin.Add(size.Mul(0.25))
	fluidMax := s.boxMin.Add(size.Mul(0.75))
	fluidMax[1] = s.boxMin[1] + size[1]*0.5

	// Keep the seed block a particle radius off the walls.
	for axis := 0; axis < 3; axis++ {
		if fluidMin[axis] < s.boxMin[axis]+s.particleRadius {
			fluidMin[axis] = s.boxMin[axis] + s.particleRadius
		}
		if fluidMax[axis] > s.boxMax[axis]-s.particleRadius {
			fluidMax[axis] = s.boxMax[axis] - s.particleRadius
		}
	}

	buf := s.store.buffers[s.store.current]
	n := 0
	for x := fluidMin[0]; x <= fluidMax[0] && n < s.store.capacity; x += spacing {
		for y := fluidMin[1]; y <= fluidMax[1] && n < s.store.capacity; y += spacing {
			for z := fluidMin[2]; z <= fluidMax[2] && n < s.store.capacity; z += spacing {
				buf[n] = Particle{
					Position: mgl32.Vec3{x, y, z},
					Density:  s.restDensity,
				}
				n++
			}
		}
	}
	s.store.count = n

	slog.Info("dam break seeded",
		"particles", n,
		"capacity", s.store.capacity,
		"spacing", spacing,
	)
}

// AddParticles appends particles with the given positions and velocities.
// The slices must have equal length. If the total would exceed capacity, as
// many as fit are added; the return value is the number actually added.
func (s *System) AddParticles(positions, velocities []mgl32.Vec3) (int, error) {
	if len(positions) != len(velocities) {
		return 0, fmt.Errorf("fluid: position and velocity counts differ (%d != %d)", len(positions), len(velocities))
	}
	if len(positions) == 0 {
		return 0, nil
	}

	batch := make([]Particle, len(positions))
	for i := range positions {
		batch[i] = Particle{
			Position: positions[i],
			Velocity: velocities[i],
			Density:  s.restDensity,
		}
	}

	added := s.store.Append(batch)
	s.counters.RecordParticlesAdded(added)

	if rejected := len(batch) - added; rejected > 0 {
		s.counters.RecordParticlesRejected(rejected)
		slog.Warn("particle capacity reached",
			"requested", len(batch),
			"added", added,
			"capacity", s.store.capacity,
		)
	}
	return added, nil
}

// ApplyImpulse records a one-shot external interaction request: an impulse
// applied within radius of position during the next integration pass, full
// strength at the center, quadratic falloff to zero at the radius. Consumed
// once; resubmit every frame contact should persist.
func (s *System) ApplyImpulse(position, impulse mgl32.Vec3, radius float32) {
	s.impulse = ImpulseRequest{
		Position: position,
		Impulse:  impulse,
		Radius:   radius,
		Active:   radius > 0,
	}
}

// Update advances the simulation by zero or more fixed substeps, consuming
// the wall-clock delta. Substeps per call are capped; accumulated time
// beyond the cap is dropped and surfaced through the telemetry counters
// rather than stalling the caller with an unbounded loop.
// Returns the number of substeps run.
func (s *System) Update(deltaTime float32) int {
	if s.store.count == 0 {
		return 0
	}

	s.accumulated += float64(deltaTime)

	if maxAccum := s.dt * float64(s.maxSubsteps); s.accumulated > maxAccum {
		s.counters.RecordDroppedSimTime(s.accumulated - maxAccum)
		s.accumulated = maxAccum
	}

	steps := 0
	for s.accumulated >= s.dt {
		s.step()
		s.accumulated -= s.dt
		s.simTime += s.dt
		steps++
	}
	s.counters.RecordSubsteps(steps)
	return steps
}

// step runs one fixed substep: the three grid-build passes, then density and
// pressure, then forces. The passes form a strict sequential chain; each one
// completes fully before the next begins.
func (s *System) step() {
	s.perf.StartStep()

	s.perf.StartPhase(telemetry.PhaseClearGrid)
	s.grid.Clear()

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	s.builder.integrateAndCount(s.gravity, s.impulse)
	if s.impulse.Active {
		s.counters.RecordImpulse()
		s.impulse = ImpulseRequest{}
	}

	s.perf.StartPhase(telemetry.PhaseOffsets)
	s.builder.assignOffsets()

	s.perf.StartPhase(telemetry.PhaseScatter)
	s.builder.scatter()

	s.perf.StartPhase(telemetry.PhaseDensity)
	s.density.Solve()

	s.perf.StartPhase(telemetry.PhaseForces)
	clamped := s.forces.Solve(s.gravity)
	s.counters.RecordVelocityClamps(clamped)

	s.perf.EndStep()
}

// Particles returns the current buffer for read-only consumption. The slice
// is only valid until the next Update, Reset or AddParticles call.
func (s *System) Particles() []Particle {
	return s.store.Current()
}

// Count returns the live particle count.
func (s *System) Count() int {
	return s.store.Count()
}

// Capacity returns the aligned particle capacity.
func (s *System) Capacity() int {
	return s.store.Capacity()
}

// SimTime returns total simulated time in seconds.
func (s *System) SimTime() float64 {
	return s.simTime
}

// BoxMin returns the domain minimum corner.
func (s *System) BoxMin() mgl32.Vec3 {
	return s.boxMin
}

// BoxMax returns the domain maximum corner.
func (s *System) BoxMax() mgl32.Vec3 {
	return s.boxMax
}

// Gravity returns the current gravity vector.
func (s *System) Gravity() mgl32.Vec3 {
	return s.gravity
}

// SetGravity replaces the gravity vector. Takes effect next substep.
func (s *System) SetGravity(g mgl32.Vec3) {
	s.gravity = g
}

// Perf returns the substep performance collector for the host to poll.
func (s *System) Perf() *telemetry.PerfCollector {
	return s.perf
}

// Counters returns the event counter collector for the host to poll.
func (s *System) Counters() *telemetry.Collector {
	return s.counters
}

// FieldSample extracts the per-particle scalar fields for window statistics.
func (s *System) FieldSample() telemetry.FieldSample {
	particles := s.store.Current()
	sample := telemetry.FieldSample{
		Densities: make([]float64, len(particles)),
		Speeds:    make([]float64, len(particles)),
		Pressures: make([]float64, len(particles)),
		Mass:      float64(s.density.mass),
	}
	for i := range particles {
		sample.Densities[i] = float64(particles[i].Density)
		sample.Speeds[i] = math.Sqrt(float64(particles[i].Velocity.LenSqr()))
		sample.Pressures[i] = float64(particles[i].Pressure)
	}
	return sample
}

// PackedGrid exports the grid as GPU-style packed cell words into dst
// (grown as needed) and returns it along with the number of cells whose
// count field saturated. Saturations are also recorded on the counters.
func (s *System) PackedGrid(dst []uint32) ([]uint32, int) {
	n := s.grid.NumCells()
	if cap(dst) < n {
		dst = make([]uint32, n)
	}
	dst = dst[:n]

	saturated := 0
	for i := 0; i < n; i++ {
		word, sat := s.grid.PackedCell(i)
		dst[i] = word
		if sat {
			saturated++
		}
	}
	if saturated > 0 {
		s.counters.RecordSaturatedCells(saturated)
	}
	return dst, saturated
}
