// Package fluid implements the particle-based SPH water core: a
// fixed-timestep solver that advances up to ~100k particles per frame using
// a counting-sort spatial grid for near-linear neighbor queries.
package fluid

import "github.com/go-gl/mathgl/mgl32"

// Particle is one SPH particle record. Density and pressure are derived
// quantities, recomputed every substep. The field order mirrors the packed
// GPU record layout (vec3 + scalar pairs).
type Particle struct {
	Position mgl32.Vec3
	Density  float32
	Velocity mgl32.Vec3
	Pressure float32
}

// dispatchAlign is the capacity alignment for parallel dispatch. Requested
// capacities round up to the nearest multiple.
const dispatchAlign = 512

// ParticleStore is the double-buffered particle array. The scatter pass of
// the grid build writes reordered records into the scratch buffer, then the
// buffers swap identity; the renderer only ever sees Current.
type ParticleStore struct {
	buffers  [2][]Particle
	current  int
	count    int
	capacity int
}

// NewParticleStore allocates both buffers for the given capacity, rounded up
// to the dispatch alignment.
func NewParticleStore(capacity int) *ParticleStore {
	capacity = alignCapacity(capacity)
	return &ParticleStore{
		buffers: [2][]Particle{
			make([]Particle, capacity),
			make([]Particle, capacity),
		},
		capacity: capacity,
	}
}

// alignCapacity rounds n up to the nearest multiple of the dispatch alignment.
func alignCapacity(n int) int {
	return (n + dispatchAlign - 1) / dispatchAlign * dispatchAlign
}

// Count returns the live particle count.
func (s *ParticleStore) Count() int {
	return s.count
}

// Capacity returns the aligned capacity.
func (s *ParticleStore) Capacity() int {
	return s.capacity
}

// Current returns the live particle slice.
func (s *ParticleStore) Current() []Particle {
	return s.buffers[s.current][:s.count]
}

// Scratch returns the inactive buffer, the scatter pass's output target.
func (s *ParticleStore) Scratch() []Particle {
	return s.buffers[1-s.current][:s.count]
}

// Swap flips which buffer is current. Called after the scatter pass has
// fully populated the scratch buffer.
func (s *ParticleStore) Swap() {
	s.current = 1 - s.current
}

// Append adds particles to the current buffer. It adds as many as fit and
// returns the number actually added.
func (s *ParticleStore) Append(particles []Particle) int {
	free := s.capacity - s.count
	if free <= 0 {
		return 0
	}
	n := len(particles)
	if n > free {
		n = free
	}
	copy(s.buffers[s.current][s.count:], particles[:n])
	s.count += n
	return n
}

// Clear drops all particles. Buffer identity is preserved.
func (s *ParticleStore) Clear() {
	s.count = 0
}
