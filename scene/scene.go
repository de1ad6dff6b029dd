package scene

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/kaltas21/WaterSimulation/config"
	"github.com/kaltas21/WaterSimulation/fluid"
)

// Scene owns the actor world and steps every actor against the fluid once
// per frame. It runs on the host's frame clock, not the solver's substep
// clock; the fluid's request interfaces absorb the difference.
type Scene struct {
	world  *ecs.World
	rng    *rand.Rand
	active bool

	disturberMapper *ecs.Map2[Transform, Disturber]
	disturberFilter *ecs.Filter2[Transform, Disturber]
	emitterMapper   *ecs.Map2[Transform, Emitter]
	emitterFilter   *ecs.Filter2[Transform, Emitter]

	center mgl32.Vec3
	floorY float32
}

// NewScene builds the actor world from the scene configuration. Disabled
// actors are simply not spawned; an empty scene is valid and steps as a
// no-op.
func NewScene(cfg *config.Config, seed int64) *Scene {
	world := ecs.NewWorld()

	boxMin := cfg.Derived.BoxMin
	boxMax := cfg.Derived.BoxMax

	s := &Scene{
		world:           world,
		rng:             rand.New(rand.NewSource(seed)),
		active:          true,
		disturberMapper: ecs.NewMap2[Transform, Disturber](world),
		disturberFilter: ecs.NewFilter2[Transform, Disturber](world),
		emitterMapper:   ecs.NewMap2[Transform, Emitter](world),
		emitterFilter:   ecs.NewFilter2[Transform, Emitter](world),
		center:          boxMin.Add(boxMax.Sub(boxMin).Mul(0.5)),
		floorY:          boxMin[1],
	}

	if cfg.Scene.DisturberEnabled {
		s.SpawnDisturber(Disturber{
			Radius:      float32(cfg.Scene.DisturberRadius),
			Strength:    float32(cfg.Scene.DisturberStrength),
			OrbitRadius: float32(cfg.Scene.DisturberOrbitRadius),
			AngularVel:  float32(cfg.Scene.DisturberAngularVel),
			Height:      (boxMax[1] - boxMin[1]) * 0.25,
		})
	}

	if cfg.Scene.EmitterEnabled {
		// Pour from just under the ceiling at the domain center.
		pos := s.center
		pos[1] = boxMax[1] - (boxMax[1]-boxMin[1])*0.05
		s.SpawnEmitter(pos, Emitter{
			Rate:      float32(cfg.Scene.EmitterRate),
			Speed:     float32(cfg.Scene.EmitterSpeed),
			Direction: mgl32.Vec3{0, -1, 0},
		})
	}

	return s
}

// SpawnDisturber adds a disturber actor. Its transform follows the orbit; the
// initial position is computed from the starting angle.
func (s *Scene) SpawnDisturber(d Disturber) ecs.Entity {
	tr := Transform{Position: s.orbitPosition(&d)}
	return s.disturberMapper.NewEntity(&tr, &d)
}

// SpawnEmitter adds an emitter actor at a fixed position.
func (s *Scene) SpawnEmitter(position mgl32.Vec3, e Emitter) ecs.Entity {
	tr := Transform{Position: position}
	return s.emitterMapper.NewEntity(&tr, &e)
}

// Remove deletes an actor.
func (s *Scene) Remove(entity ecs.Entity) {
	s.world.RemoveEntity(entity)
}

// Active reports whether actors are currently stepping.
func (s *Scene) Active() bool {
	return s.active
}

// Toggle flips actor stepping on or off and returns the new state.
func (s *Scene) Toggle() bool {
	s.active = !s.active
	return s.active
}

// Step advances every actor by the frame delta and applies their effects to
// the fluid. A deactivated scene is a no-op.
func (s *Scene) Step(dt float32, sim *fluid.System) {
	if !s.active {
		return
	}
	s.stepDisturbers(dt, sim)
	s.stepEmitters(dt, sim)
}

func (s *Scene) stepDisturbers(dt float32, sim *fluid.System) {
	query := s.disturberFilter.Query()
	for query.Next() {
		tr, d := query.Get()

		d.Angle += d.AngularVel * dt
		tr.Position = s.orbitPosition(d)

		// Push along the direction of travel, stirring the volume. The
		// request is one-shot in the fluid, so it is resubmitted per frame.
		tangent := mgl32.Vec3{
			-float32(math.Sin(float64(d.Angle))),
			0,
			float32(math.Cos(float64(d.Angle))),
		}
		sim.ApplyImpulse(tr.Position, tangent.Mul(d.Strength), d.Radius)
	}
}

func (s *Scene) stepEmitters(dt float32, sim *fluid.System) {
	query := s.emitterFilter.Query()
	for query.Next() {
		tr, e := query.Get()

		e.carry += e.Rate * dt
		n := int(e.carry)
		if n == 0 {
			continue
		}
		e.carry -= float32(n)

		positions := make([]mgl32.Vec3, n)
		velocities := make([]mgl32.Vec3, n)
		for i := 0; i < n; i++ {
			// Small positional jitter keeps emitted particles from stacking
			// into a single column.
			jitter := mgl32.Vec3{
				(s.rng.Float32() - 0.5) * 0.1,
				0,
				(s.rng.Float32() - 0.5) * 0.1,
			}
			positions[i] = tr.Position.Add(jitter)
			velocities[i] = e.Direction.Mul(e.Speed)
		}

		// Capacity overflow is reported through the fluid's own counters.
		_, _ = sim.AddParticles(positions, velocities)
	}
}

// orbitPosition maps a disturber's orbit state to a domain position.
func (s *Scene) orbitPosition(d *Disturber) mgl32.Vec3 {
	return mgl32.Vec3{
		s.center[0] + d.OrbitRadius*float32(math.Cos(float64(d.Angle))),
		s.floorY + d.Height,
		s.center[2] + d.OrbitRadius*float32(math.Sin(float64(d.Angle))),
	}
}
