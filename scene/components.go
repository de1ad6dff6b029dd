// Package scene hosts the scripted actors that interact with the fluid from
// the outside: a stirring disturber that orbits the domain pushing particles
// around, and an emitter that pours new particles in. Actors are ECS entities
// so the host can add, inspect and remove them independently of the solver.
package scene

import "github.com/go-gl/mathgl/mgl32"

// Transform is an actor's position in the simulation domain.
type Transform struct {
	Position mgl32.Vec3
}

// Disturber is an impulse source orbiting the domain center. Every frame it
// pushes particles within Radius along its direction of travel; the fluid
// consumes the request each substep, so the disturber resubmits it as long
// as it is active.
type Disturber struct {
	Radius      float32 // interaction radius
	Strength    float32 // impulse magnitude
	OrbitRadius float32
	AngularVel  float32 // radians per second
	Angle       float32 // current orbit angle
	Height      float32 // y offset from the domain floor
}

// Emitter pours particles into the domain at a fixed rate. Fractional
// particles carry over between frames so low rates still emit.
type Emitter struct {
	Rate      float32 // particles per second
	Speed     float32 // initial particle speed
	Direction mgl32.Vec3
	carry     float32
}
