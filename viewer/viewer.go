// Package viewer renders the particle cloud with raylib: an orbital 3D
// camera, per-particle coloring by a selectable field, the domain wireframe
// and an immediate-mode control panel. It owns no simulation state beyond
// presentation toggles; everything it shows is read from the fluid each
// frame.
package viewer

import (
	"fmt"
	"math"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/kaltas21/WaterSimulation/config"
	"github.com/kaltas21/WaterSimulation/fluid"
	"github.com/kaltas21/WaterSimulation/telemetry"
)

// ColorMode selects which particle field drives the point color.
type ColorMode int

const (
	ColorByVelocity ColorMode = iota
	ColorByDensity
	ColorByPressure
	numColorModes
)

func (m ColorMode) String() string {
	switch m {
	case ColorByVelocity:
		return "velocity"
	case ColorByDensity:
		return "density"
	case ColorByPressure:
		return "pressure"
	}
	return "unknown"
}

// Viewer draws the simulation and handles presentation input.
type Viewer struct {
	cam       rl.Camera3D
	colorMode ColorMode
	paused    bool
	showPanel bool
	showHUD   bool

	// OnToggleScene, when set, is called by the panel's scene button and
	// reports the new actor state.
	OnToggleScene func() bool
	sceneActive   bool

	gravityY float32

	restDensity   float32
	velocityLimit float32
	pressureScale float32

	boxCenter rl.Vector3
	boxSize   rl.Vector3
}

// NewViewer sets up the camera and color scales from the configuration. The
// raylib window must already be open.
func NewViewer(cfg *config.Config) *Viewer {
	d := &cfg.Derived
	center := d.BoxMin.Add(d.BoxMax.Sub(d.BoxMin).Mul(0.5))
	size := d.BoxMax.Sub(d.BoxMin)

	// Start the camera outside the long diagonal, looking at the center.
	dist := size.Len() * 1.2
	cam := rl.Camera3D{
		Position:   rl.Vector3{X: center[0] + dist*0.7, Y: center[1] + dist*0.5, Z: center[2] + dist*0.7},
		Target:     rlVec(center),
		Up:         rl.Vector3{Y: 1},
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}

	return &Viewer{
		cam:           cam,
		showHUD:       cfg.Debug.ShowHUD,
		sceneActive:   true,
		gravityY:      d.Gravity[1],
		restDensity:   d.RestDensity,
		velocityLimit: d.VelocityLimit,
		pressureScale: d.Stiffness * d.RestDensity * 0.1,
		boxCenter:     rlVec(center),
		boxSize:       rl.Vector3{X: size[0], Y: size[1], Z: size[2]},
	}
}

// Paused reports whether the user has paused the simulation clock.
func (v *Viewer) Paused() bool {
	return v.paused
}

// HandleInput processes camera movement, presentation toggles and the mouse
// interaction that pushes the fluid.
func (v *Viewer) HandleInput(sim *fluid.System) {
	rl.UpdateCamera(&v.cam, rl.CameraOrbital)

	switch {
	case rl.IsKeyPressed(rl.KeySpace):
		v.paused = !v.paused
	case rl.IsKeyPressed(rl.KeyR):
		sim.Reset()
	case rl.IsKeyPressed(rl.KeyC):
		v.colorMode = (v.colorMode + 1) % numColorModes
	case rl.IsKeyPressed(rl.KeyTab):
		v.showPanel = !v.showPanel
	case rl.IsKeyPressed(rl.KeyH):
		v.showHUD = !v.showHUD
	}

	// A left click pushes the fluid away from the camera at the point where
	// the view ray crosses the domain center plane.
	if rl.IsMouseButtonDown(rl.MouseButtonLeft) && !v.showPanel {
		ray := rl.GetScreenToWorldRay(rl.GetMousePosition(), v.cam)
		hit := rayAtDepth(ray, v.boxCenter)
		dir := mgl32.Vec3{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}
		sim.ApplyImpulse(hit, dir.Mul(4), v.boxSize.X*0.15)
	}
}

// rayAtDepth returns the point along the ray at the depth of the reference
// point, so clicks land roughly in the middle of the volume.
func rayAtDepth(ray rl.Ray, ref rl.Vector3) mgl32.Vec3 {
	origin := mgl32.Vec3{ray.Position.X, ray.Position.Y, ray.Position.Z}
	dir := mgl32.Vec3{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}
	depth := mgl32.Vec3{ref.X, ref.Y, ref.Z}.Sub(origin).Len()
	return origin.Add(dir.Mul(depth))
}

// Draw renders one frame. Must run between BeginDrawing and EndDrawing.
func (v *Viewer) Draw(sim *fluid.System, perf telemetry.PerfStats) {
	rl.ClearBackground(rl.NewColor(12, 14, 20, 255))

	rl.BeginMode3D(v.cam)
	v.drawParticles(sim)
	rl.DrawCubeWiresV(v.boxCenter, v.boxSize, rl.NewColor(90, 100, 120, 255))
	rl.EndMode3D()

	if v.showHUD {
		v.drawHUD(sim, perf)
	}
	if v.showPanel {
		v.drawPanel(sim)
	}
}

func (v *Viewer) drawParticles(sim *fluid.System) {
	for _, p := range sim.Particles() {
		rl.DrawPoint3D(rlVec(p.Position), v.particleColor(&p))
	}
}

// particleColor maps the selected field to a color ramp.
func (v *Viewer) particleColor(p *fluid.Particle) rl.Color {
	switch v.colorMode {
	case ColorByDensity:
		// Dark blue at vacuum, white at 1.5x rest density.
		t := clamp01(p.Density / (v.restDensity * 1.5))
		return rampBlueWhite(t)
	case ColorByPressure:
		// Blue for tension, red for compression.
		t := p.Pressure / v.pressureScale
		if t < -1 {
			t = -1
		} else if t > 1 {
			t = 1
		}
		if t < 0 {
			return rl.NewColor(uint8(120+60*-t), uint8(160*(1+t)), 255, 255)
		}
		return rl.NewColor(255, uint8(160*(1-t)), uint8(120*(1-t)), 255)
	default:
		speed := float32(math.Sqrt(float64(p.Velocity.LenSqr())))
		t := clamp01(speed / (v.velocityLimit * 0.25))
		return rampBlueWhite(t)
	}
}

func rampBlueWhite(t float32) rl.Color {
	return rl.NewColor(
		uint8(40+215*t),
		uint8(90+165*t),
		255,
		255,
	)
}

func clamp01(t float32) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func (v *Viewer) drawHUD(sim *fluid.System, perf telemetry.PerfStats) {
	y := int32(10)
	line := func(s string) {
		rl.DrawText(s, 10, y, 18, rl.RayWhite)
		y += 22
	}

	line(fmt.Sprintf("particles: %d / %d", sim.Count(), sim.Capacity()))
	line(fmt.Sprintf("sim time: %.2fs", sim.SimTime()))
	line(fmt.Sprintf("step: %dus (%.0f steps/s)", perf.AvgStepDuration.Microseconds(), perf.StepsPerSecond))
	if perf.FPS > 0 {
		line(fmt.Sprintf("fps: %.0f", perf.FPS))
	}
	line(fmt.Sprintf("color: %s", v.colorMode))
	if v.paused {
		line("paused")
	}

	rl.DrawText("space pause | r reset | c color | tab panel | click push", 10, int32(rl.GetScreenHeight())-24, 16, rl.Gray)
}

// drawPanel renders the immediate-mode control panel.
func (v *Viewer) drawPanel(sim *fluid.System) {
	panelX := float32(rl.GetScreenWidth() - 260)
	panelY := float32(10)
	width := float32(240)

	rl.DrawRectangle(int32(panelX)-10, int32(panelY)-10, int32(width)+20, 210, rl.NewColor(20, 24, 32, 220))
	rl.DrawText("Simulation", int32(panelX), int32(panelY), 18, rl.RayWhite)
	panelY += 30

	rl.DrawText(fmt.Sprintf("gravity y: %.1f", v.gravityY), int32(panelX), int32(panelY), 14, rl.Gray)
	panelY += 18
	newGravity := gui.SliderBar(
		rl.Rectangle{X: panelX, Y: panelY, Width: width, Height: 20},
		"-20", "0",
		v.gravityY, -20, 0,
	)
	if newGravity != v.gravityY {
		v.gravityY = newGravity
		g := sim.Gravity()
		g[1] = newGravity
		sim.SetGravity(g)
	}
	panelY += 30

	if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 115, Height: 28}, pauseLabel(v.paused)) {
		v.paused = !v.paused
	}
	if gui.Button(rl.Rectangle{X: panelX + 125, Y: panelY, Width: 115, Height: 28}, "Reset") {
		sim.Reset()
	}
	panelY += 38

	if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: width, Height: 28}, "Color: "+v.colorMode.String()) {
		v.colorMode = (v.colorMode + 1) % numColorModes
	}
	panelY += 38

	if v.OnToggleScene != nil {
		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: width, Height: 28}, sceneLabel(v.sceneActive)) {
			v.sceneActive = v.OnToggleScene()
		}
	}
}

func sceneLabel(active bool) string {
	if active {
		return "Scene actors: on"
	}
	return "Scene actors: off"
}

func pauseLabel(paused bool) string {
	if paused {
		return "Resume"
	}
	return "Pause"
}

func rlVec(v mgl32.Vec3) rl.Vector3 {
	return rl.Vector3{X: v[0], Y: v[1], Z: v[2]}
}
