// Package app wires the fluid solver, the scene actors, the viewer and the
// telemetry outputs into one runnable simulation, in both graphical and
// headless modes.
package app

import (
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/kaltas21/WaterSimulation/config"
	"github.com/kaltas21/WaterSimulation/fluid"
	"github.com/kaltas21/WaterSimulation/scene"
	"github.com/kaltas21/WaterSimulation/telemetry"
	"github.com/kaltas21/WaterSimulation/viewer"
)

// Options configures an App instance.
type Options struct {
	Seed           int64
	Headless       bool
	LogStats       bool
	StatsWindowSec float64 // 0 = use config value
	OutputDir      string  // empty = no CSV output
	StepsPerUpdate int     // headless substeps per UpdateHeadless call

	// Config overrides the global config when set; headless sweeps run many
	// configs side by side without touching global state.
	Config *config.Config

	// StatsCallback receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// App owns one simulation run.
type App struct {
	cfg  *config.Config
	opts Options

	sim  *fluid.System
	scn  *scene.Scene
	view *viewer.Viewer

	output *telemetry.OutputManager

	frame       int32
	statsWindow float64
	windowAccum float64
	packedGrid  []uint32
}

// New builds a simulation run from the options. In graphical mode the raylib
// window must already be open.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}

	if opts.StepsPerUpdate < 1 {
		opts.StepsPerUpdate = 1
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}

	sim, err := fluid.NewSystem(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating fluid system: %w", err)
	}
	sim.Reset()

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		sim.Close()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		slog.Warn("failed to write config snapshot", "error", err)
	}

	a := &App{
		cfg:         cfg,
		opts:        opts,
		sim:         sim,
		scn:         scene.NewScene(cfg, opts.Seed),
		output:      output,
		statsWindow: statsWindow,
	}

	if !opts.Headless {
		a.view = viewer.NewViewer(cfg)
		a.view.OnToggleScene = a.scn.Toggle
	}

	slog.Info("simulation ready",
		"particles", sim.Count(),
		"capacity", sim.Capacity(),
		"headless", opts.Headless,
		"seed", opts.Seed,
	)
	return a, nil
}

// Update advances one graphical frame: input, scene actors, then as many
// fixed substeps as the frame delta covers.
func (a *App) Update() {
	a.view.HandleInput(a.sim)

	if !a.view.Paused() {
		dt := rl.GetFrameTime()
		a.scn.Step(dt, a.sim)
		steps := a.sim.Update(dt)
		a.advanceWindow(steps)
	}
	a.frame++
}

// UpdateHeadless advances StepsPerUpdate fixed substeps without any
// wall-clock coupling.
func (a *App) UpdateHeadless() {
	dt := float32(a.cfg.Fluid.TimeStep) * float32(a.opts.StepsPerUpdate)
	a.scn.Step(dt, a.sim)
	steps := a.sim.Update(dt)
	a.advanceWindow(steps)
	a.frame++
}

// advanceWindow accumulates simulated time and flushes a stats window when
// one completes.
func (a *App) advanceWindow(steps int) {
	a.windowAccum += float64(steps) * a.cfg.Fluid.TimeStep
	if a.windowAccum < a.statsWindow {
		return
	}
	a.windowAccum -= a.statsWindow
	a.flushStats()
}

// flushStats assembles one stats window from the counters and the current
// particle fields, then fans it out to the log, the CSV files and the
// callback.
func (a *App) flushStats() {
	// Saturation is only observable at the packed export boundary, so the
	// window flush exports the grid once to count it.
	a.packedGrid, _ = a.sim.PackedGrid(a.packedGrid)

	var stats telemetry.WindowStats
	a.sim.Counters().Flush(&stats)
	stats.WindowEnd = a.frame
	stats.SimTimeSec = a.sim.SimTime()
	telemetry.ComputeFieldStats(&stats, a.sim.FieldSample())

	if a.opts.LogStats {
		stats.LogStats()
		a.sim.Perf().Stats().LogStats()
	}
	if a.opts.StatsCallback != nil {
		a.opts.StatsCallback(stats)
	}
	if err := a.output.WriteTelemetry(stats); err != nil {
		slog.Warn("telemetry write failed", "error", err)
	}
	if err := a.output.WritePerf(a.sim.Perf().Stats(), a.frame); err != nil {
		slog.Warn("perf write failed", "error", err)
	}
}

// Draw renders one frame. Graphical mode only.
func (a *App) Draw() {
	rl.BeginDrawing()
	a.view.Draw(a.sim, a.sim.Perf().Stats())
	rl.EndDrawing()
	a.sim.Perf().RecordFrame()
}

// Frame returns the number of update calls so far.
func (a *App) Frame() int32 {
	return a.frame
}

// SimTime returns total simulated seconds.
func (a *App) SimTime() float64 {
	return a.sim.SimTime()
}

// Fluid exposes the simulation for tools that inspect it directly.
func (a *App) Fluid() *fluid.System {
	return a.sim
}

// Close releases the solver pool and flushes output files.
func (a *App) Close() {
	if err := a.output.Close(); err != nil {
		slog.Warn("closing output", "error", err)
	}
	a.sim.Close()
}
