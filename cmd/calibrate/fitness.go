package main

import (
	"math"
	"sync"

	"github.com/kaltas21/WaterSimulation/app"
	"github.com/kaltas21/WaterSimulation/config"
	"github.com/kaltas21/WaterSimulation/telemetry"
)

// FitnessEvaluator runs headless dam-break simulations and scores how well
// the fluid settles: density close to rest, narrow density spread, kinetic
// energy dying out, few velocity clamps. Lower is better.
type FitnessEvaluator struct {
	params    *ParamVector
	maxFrames int
	seeds     []int64

	configPath  string // re-loaded per run so parallel seeds never share state
	statsWindow float64

	mu          sync.Mutex
	bestFitness float64
}

// NewFitnessEvaluator creates a new evaluator over the given base config.
func NewFitnessEvaluator(params *ParamVector, configPath string, maxFrames int, seeds []int64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		maxFrames:   maxFrames,
		seeds:       seeds,
		configPath:  configPath,
		statsWindow: 0.25,
		bestFitness: math.Inf(1),
	}
}

// Evaluate computes fitness for a raw parameter vector, averaging over all
// seeds. Seeds run in parallel; each gets its own config and solver.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	var total float64
	for _, r := range results {
		total += r
	}
	avg := total / float64(len(fe.seeds))

	fe.mu.Lock()
	if avg < fe.bestFitness {
		fe.bestFitness = avg
	}
	fe.mu.Unlock()

	return avg
}

// Best returns the best fitness seen so far.
func (fe *FitnessEvaluator) Best() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestFitness
}

// runSimulation executes one headless run and scores its stats windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) float64 {
	cfg, err := config.Load(fe.configPath)
	if err != nil {
		return math.Inf(1)
	}
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return math.Inf(1)
	}

	var windows []telemetry.WindowStats
	a, err := app.New(app.Options{
		Seed:           seed,
		Headless:       true,
		StatsWindowSec: fe.statsWindow,
		StepsPerUpdate: 16,
		Config:         cfg,
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return math.Inf(1)
	}
	defer a.Close()

	for int(a.Frame()) < fe.maxFrames {
		a.UpdateHeadless()
	}

	return fe.score(cfg, windows)
}

// score turns a run's stats windows into a scalar. The second half of the
// run is what counts: by then a stable fluid has settled into a pool.
func (fe *FitnessEvaluator) score(cfg *config.Config, windows []telemetry.WindowStats) float64 {
	if len(windows) == 0 {
		return math.Inf(1)
	}
	settled := windows[len(windows)/2:]
	rest := cfg.Fluid.RestDensity

	var densityErr, spread, kinetic, clampRate float64
	for _, w := range settled {
		densityErr += math.Abs(w.DensityMean/rest - 1)
		spread += w.DensityStd / rest
		kinetic += w.KineticEnergy
		if w.Substeps > 0 {
			clampRate += float64(w.VelocityClamps) / float64(w.Substeps)
		}
	}
	n := float64(len(settled))

	// Any NaN in the stats means the run blew up.
	fitness := densityErr/n + 0.5*spread/n + 0.1*kinetic/n + 0.01*clampRate/n
	if math.IsNaN(fitness) {
		return math.Inf(1)
	}
	return fitness
}
