package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for one reporting window: the
// event counters flushed from the Collector plus field statistics sampled
// from the particle buffer at window end.
type WindowStats struct {
	WindowEnd  int32   `csv:"window_end"` // frame index at window end
	SimTimeSec float64 `csv:"sim_time"`

	ParticleCount int `csv:"particles"`

	// Events during the window
	Substeps          int     `csv:"substeps"`
	DroppedSimTime    float64 `csv:"dropped_sim_time"`
	ParticlesAdded    int     `csv:"particles_added"`
	ParticlesRejected int     `csv:"particles_rejected"`
	ImpulsesApplied   int     `csv:"impulses_applied"`
	VelocityClamps    int     `csv:"velocity_clamps"`
	SaturatedCells    int     `csv:"saturated_cells"`

	// Field statistics (sampled at window end)
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`

	SpeedMean float64 `csv:"speed_mean"`
	SpeedP90  float64 `csv:"speed_p90"`
	SpeedMax  float64 `csv:"speed_max"`

	PressureMin float64 `csv:"pressure_min"`
	PressureMax float64 `csv:"pressure_max"`

	KineticEnergy float64 `csv:"kinetic_energy"`
}

// FieldSample carries the per-particle scalar fields the stats are computed
// from. The host fills the slices from the particle buffer after an update;
// telemetry never touches simulation types directly.
type FieldSample struct {
	Densities []float64
	Speeds    []float64
	Pressures []float64
	Mass      float64
}

// ComputeFieldStats fills the field-statistics portion of WindowStats from a
// sample. Empty samples leave the fields zero.
func ComputeFieldStats(s *WindowStats, sample FieldSample) {
	s.ParticleCount = len(sample.Densities)
	if s.ParticleCount == 0 {
		return
	}

	sort.Float64s(sample.Densities)
	s.DensityMean = stat.Mean(sample.Densities, nil)
	s.DensityStd = stat.StdDev(sample.Densities, nil)
	s.DensityP10 = stat.Quantile(0.10, stat.Empirical, sample.Densities, nil)
	s.DensityP50 = stat.Quantile(0.50, stat.Empirical, sample.Densities, nil)
	s.DensityP90 = stat.Quantile(0.90, stat.Empirical, sample.Densities, nil)

	var kinetic float64
	for _, v := range sample.Speeds {
		kinetic += 0.5 * sample.Mass * v * v
	}
	s.KineticEnergy = kinetic

	sort.Float64s(sample.Speeds)
	s.SpeedMean = stat.Mean(sample.Speeds, nil)
	s.SpeedP90 = stat.Quantile(0.90, stat.Empirical, sample.Speeds, nil)
	s.SpeedMax = sample.Speeds[len(sample.Speeds)-1]

	s.PressureMin = sample.Pressures[0]
	s.PressureMax = sample.Pressures[0]
	for _, v := range sample.Pressures[1:] {
		if v < s.PressureMin {
			s.PressureMin = v
		}
		if v > s.PressureMax {
			s.PressureMax = v
		}
	}
}

// LogStats logs the window stats.
func (s WindowStats) LogStats() {
	slog.Info("window",
		"frame", s.WindowEnd,
		"sim_time", s.SimTimeSec,
		"particles", s.ParticleCount,
		"substeps", s.Substeps,
		"dropped_sim_time", s.DroppedSimTime,
		"added", s.ParticlesAdded,
		"rejected", s.ParticlesRejected,
		"impulses", s.ImpulsesApplied,
		"velocity_clamps", s.VelocityClamps,
		"saturated_cells", s.SaturatedCells,
		"density_mean", s.DensityMean,
		"density_std", s.DensityStd,
		"speed_max", s.SpeedMax,
		"kinetic_energy", s.KineticEnergy,
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("frame", int(s.WindowEnd)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("particles", s.ParticleCount),
		slog.Int("substeps", s.Substeps),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("speed_max", s.SpeedMax),
		slog.Float64("kinetic_energy", s.KineticEnergy),
	)
}
