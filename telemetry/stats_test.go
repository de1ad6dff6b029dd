package telemetry

import (
	"math"
	"testing"
)

func TestComputeFieldStats(t *testing.T) {
	var s WindowStats
	sample := FieldSample{
		Densities: []float64{990, 1000, 1010, 1000, 1000},
		Speeds:    []float64{1, 2, 3, 4, 5},
		Pressures: []float64{-50, 0, 125, 10, -3},
		Mass:      0.02,
	}

	ComputeFieldStats(&s, sample)

	if s.ParticleCount != 5 {
		t.Errorf("particle count = %d, want 5", s.ParticleCount)
	}
	if math.Abs(s.DensityMean-1000) > 1e-9 {
		t.Errorf("density mean = %v, want 1000", s.DensityMean)
	}
	if s.DensityP10 > s.DensityP50 || s.DensityP50 > s.DensityP90 {
		t.Errorf("density quantiles out of order: %v %v %v", s.DensityP10, s.DensityP50, s.DensityP90)
	}
	if math.Abs(s.SpeedMean-3) > 1e-9 {
		t.Errorf("speed mean = %v, want 3", s.SpeedMean)
	}
	if s.SpeedMax != 5 {
		t.Errorf("speed max = %v, want 5", s.SpeedMax)
	}
	if s.PressureMin != -50 || s.PressureMax != 125 {
		t.Errorf("pressure range = [%v, %v], want [-50, 125]", s.PressureMin, s.PressureMax)
	}

	// Kinetic energy: sum of 0.5 * m * v^2 = 0.5 * 0.02 * (1+4+9+16+25)
	want := 0.5 * 0.02 * 55
	if math.Abs(s.KineticEnergy-want) > 1e-9 {
		t.Errorf("kinetic energy = %v, want %v", s.KineticEnergy, want)
	}
}

func TestComputeFieldStatsEmpty(t *testing.T) {
	var s WindowStats
	ComputeFieldStats(&s, FieldSample{})

	if s.ParticleCount != 0 {
		t.Errorf("particle count = %d, want 0", s.ParticleCount)
	}
	if s.DensityMean != 0 || s.SpeedMax != 0 || s.KineticEnergy != 0 {
		t.Errorf("empty sample must leave stats zero: %+v", s)
	}
}
