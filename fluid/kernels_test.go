package fluid

import (
	"math"
	"testing"

	"github.com/kaltas21/WaterSimulation/config"
)

func defaultKernels(t *testing.T) (Kernels, *config.Config) {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	return NewKernels(&cfg.Derived), cfg
}

func TestPoly6ClosedForm(t *testing.T) {
	k, cfg := defaultKernels(t)

	h := float64(cfg.Derived.KernelRadius)
	coeff := 315.0 / (64.0 * math.Pi * math.Pow(h, 9))

	// Zero distance: coeff * h^6.
	want := coeff * math.Pow(h, 6)
	got := float64(k.Poly6(0))
	if relErr(got, want) > 1e-5 {
		t.Errorf("Poly6(0) = %v, want %v", got, want)
	}

	// Half radius.
	r := h / 2
	want = coeff * math.Pow(h*h-r*r, 3)
	got = float64(k.Poly6(float32(r * r)))
	if relErr(got, want) > 1e-5 {
		t.Errorf("Poly6((h/2)^2) = %v, want %v", got, want)
	}
}

func TestPoly6SupportBoundary(t *testing.T) {
	k, _ := defaultKernels(t)

	if v := k.Poly6(k.H2); v != 0 {
		t.Errorf("Poly6(h^2) = %v, want 0", v)
	}
	if v := k.Poly6(k.H2 * 4); v != 0 {
		t.Errorf("Poly6(4h^2) = %v, want 0", v)
	}
	if v := k.Poly6(k.H2 * 0.99); v <= 0 {
		t.Errorf("Poly6 just inside support = %v, want positive", v)
	}
}

func TestSpikyGradSign(t *testing.T) {
	k, _ := defaultKernels(t)

	// Negative inside the support: the gradient points toward the particle,
	// so positive pair pressure produces repulsion.
	if v := k.SpikyGrad(k.H / 2); v >= 0 {
		t.Errorf("SpikyGrad(h/2) = %v, want negative", v)
	}
	if v := k.SpikyGrad(k.H); v != 0 {
		t.Errorf("SpikyGrad(h) = %v, want 0", v)
	}
	if v := k.SpikyGrad(k.H * 2); v != 0 {
		t.Errorf("SpikyGrad(2h) = %v, want 0", v)
	}
}

func TestSpikyGradClosedForm(t *testing.T) {
	k, cfg := defaultKernels(t)

	h := float64(cfg.Derived.KernelRadius)
	r := h / 3
	want := -45.0 / (math.Pi * math.Pow(h, 6)) * (h - r) * (h - r)
	got := float64(k.SpikyGrad(float32(r)))
	if relErr(got, want) > 1e-5 {
		t.Errorf("SpikyGrad(h/3) = %v, want %v", got, want)
	}
}

func TestViscLapShape(t *testing.T) {
	k, cfg := defaultKernels(t)

	h := float64(cfg.Derived.KernelRadius)
	r := h / 4
	want := 45.0 / (math.Pi * math.Pow(h, 6)) * (h - r)
	got := float64(k.ViscLap(float32(r)))
	if relErr(got, want) > 1e-5 {
		t.Errorf("ViscLap(h/4) = %v, want %v", got, want)
	}

	// Decreasing with distance, zero at support.
	if k.ViscLap(k.H*0.2) <= k.ViscLap(k.H*0.8) {
		t.Error("ViscLap should decrease with distance")
	}
	if v := k.ViscLap(k.H); v != 0 {
		t.Errorf("ViscLap(h) = %v, want 0", v)
	}
}

func TestSelfDensityMatchesKernel(t *testing.T) {
	k, cfg := defaultKernels(t)

	// An isolated particle's density is mass * Poly6(0).
	want := cfg.Derived.Mass * k.Poly6(0)
	got := cfg.Derived.SelfDensity
	if relErr(float64(got), float64(want)) > 1e-5 {
		t.Errorf("SelfDensity = %v, want mass*Poly6(0) = %v", got, want)
	}
}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}
