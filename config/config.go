// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Display   DisplayConfig   `yaml:"display"`
	Domain    DomainConfig    `yaml:"domain"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Solver    SolverConfig    `yaml:"solver"`
	Scene     SceneConfig     `yaml:"scene"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Debug     DebugConfig     `yaml:"debug"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DisplayConfig holds window settings for the graphical mode.
type DisplayConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
	Title     string `yaml:"title"`
}

// DomainConfig holds the axis-aligned simulation box.
type DomainConfig struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// FluidConfig holds the SPH material and integration parameters.
// These are fixed for a run; only the gravity vector is runtime-tunable.
type FluidConfig struct {
	MaxParticles    int        `yaml:"max_particles"`
	ParticleRadius  float64    `yaml:"particle_radius"`
	KernelScale     float64    `yaml:"kernel_scale"` // kernel radius = KernelScale * ParticleRadius
	RestDensity     float64    `yaml:"rest_density"`
	Stiffness       float64    `yaml:"stiffness"`
	Viscosity       float64    `yaml:"viscosity"`
	ParticleMass    float64    `yaml:"particle_mass"`
	TimeStep        float64    `yaml:"time_step"`
	VelocityLimit   float64    `yaml:"velocity_limit"`
	BoundaryDamping float64    `yaml:"boundary_damping"`
	Gravity         [3]float64 `yaml:"gravity"`
}

// SolverConfig holds parallel-dispatch tuning knobs.
type SolverConfig struct {
	Workers              int `yaml:"workers"`                 // 0 = GOMAXPROCS
	MaxSubstepsPerUpdate int `yaml:"max_substeps_per_update"` // excess accumulated time is dropped
	OffsetGroupSize      int `yaml:"offset_group_size"`       // cells per offset-reservation group
	SerialThreshold      int `yaml:"serial_threshold"`        // below this element count, run single-threaded
}

// SceneConfig holds parameters for the scripted scene actors.
type SceneConfig struct {
	DisturberEnabled     bool    `yaml:"disturber_enabled"`
	DisturberRadius      float64 `yaml:"disturber_radius"`
	DisturberStrength    float64 `yaml:"disturber_strength"`
	DisturberOrbitRadius float64 `yaml:"disturber_orbit_radius"`
	DisturberAngularVel  float64 `yaml:"disturber_angular_vel"`
	EmitterEnabled       bool    `yaml:"emitter_enabled"`
	EmitterRate          float64 `yaml:"emitter_rate"` // particles per second
	EmitterSpeed         float64 `yaml:"emitter_speed"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// DebugConfig holds debug toggles.
type DebugConfig struct {
	ShowHUD        bool `yaml:"show_hud"`
	LogWindowStats bool `yaml:"log_window_stats"`
}

// DerivedConfig holds computed values derived from the loaded config.
// Kernel coefficients are precomputed here so solver hot paths only multiply.
type DerivedConfig struct {
	DT32          float32 // Fluid.TimeStep as float32
	KernelRadius  float32 // h = KernelScale * ParticleRadius
	KernelRadius2 float32 // h^2
	CellSize      float32 // grid cell size, equal to the kernel radius
	Poly6Coeff    float32 // 315 / (64 pi h^9)
	SpikyGradCoeff float32 // -45 / (pi h^6)
	ViscLapCoeff  float32 // 45 / (pi h^6)
	SelfDensity   float32 // mass * Poly6(h, 0), an isolated particle's density
	Mass          float32
	RestDensity   float32
	Stiffness     float32
	Viscosity     float32
	VelocityLimit float32
	BoundaryDamping float32
	ParticleRadius  float32
	Gravity       mgl32.Vec3
	BoxMin        mgl32.Vec3
	BoxMax        mgl32.Vec3
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// validate rejects configurations the solver cannot run with.
func (c *Config) validate() error {
	for i := 0; i < 3; i++ {
		if c.Domain.Max[i] <= c.Domain.Min[i] {
			return fmt.Errorf("config: domain max must exceed min on axis %d (min=%v max=%v)", i, c.Domain.Min[i], c.Domain.Max[i])
		}
	}
	if c.Fluid.ParticleRadius <= 0 {
		return fmt.Errorf("config: particle_radius must be positive, got %v", c.Fluid.ParticleRadius)
	}
	if c.Fluid.KernelScale <= 0 {
		return fmt.Errorf("config: kernel_scale must be positive, got %v", c.Fluid.KernelScale)
	}
	if c.Fluid.TimeStep <= 0 {
		return fmt.Errorf("config: time_step must be positive, got %v", c.Fluid.TimeStep)
	}
	if c.Fluid.ParticleMass <= 0 {
		return fmt.Errorf("config: particle_mass must be positive, got %v", c.Fluid.ParticleMass)
	}
	if c.Fluid.MaxParticles <= 0 {
		return fmt.Errorf("config: max_particles must be positive, got %v", c.Fluid.MaxParticles)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	h := c.Fluid.KernelScale * c.Fluid.ParticleRadius
	h2 := h * h
	h6 := h2 * h2 * h2
	h9 := h6 * h2 * h

	c.Derived.DT32 = float32(c.Fluid.TimeStep)
	c.Derived.KernelRadius = float32(h)
	c.Derived.KernelRadius2 = float32(h2)
	c.Derived.CellSize = float32(h)
	c.Derived.Poly6Coeff = float32(315.0 / (64.0 * math.Pi * h9))
	c.Derived.SpikyGradCoeff = float32(-45.0 / (math.Pi * h6))
	c.Derived.ViscLapCoeff = float32(45.0 / (math.Pi * h6))
	// Poly6(h, 0) = coeff * (h^2 - 0)^3 = coeff * h^6
	c.Derived.SelfDensity = float32(c.Fluid.ParticleMass * (315.0 / (64.0 * math.Pi * h9)) * h6)
	c.Derived.Mass = float32(c.Fluid.ParticleMass)
	c.Derived.RestDensity = float32(c.Fluid.RestDensity)
	c.Derived.Stiffness = float32(c.Fluid.Stiffness)
	c.Derived.Viscosity = float32(c.Fluid.Viscosity)
	c.Derived.VelocityLimit = float32(c.Fluid.VelocityLimit)
	c.Derived.BoundaryDamping = float32(c.Fluid.BoundaryDamping)
	c.Derived.ParticleRadius = float32(c.Fluid.ParticleRadius)
	c.Derived.Gravity = mgl32.Vec3{
		float32(c.Fluid.Gravity[0]),
		float32(c.Fluid.Gravity[1]),
		float32(c.Fluid.Gravity[2]),
	}
	c.Derived.BoxMin = mgl32.Vec3{
		float32(c.Domain.Min[0]),
		float32(c.Domain.Min[1]),
		float32(c.Domain.Min[2]),
	}
	c.Derived.BoxMax = mgl32.Vec3{
		float32(c.Domain.Max[0]),
		float32(c.Domain.Max[1]),
		float32(c.Domain.Max[2]),
	}
}

// Recompute revalidates the configuration and refreshes the derived values.
// Callers that mutate fluid or domain fields after loading must call this
// before handing the config to a solver.
func (c *Config) Recompute() error {
	if err := c.validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
