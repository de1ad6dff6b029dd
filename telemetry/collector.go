package telemetry

// Collector accumulates event counters between window flushes. The solver
// records events with plain method calls from the single-threaded
// orchestration path; parallel passes hand their tallies over once per pass.
type Collector struct {
	substeps          int
	droppedSimTime    float64
	particlesAdded    int
	particlesRejected int
	impulsesApplied   int
	velocityClamps    int
	saturatedCells    int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordSubsteps records how many fixed substeps an update ran.
func (c *Collector) RecordSubsteps(n int) {
	c.substeps += n
}

// RecordDroppedSimTime records accumulated simulation time discarded by the
// substep cap.
func (c *Collector) RecordDroppedSimTime(seconds float64) {
	c.droppedSimTime += seconds
}

// RecordParticlesAdded records particles accepted by an add call.
func (c *Collector) RecordParticlesAdded(n int) {
	c.particlesAdded += n
}

// RecordParticlesRejected records particles refused for lack of capacity.
func (c *Collector) RecordParticlesRejected(n int) {
	c.particlesRejected += n
}

// RecordImpulse records one consumed external interaction request.
func (c *Collector) RecordImpulse() {
	c.impulsesApplied++
}

// RecordVelocityClamps records particles that hit the velocity limit in a
// force pass.
func (c *Collector) RecordVelocityClamps(n int) {
	c.velocityClamps += n
}

// RecordSaturatedCells records grid cells whose packed count field
// saturated at export.
func (c *Collector) RecordSaturatedCells(n int) {
	c.saturatedCells += n
}

// Flush moves the accumulated counters into stats and resets them for the
// next window.
func (c *Collector) Flush(stats *WindowStats) {
	stats.Substeps = c.substeps
	stats.DroppedSimTime = c.droppedSimTime
	stats.ParticlesAdded = c.particlesAdded
	stats.ParticlesRejected = c.particlesRejected
	stats.ImpulsesApplied = c.impulsesApplied
	stats.VelocityClamps = c.velocityClamps
	stats.SaturatedCells = c.saturatedCells

	*c = Collector{}
}
