package telemetry

import "testing"

func TestCollectorFlush(t *testing.T) {
	c := NewCollector()

	c.RecordSubsteps(4)
	c.RecordSubsteps(3)
	c.RecordDroppedSimTime(0.05)
	c.RecordParticlesAdded(100)
	c.RecordParticlesRejected(12)
	c.RecordImpulse()
	c.RecordImpulse()
	c.RecordVelocityClamps(9)
	c.RecordSaturatedCells(2)

	var stats WindowStats
	c.Flush(&stats)

	if stats.Substeps != 7 {
		t.Errorf("substeps = %d, want 7", stats.Substeps)
	}
	if stats.DroppedSimTime != 0.05 {
		t.Errorf("dropped sim time = %v, want 0.05", stats.DroppedSimTime)
	}
	if stats.ParticlesAdded != 100 {
		t.Errorf("added = %d, want 100", stats.ParticlesAdded)
	}
	if stats.ParticlesRejected != 12 {
		t.Errorf("rejected = %d, want 12", stats.ParticlesRejected)
	}
	if stats.ImpulsesApplied != 2 {
		t.Errorf("impulses = %d, want 2", stats.ImpulsesApplied)
	}
	if stats.VelocityClamps != 9 {
		t.Errorf("clamps = %d, want 9", stats.VelocityClamps)
	}
	if stats.SaturatedCells != 2 {
		t.Errorf("saturated = %d, want 2", stats.SaturatedCells)
	}
}

func TestCollectorFlushResets(t *testing.T) {
	c := NewCollector()
	c.RecordSubsteps(5)
	c.RecordImpulse()

	var first, second WindowStats
	c.Flush(&first)
	c.Flush(&second)

	if second.Substeps != 0 || second.ImpulsesApplied != 0 {
		t.Errorf("second flush not empty: %+v", second)
	}
}
