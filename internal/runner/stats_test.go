package runner

import (
	"testing"
	"time"
)

func TestStatsRecording(t *testing.T) {
	s := NewStats()
	s.RecordTick(1 * time.Millisecond)
	s.RecordTick(2 * time.Millisecond)
	s.RecordTick(3 * time.Millisecond)

	if s.TicksProcessed != 3 {
		t.Fatalf("expected 3 ticks, got %d", s.TicksProcessed)
	}
	if s.AvgTickDuration != 2*time.Millisecond {
		t.Fatalf("expected avg 2ms, got %v", s.AvgTickDuration)
	}
	if s.MinTickDuration != 1*time.Millisecond {
		t.Fatalf("expected min 1ms, got %v", s.MinTickDuration)
	}
	if s.MaxTickDuration != 3*time.Millisecond {
		t.Fatalf("expected max 3ms, got %v", s.MaxTickDuration)
	}
}

func TestErrorRate(t *testing.T) {
	s := NewStats()
	for i := 0; i < 1000; i++ {
		s.RecordTick(time.Millisecond)
	}
	for i := 0; i < 10; i++ {
		s.RecordError()
	}
	if got := s.ErrorRate(); got != 10.0 {
		t.Fatalf("expected error rate 10.0, got %v", got)
	}
}
