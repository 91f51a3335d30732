package audio

import (
	"sync"
	"testing"
	"time"
)

// silentBuffer builds a mono buffer of the given duration at 24kHz.
func silentBuffer(d time.Duration) *Buffer {
	frames := int(d * PlaybackSampleRate / time.Second)
	return &Buffer{
		SampleRate: PlaybackSampleRate,
		Channels:   [][]float32{make([]float32, frames)},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	starts []time.Duration
}

func (r *recordingSink) Play(buf *Buffer, startAt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, startAt)
}

func TestScheduleSequentialSegments(t *testing.T) {
	var clock time.Duration
	sink := &recordingSink{}
	sched := NewSchedulerWithClock(sink, func() time.Duration { return clock })
	defer sched.Stop()

	d1 := 200 * time.Millisecond
	d2 := 300 * time.Millisecond
	d3 := 100 * time.Millisecond

	s1 := sched.Schedule(silentBuffer(d1))
	s2 := sched.Schedule(silentBuffer(d2))
	s3 := sched.Schedule(silentBuffer(d3))

	if s1 < 0 {
		t.Errorf("First start must be at or after the playback clock, got %v", s1)
	}
	if s2 < s1+d1 {
		t.Errorf("Segment 2 starts at %v, before end of segment 1 (%v)", s2, s1+d1)
	}
	if s3 < s2+d2 {
		t.Errorf("Segment 3 starts at %v, before end of segment 2 (%v)", s3, s2+d2)
	}

	if len(sink.starts) != 3 {
		t.Fatalf("Expected 3 sink plays, got %d", len(sink.starts))
	}
}

func TestScheduleAfterClockAdvance(t *testing.T) {
	var clock time.Duration
	sched := NewSchedulerWithClock(nil, func() time.Duration { return clock })
	defer sched.Stop()

	sched.Schedule(silentBuffer(100 * time.Millisecond))

	// Clock has raced past the cursor; next segment starts at the clock,
	// never in the past.
	clock = 5 * time.Second
	start := sched.Schedule(silentBuffer(100 * time.Millisecond))
	if start != clock {
		t.Errorf("Expected start at clock %v, got %v", clock, start)
	}
	if sched.Cursor() != clock+100*time.Millisecond {
		t.Errorf("Cursor not advanced by segment duration: %v", sched.Cursor())
	}
}

func TestSpeakingIndicator(t *testing.T) {
	sched := NewScheduler(nil)
	defer sched.Stop()

	if sched.Speaking() {
		t.Error("Fresh scheduler must not report speaking")
	}

	sched.Schedule(silentBuffer(20 * time.Millisecond))
	if !sched.Speaking() {
		t.Error("Expected speaking while a segment is outstanding")
	}

	// Wait for the segment to finish; the indicator clears when the last
	// outstanding segment ends.
	deadline := time.After(2 * time.Second)
	for sched.Speaking() {
		select {
		case <-deadline:
			t.Fatal("Speaking indicator never cleared")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInterruptResetsCursor(t *testing.T) {
	var clock time.Duration
	sched := NewSchedulerWithClock(nil, func() time.Duration { return clock })
	defer sched.Stop()

	sched.Schedule(silentBuffer(10 * time.Second))
	sched.Schedule(silentBuffer(10 * time.Second))

	clock = time.Second
	sched.Interrupt()

	if sched.Speaking() {
		t.Error("Interrupted scheduler must not report speaking")
	}
	if sched.Cursor() != clock {
		t.Errorf("Expected cursor reset to clock %v, got %v", clock, sched.Cursor())
	}

	// Unlike Stop, the scheduler keeps accepting segments.
	start := sched.Schedule(silentBuffer(100 * time.Millisecond))
	if start != clock {
		t.Errorf("Expected immediate start at %v, got %v", clock, start)
	}
	if sched.ActiveSegments() != 1 {
		t.Errorf("Expected 1 active segment after interrupt, got %d", sched.ActiveSegments())
	}
}

func TestStopClearsActiveSegments(t *testing.T) {
	var clock time.Duration
	sched := NewSchedulerWithClock(nil, func() time.Duration { return clock })

	sched.Schedule(silentBuffer(10 * time.Second))
	sched.Schedule(silentBuffer(10 * time.Second))
	if sched.ActiveSegments() != 2 {
		t.Fatalf("Expected 2 active segments, got %d", sched.ActiveSegments())
	}

	sched.Stop()
	if sched.Speaking() {
		t.Error("Stopped scheduler must not report speaking")
	}

	// Scheduling after Stop is a no-op.
	sched.Schedule(silentBuffer(time.Second))
	if sched.ActiveSegments() != 0 {
		t.Error("Schedule after Stop must not track segments")
	}
}
