package audio

import (
	"sync"
	"time"
)

// Sink receives reconstructed audio segments for actual output, together
// with the playback-clock offset the segment was scheduled at.
type Sink interface {
	Play(buf *Buffer, startAt time.Duration)
}

// Scheduler sequences inbound speech segments for gapless, in-order
// playback. Segments arrive as discrete messages; each is scheduled no
// earlier than the previous segment's end and no earlier than the current
// playback clock, so the cursor only ever advances. Scheduling follows
// arrival order, not decode-completion order — callers must schedule from
// a single ordered handler.
type Scheduler struct {
	sink Sink
	now  func() time.Duration

	mu      sync.Mutex
	cursor  time.Duration
	active  map[uint64]*time.Timer
	nextID  uint64
	stopped bool
}

// NewScheduler creates a playback scheduler whose clock starts at zero.
// sink may be nil when no output device is attached.
func NewScheduler(sink Sink) *Scheduler {
	start := time.Now()
	return NewSchedulerWithClock(sink, func() time.Duration {
		return time.Since(start)
	})
}

// NewSchedulerWithClock creates a scheduler with an explicit playback
// clock.
func NewSchedulerWithClock(sink Sink, now func() time.Duration) *Scheduler {
	return &Scheduler{
		sink:   sink,
		now:    now,
		active: make(map[uint64]*time.Timer),
	}
}

// Schedule places buf at the playback cursor and returns the scheduled
// start offset. The segment is tracked as active until its end time
// passes.
func (s *Scheduler) Schedule(buf *Buffer) time.Duration {
	s.mu.Lock()

	if s.stopped {
		start := s.cursor
		s.mu.Unlock()
		return start
	}

	now := s.now()
	start := s.cursor
	if now > start {
		start = now
	}
	dur := buf.Duration()
	s.cursor = start + dur

	id := s.nextID
	s.nextID++
	s.active[id] = time.AfterFunc(start+dur-now, func() {
		s.finish(id)
	})
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Play(buf, start)
	}
	return start
}

// Speaking reports whether at least one scheduled segment has not yet
// reached its end time.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// ActiveSegments returns the number of segments still playing.
func (s *Scheduler) ActiveSegments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next playback start offset.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Interrupt cancels all outstanding segments and pulls the cursor back to
// the current playback clock, so the next segment starts immediately. The
// scheduler stays usable, unlike Stop.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.active {
		timer.Stop()
		delete(s.active, id)
	}
	s.cursor = s.now()
}

// Stop cancels all outstanding segment timers and clears the active set.
// Further Schedule calls are no-ops; a stopped scheduler is never reused.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, timer := range s.active {
		timer.Stop()
		delete(s.active, id)
	}
}

func (s *Scheduler) finish(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
