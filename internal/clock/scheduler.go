package clock

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultResolution is how often the production loop polls the clock.
const defaultResolution = 10 * time.Millisecond

// minInterval guards against zero-period tasks spinning Advance forever.
const minInterval = time.Millisecond

// task is a recurring scheduler entry. The interval is re-evaluated
// after every run so tasks can follow dynamic rates.
type task struct {
	name  string
	every func() time.Duration
	fn    func(now time.Time)
	next  time.Time
}

// Scheduler runs all recurring tasks of one room on a single goroutine.
// Tasks never overlap each other; ordering at equal deadlines is by
// registration name, so virtual-time runs are reproducible.
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task

	stop     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler bound to the given clock.
func NewScheduler(c Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:  c,
		logger: logger,
		tasks:  make(map[string]*task),
		stop:   make(chan struct{}),
	}
}

// Schedule registers (or replaces) a recurring task. The first run is
// one interval after the current clock reading.
func (s *Scheduler) Schedule(name string, every func() time.Duration, fn func(now time.Time)) {
	interval := clampInterval(every())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{
		name:  name,
		every: every,
		fn:    fn,
		next:  s.clock.Now().Add(interval),
	}
}

// Cancel removes a task. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// CancelAll removes every task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task)
}

// Advance runs every task that is due at or before now, repeating until
// no task remains due. A task that falls far behind fires once per
// missed interval, which is what virtual-time runs rely on. Returns the
// number of task executions.
func (s *Scheduler) Advance(now time.Time) int {
	runs := 0
	for {
		due := s.dueTasks(now)
		if len(due) == 0 {
			return runs
		}
		for _, t := range due {
			s.runTask(t, now)
			runs++

			s.mu.Lock()
			if current, ok := s.tasks[t.name]; ok && current == t {
				t.next = t.next.Add(clampInterval(t.every()))
			}
			s.mu.Unlock()
		}
	}
}

// dueTasks snapshots tasks due at now, ordered by deadline then name.
func (s *Scheduler) dueTasks(now time.Time) []*task {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.next.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].name < due[j].name
		}
		return due[i].next.Before(due[j].next)
	})
	return due
}

// runTask executes one task, containing any panic to this task run.
func (s *Scheduler) runTask(t *task, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Error("scheduler task panicked",
					zap.String("task", t.name),
					zap.Any("panic", r),
				)
			}
		}
	}()
	t.fn(now)
}

// Run drives the scheduler from the clock until Stop is called. Meant
// to be launched as the room's single timing goroutine.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(defaultResolution)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Advance(s.clock.Now())
		}
	}
}

// Stop terminates Run and cancels all tasks. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.CancelAll()
}

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	return d
}
