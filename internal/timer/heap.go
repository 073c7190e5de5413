// Package timer runs one-shot and daily jobs from a min-heap on a bounded
// worker pool.
package timer

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrManagerStopped is returned when scheduling on a stopped manager
var ErrManagerStopped = errors.New("timer manager is stopped")

// Job is the work run when a task fires
type Job func(ctx context.Context)

// task is a job scheduled for a point in time. Daily tasks are pushed back
// onto the heap for the next day once they fire.
type task struct {
	id    string
	runAt time.Time
	job   Job
	daily *Clock
	index int // index in the heap
}

// taskHeap is a min-heap of tasks ordered by runAt
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].runAt.Before(h[j].runAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil // avoid memory leak
	t.index = -1
	*h = old[:n-1]
	return t
}

// Clock is a time of day in UTC
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first occurrence of c strictly after now
func (c Clock) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Manager runs scheduled jobs on a fixed number of workers
type Manager struct {
	mu      sync.Mutex
	heap    taskHeap
	tasks   map[string]*task // for O(1) lookup by ID
	wakeup  chan struct{}
	work    chan *task
	workers int
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  atomic.Int32
	executed atomic.Int64
	now      func() time.Time
}

// NewManager creates a manager with a pool of workers
func NewManager(workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		heap:    make(taskHeap, 0),
		tasks:   make(map[string]*task),
		wakeup:  make(chan struct{}, 1),
		work:    make(chan *task),
		workers: workers,
		now:     time.Now,
	}
	heap.Init(&m.heap)
	return m
}

// Start starts the scheduler loop and worker pool. Jobs receive a context
// derived from ctx that is cancelled by Stop.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	m.wg.Add(1)
	go m.run()
}

// Stop cancels running jobs and waits for the workers to exit
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Schedule runs job once at runAt, replacing any task with the same id
func (m *Manager) Schedule(id string, runAt time.Time, job Job) error {
	return m.push(&task{id: id, runAt: runAt, job: job})
}

// ScheduleDaily runs job every day at clock, replacing any task with the same id
func (m *Manager) ScheduleDaily(id string, clock Clock, job Job) error {
	c := clock
	return m.push(&task{id: id, runAt: clock.Next(m.now()), job: job, daily: &c})
}

func (m *Manager) push(t *task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if existing, ok := m.tasks[t.id]; ok {
		heap.Remove(&m.heap, existing.index)
	}
	heap.Push(&m.heap, t)
	m.tasks[t.id] = t

	// Wake up the scheduler if this is the earliest task
	if m.heap[0] == t {
		select {
		case m.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel removes a scheduled task
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false
	}
	heap.Remove(&m.heap, t.index)
	delete(m.tasks, id)
	return true
}

// NextRun returns when the task with id fires next
func (m *Manager) NextRun(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return time.Time{}, false
	}
	return t.runAt, true
}

// due pops the next task if it is ready and returns the wait otherwise
func (m *Manager) due() (*task, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heap.Len() == 0 {
		return nil, time.Hour
	}
	next := m.heap[0]
	wait := next.runAt.Sub(m.now())
	if wait > 0 {
		return nil, wait
	}

	t := heap.Pop(&m.heap).(*task)
	delete(m.tasks, t.id)
	if t.daily != nil {
		again := &task{id: t.id, runAt: t.daily.Next(t.runAt), job: t.job, daily: t.daily}
		heap.Push(&m.heap, again)
		m.tasks[t.id] = again
	}
	return t, 0
}

// run is the main scheduler loop
func (m *Manager) run() {
	defer m.wg.Done()
	defer close(m.work)

	for {
		t, wait := m.due()
		if t != nil {
			select {
			case m.work <- t:
			case <-m.ctx.Done():
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-m.wakeup:
			timer.Stop()
		case <-m.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for t := range m.work {
		m.execute(t)
	}
}

func (m *Manager) execute(t *task) {
	m.running.Add(1)
	defer m.running.Add(-1)
	defer m.executed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled job panicked", "task", t.id, "panic", r)
		}
	}()

	start := m.now()
	slog.Info("running scheduled job", "task", t.id)
	t.job(m.ctx)
	slog.Info("scheduled job finished", "task", t.id, "duration", m.now().Sub(start))
}

// Stats returns statistics about the manager
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	scheduled := len(m.tasks)
	m.mu.Unlock()

	return Stats{
		ScheduledTasks: scheduled,
		RunningTasks:   int(m.running.Load()),
		ExecutedTasks:  m.executed.Load(),
		Workers:        m.workers,
	}
}

// Stats contains statistics about the manager
type Stats struct {
	ScheduledTasks int
	RunningTasks   int
	ExecutedTasks  int64
	Workers        int
}
