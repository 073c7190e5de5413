package timer

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManager_Schedule(t *testing.T) {
	m := NewManager(2)
	m.Start(context.Background())
	defer m.Stop()

	done := make(chan struct{})
	err := m.Schedule("test1", time.Now().Add(50*time.Millisecond), func(ctx context.Context) {
		close(done)
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task was not executed")
	}
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(2)
	m.Start(context.Background())
	defer m.Stop()

	executed := false
	var mu sync.Mutex

	m.Schedule("test1", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		mu.Lock()
		executed = true
		mu.Unlock()
	})

	if !m.Cancel("test1") {
		t.Error("Cancel returned false")
	}
	if m.Cancel("test1") {
		t.Error("Cancel of a removed task returned true")
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	if executed {
		t.Error("Task was executed despite being cancelled")
	}
	mu.Unlock()
}

func TestManager_MultipleTasksOrdering(t *testing.T) {
	m := NewManager(1)
	m.Start(context.Background())
	defer m.Stop()

	var results []int
	var mu sync.Mutex
	record := func(n int) Job {
		return func(ctx context.Context) {
			mu.Lock()
			results = append(results, n)
			mu.Unlock()
		}
	}

	// Schedule tasks in reverse order
	now := time.Now()
	m.Schedule("task3", now.Add(150*time.Millisecond), record(3))
	m.Schedule("task1", now.Add(50*time.Millisecond), record(1))
	m.Schedule("task2", now.Add(100*time.Millisecond), record(2))

	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0] != 1 || results[1] != 2 || results[2] != 3 {
		t.Errorf("Tasks executed in wrong order: %v", results)
	}
}

func TestManager_RescheduleExisting(t *testing.T) {
	m := NewManager(2)
	m.Start(context.Background())
	defer m.Stop()

	count := 0
	var mu sync.Mutex

	m.Schedule("test1", time.Now().Add(100*time.Millisecond), func(ctx context.Context) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Reschedule with same ID (should replace)
	m.Schedule("test1", time.Now().Add(50*time.Millisecond), func(ctx context.Context) {
		mu.Lock()
		count += 10
		mu.Unlock()
	})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	if count != 10 {
		t.Errorf("Expected count=10 (only second task), got %d", count)
	}
	mu.Unlock()
}

func TestManager_StopCancelsJobContext(t *testing.T) {
	m := NewManager(1)
	m.Start(context.Background())

	started := make(chan struct{})
	finished := make(chan struct{})
	m.Schedule("long", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	})

	<-started
	m.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running job saw cancellation")
	}

	if err := m.Schedule("late", time.Now(), func(ctx context.Context) {}); err != ErrManagerStopped {
		t.Errorf("Expected ErrManagerStopped, got %v", err)
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(5)
	m.Start(context.Background())
	defer m.Stop()

	m.Schedule("task1", time.Now().Add(1*time.Hour), func(ctx context.Context) {})
	m.Schedule("task2", time.Now().Add(2*time.Hour), func(ctx context.Context) {})
	m.ScheduleDaily("task3", Clock{Hour: 3}, func(ctx context.Context) {})

	stats := m.Stats()
	if stats.ScheduledTasks != 3 {
		t.Errorf("Expected 3 scheduled tasks, got %d", stats.ScheduledTasks)
	}
	if stats.Workers != 5 {
		t.Errorf("Expected 5 workers, got %d", stats.Workers)
	}
}

func TestManager_DailyReschedules(t *testing.T) {
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	m := NewManager(1)
	m.now = func() time.Time { return now }

	if err := m.ScheduleDaily("train", Clock{Hour: 2, Minute: 30}, func(ctx context.Context) {}); err != nil {
		t.Fatalf("ScheduleDaily failed: %v", err)
	}

	next, ok := m.NextRun("train")
	if !ok || !next.Equal(time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)) {
		t.Fatalf("Unexpected first run %v", next)
	}

	if task, _ := m.due(); task != nil {
		t.Fatal("Task fired early")
	}

	now = next
	task, _ := m.due()
	if task == nil || task.id != "train" {
		t.Fatal("Daily task did not fire")
	}

	next, ok = m.NextRun("train")
	if !ok || !next.Equal(time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC)) {
		t.Errorf("Daily task not rescheduled for tomorrow, got %v", next)
	}
}

func TestClock_ParseAndNext(t *testing.T) {
	c, err := ParseClock("23:15")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if c.String() != "23:15" {
		t.Errorf("Expected 23:15, got %s", c)
	}

	now := time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC)
	if got := c.Next(now); !got.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("Next at the exact time should be tomorrow, got %v", got)
	}

	if _, err := ParseClock("25:00"); err == nil {
		t.Error("Expected error for invalid clock")
	}
}

func TestManager_JobCancelsPendingTask(t *testing.T) {
	m := NewManager(2)
	m.Start(context.Background())
	defer m.Stop()

	var mu sync.Mutex
	ran := map[string]bool{}
	mark := func(id string) {
		mu.Lock()
		ran[id] = true
		mu.Unlock()
	}

	m.Schedule("catch-up", time.Now().Add(250*time.Millisecond), func(ctx context.Context) { mark("catch-up") })
	m.Schedule("daily", time.Now().Add(50*time.Millisecond), func(ctx context.Context) {
		m.Cancel("catch-up")
		mark("daily")
	})

	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !ran["daily"] {
		t.Error("daily task did not run")
	}
	if ran["catch-up"] {
		t.Error("cancelled catch-up task ran")
	}
	if s := m.Stats(); s.ExecutedTasks != 1 || s.ScheduledTasks != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}
