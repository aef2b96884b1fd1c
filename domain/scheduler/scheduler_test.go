package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(slog.Default())

	if s.cron == nil {
		t.Error("Scheduler cron should not be nil")
	}
	if s.tasks == nil {
		t.Error("Scheduler tasks map should not be nil")
	}
	if s.IsRunning() {
		t.Error("New scheduler should not be running")
	}
}

func TestScheduler_AddAndListTasks(t *testing.T) {
	s := NewScheduler(slog.Default())

	if got := s.ListTasks(); len(got) != 0 {
		t.Errorf("New scheduler should have 0 tasks, got %d", len(got))
	}

	dummyTask := func(ctx context.Context) error { return nil }

	if err := s.AddCronTask("task-a", "@every 30m", dummyTask); err != nil {
		t.Fatalf("Failed to add task-a: %v", err)
	}
	if err := s.AddIntervalTask("task-b", 15*time.Minute, dummyTask); err != nil {
		t.Fatalf("Failed to add task-b: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}

	names := make(map[string]bool)
	for _, name := range tasks {
		names[name] = true
	}
	if !names["task-a"] || !names["task-b"] {
		t.Errorf("Expected task-a and task-b, got %v", tasks)
	}
}

func TestScheduler_ReplaceExisting(t *testing.T) {
	s := NewScheduler(slog.Default())

	dummyTask := func(ctx context.Context) error { return nil }

	if err := s.AddIntervalTask("task1", time.Hour, dummyTask); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}
	if err := s.AddIntervalTask("task1", 30*time.Minute, dummyTask); err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	if tasks := s.ListTasks(); len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_RemoveTask(t *testing.T) {
	s := NewScheduler(slog.Default())

	dummyTask := func(ctx context.Context) error { return nil }

	if err := s.AddIntervalTask("task1", time.Hour, dummyTask); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	s.RemoveTask("task1")
	if tasks := s.ListTasks(); len(tasks) != 0 {
		t.Errorf("Expected 0 tasks after remove, got %d", len(tasks))
	}

	// Removing a missing task is a no-op.
	s.RemoveTask("does-not-exist")
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(slog.Default())

	err := s.AddCronTask("task1", "not a valid schedule", func(ctx context.Context) error { return nil })
	if err == nil {
		t.Error("Expected error for invalid schedule, got nil")
	}
	if tasks := s.ListTasks(); len(tasks) != 0 {
		t.Errorf("Expected 0 tasks after failed add, got %d", len(tasks))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(slog.Default())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Scheduler should be running after Start")
	}

	// Start is idempotent.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("Scheduler should not be running after Stop")
	}
}

func TestScheduler_RunsIntervalTask(t *testing.T) {
	s := NewScheduler(slog.Default())

	ran := make(chan struct{}, 1)
	task := func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}

	if err := s.AddIntervalTask("tick", 50*time.Millisecond, task); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Interval task did not run")
	}
}
