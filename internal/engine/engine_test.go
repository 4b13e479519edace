package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Options{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.BcryptCost = 4
	eng := engine.New(conn, cfg, zerolog.Nop())
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func registerUser(t *testing.T, env testEnv, name, email string) domain.User {
	t.Helper()
	u, err := env.Engine.Register(env.Ctx, engine.RegisterInput{
		Name:     name,
		Email:    email,
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func createTask(t *testing.T, env testEnv, identity string, in engine.TaskInput) domain.Task {
	t.Helper()
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	task, err := env.Engine.CreateTask(env.Ctx, identity, in)
	if err != nil {
		t.Fatalf("create task %q: %v", in.Title, err)
	}
	return task
}

func TestCreateTaskDefaultsToSelfAssignment(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Write report"})
	if task.CreatorID != alice.ID || task.AssigneeID != alice.ID {
		t.Fatalf("expected self-assignment, got creator=%s assignee=%s", task.CreatorID, task.AssigneeID)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("new task status = %s, want TODO", task.Status)
	}

	// Self-assignment must not notify.
	items, err := env.Engine.Notifications(env.Ctx, alice.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no notifications, got %d", len(items))
	}
}

func TestCreateTaskIgnoresSubmittedStatus(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	task, err := env.Engine.CreateTask(env.Ctx, alice.ID, engine.TaskInput{
		Title:    "Sneaky",
		Priority: domain.PriorityLow,
		Status:   domain.StatusCompleted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("status = %q, want %q", task.Status, domain.StatusTodo)
	}
}

func TestCreateTaskUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	_, err := env.Engine.CreateTask(env.Ctx, alice.ID, engine.TaskInput{
		Title:      "Orphan",
		Priority:   domain.PriorityMedium,
		AssigneeID: "nobody",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "assigneeId" {
		t.Fatalf("expected assigneeId validation error, got %v", err)
	}
}

func TestAssignmentNotifications(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")
	carol := registerUser(t, env, "Carol", "carol@example.com")

	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Review PR", AssigneeID: bob.ID})

	items, err := env.Engine.Notifications(env.Ctx, bob.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("assignee notifications = %d, want 1", len(items))
	}
	if items[0].Type != "TASK_ASSIGNED" || items[0].LinkTo != "/tasks/"+task.ID {
		t.Fatalf("unexpected notification: %+v", items[0])
	}

	// Editing without changing the assignee must not notify again.
	in := engine.TaskInput{Title: "Review PR please", Priority: task.Priority, AssigneeID: bob.ID}
	if _, err := env.Engine.UpdateTask(env.Ctx, alice.ID, task.ID, in); err != nil {
		t.Fatal(err)
	}
	items, _ = env.Engine.Notifications(env.Ctx, bob.ID, 10)
	if len(items) != 1 {
		t.Fatalf("after no-op reassign, notifications = %d, want 1", len(items))
	}

	// Reassigning notifies the new assignee exactly once.
	in.AssigneeID = carol.ID
	if _, err := env.Engine.UpdateTask(env.Ctx, alice.ID, task.ID, in); err != nil {
		t.Fatal(err)
	}
	items, _ = env.Engine.Notifications(env.Ctx, carol.ID, 10)
	if len(items) != 1 {
		t.Fatalf("new assignee notifications = %d, want 1", len(items))
	}
}

func TestUpdateTaskCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")

	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Locked down", AssigneeID: bob.ID})

	_, err := env.Engine.UpdateTask(env.Ctx, bob.ID, task.ID, engine.TaskInput{
		Title:    "Hijacked",
		Priority: domain.PriorityHigh,
	})
	var ae engine.AuthorizationError
	if !errors.As(err, &ae) || ae.Action != "edit" {
		t.Fatalf("expected edit authorization error, got %v", err)
	}

	// The task is untouched.
	got, err := env.Engine.GetTask(env.Ctx, alice.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Locked down" || got.Priority != domain.PriorityMedium {
		t.Fatalf("task modified by rejected edit: %+v", got)
	}
}

func TestDeleteTaskCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")

	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Keep me", AssigneeID: bob.ID})

	err := env.Engine.DeleteTask(env.Ctx, bob.ID, task.ID)
	var ae engine.AuthorizationError
	if !errors.As(err, &ae) || ae.Action != "delete" {
		t.Fatalf("expected delete authorization error, got %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, alice.ID, task.ID); err != nil {
		t.Fatalf("task should survive rejected delete: %v", err)
	}

	if err := env.Engine.DeleteTask(env.Ctx, alice.ID, task.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, alice.ID, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetTaskVisibility(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")
	carol := registerUser(t, env, "Carol", "carol@example.com")

	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Shared", AssigneeID: bob.ID})

	if _, err := env.Engine.GetTask(env.Ctx, bob.ID, task.ID); err != nil {
		t.Fatalf("assignee should see task: %v", err)
	}
	_, err := env.Engine.GetTask(env.Ctx, carol.ID, task.ID)
	var ae engine.AuthorizationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected authorization error for outsider, got %v", err)
	}
}

func TestStatusIsUnconstrained(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Jumpy"})

	// Any valid status is reachable from any other, in any order.
	for _, status := range []string{
		domain.StatusCompleted,
		domain.StatusInProgress,
		domain.StatusReview,
		domain.StatusTodo,
		domain.StatusCompleted,
	} {
		got, err := env.Engine.SetStatus(env.Ctx, alice.ID, task.ID, status)
		if err != nil {
			t.Fatalf("set status %s: %v", status, err)
		}
		if got.Status != status {
			t.Fatalf("status = %s, want %s", got.Status, status)
		}
	}

	_, err := env.Engine.SetStatus(env.Ctx, alice.ID, task.ID, "DONE")
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
}

func TestCompleteAndReopen(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Cycle"})

	env.Engine.Now = func() time.Time { return time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC) }
	done, err := env.Engine.MarkCompleted(env.Ctx, alice.ID, task.ID)
	if err != nil || done.Status != domain.StatusCompleted {
		t.Fatalf("complete: status=%s err=%v", done.Status, err)
	}
	if done.UpdatedAt == task.UpdatedAt {
		t.Fatalf("updatedAt not refreshed by status change")
	}
	back, err := env.Engine.Reopen(env.Ctx, alice.ID, task.ID)
	if err != nil || back.Status != domain.StatusTodo {
		t.Fatalf("reopen: status=%s err=%v", back.Status, err)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")

	// Assigned to Alice, overdue.
	createTask(t, env, bob.ID, engine.TaskInput{Title: "Late", AssigneeID: alice.ID, DueDate: "2024-05-01"})
	// Assigned to Alice, future due date.
	createTask(t, env, bob.ID, engine.TaskInput{Title: "On time", AssigneeID: alice.ID, DueDate: "2024-07-01"})
	// Created by Alice, assigned away.
	createTask(t, env, alice.ID, engine.TaskInput{Title: "Delegated", AssigneeID: bob.ID})
	// Assigned to Alice and completed; past due no longer counts as overdue.
	done := createTask(t, env, bob.ID, engine.TaskInput{Title: "Done late", AssigneeID: alice.ID, DueDate: "2024-04-01"})
	if _, err := env.Engine.MarkCompleted(env.Ctx, alice.ID, done.ID); err != nil {
		t.Fatal(err)
	}

	stats, err := env.Engine.Stats(env.Ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := engine.TaskStats{Assigned: 2, Created: 1, Overdue: 1, Completed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestEventLog(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	task := createTask(t, env, alice.ID, engine.TaskInput{Title: "Audited"})
	if _, err := env.Engine.MarkCompleted(env.Ctx, alice.ID, task.ID); err != nil {
		t.Fatal(err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "task", task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("task events = %d, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != "task.status.changed" || events[1].Type != "task.created" {
		t.Fatalf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].ActorID != alice.ID {
		t.Fatalf("event actor = %s, want %s", events[0].ActorID, alice.ID)
	}
	// Event timestamps come from the same clock as the task timestamps.
	for _, evt := range events {
		if evt.TS != "2024-06-01T12:00:00Z" {
			t.Fatalf("event ts = %q, want the injected clock", evt.TS)
		}
	}
}
