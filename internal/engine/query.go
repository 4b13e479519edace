package engine

import (
	"context"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
)

// TaskQuery narrows ListTasks. All fields are optional and AND-combined;
// Query is a case-insensitive substring match on title or description.
type TaskQuery struct {
	Status   string
	Priority string
	Query    string
	Sort     string
}

// ListTasks returns the tasks visible to identity, filtered and sorted.
// A store failure degrades to an empty result: callers always get a list,
// and the outage is only visible in the log.
func (e Engine) ListTasks(ctx context.Context, identity string, q TaskQuery) []domain.Task {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
		Identity: identity,
		Status:   q.Status,
		Priority: q.Priority,
		Query:    q.Query,
		Sort:     q.Sort,
	})
	if err != nil {
		e.Log.Error().Err(err).Str("identity", identity).Msg("task query failed, returning empty list")
		return nil
	}
	return tasks
}

// RecentTasks returns the identity's most recently updated tasks.
func (e Engine) RecentTasks(ctx context.Context, identity string, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 5
	}
	return e.Repo.RecentTasks(ctx, identity, limit)
}

// TaskStats is the dashboard summary for one identity.
type TaskStats struct {
	Assigned  int `json:"assigned"`
	Created   int `json:"created"`
	Overdue   int `json:"overdue"`
	Completed int `json:"completed"`
}

// Stats computes the dashboard counters: open tasks assigned to identity,
// tasks identity created, assigned tasks past their due date, and assigned
// tasks completed.
func (e Engine) Stats(ctx context.Context, identity string) (TaskStats, error) {
	var s TaskStats
	var err error
	now := e.now().UTC().Format(time.RFC3339)
	if s.Assigned, err = e.Repo.CountTasks(ctx, repo.CountFilters{AssigneeID: identity, NotStatus: domain.StatusCompleted}); err != nil {
		return s, err
	}
	if s.Created, err = e.Repo.CountTasks(ctx, repo.CountFilters{CreatorID: identity}); err != nil {
		return s, err
	}
	if s.Overdue, err = e.Repo.CountTasks(ctx, repo.CountFilters{AssigneeID: identity, NotStatus: domain.StatusCompleted, DueBefore: now}); err != nil {
		return s, err
	}
	if s.Completed, err = e.Repo.CountTasks(ctx, repo.CountFilters{AssigneeID: identity, Status: domain.StatusCompleted}); err != nil {
		return s, err
	}
	return s, nil
}

// IsOverdue reports whether the task's due date has passed and the task is
// not completed. Computed at read time, never stored.
func IsOverdue(t domain.Task, now time.Time) bool {
	if t.DueDate == nil || t.Status == domain.StatusCompleted {
		return false
	}
	due, err := time.Parse(time.RFC3339, *t.DueDate)
	if err != nil {
		return false
	}
	return due.Before(now)
}

// IsDueSoon reports whether the task is due within the window, is not yet
// overdue, and is not completed.
func IsDueSoon(t domain.Task, now time.Time, windowDays int) bool {
	if t.DueDate == nil || t.Status == domain.StatusCompleted {
		return false
	}
	due, err := time.Parse(time.RFC3339, *t.DueDate)
	if err != nil {
		return false
	}
	if due.Before(now) {
		return false
	}
	return due.Before(now.AddDate(0, 0, windowDays))
}
