package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskdeck/internal/config"
	"taskdeck/internal/domain"
	"taskdeck/internal/events"
	"taskdeck/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// appendEvent writes an audit event stamped with the engine's clock, so
// event timestamps line up with the task and user timestamps in the same
// transaction.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

const notificationTypeAssigned = "TASK_ASSIGNED"

// CreateTask validates the payload and inserts a new TODO task owned by
// identity. An omitted assignee defaults to the creator; assigning someone
// else at creation already notifies them.
func (e Engine) CreateTask(ctx context.Context, identity string, in TaskInput) (domain.Task, error) {
	draft, err := ValidateCreate(in)
	if err != nil {
		return domain.Task{}, err
	}
	assignee := draft.AssigneeID
	if assignee == "" {
		assignee = identity
	}
	if _, err := e.Repo.GetUser(ctx, assignee); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, validationErr("assigneeId", "Assignee does not exist")
		}
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     draft.DueDate,
		Priority:    draft.Priority,
		Status:      domain.StatusTodo,
		CreatorID:   identity,
		AssigneeID:  assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if t.AssigneeID != t.CreatorID {
		if err := e.notifyAssignment(ctx, tx, t, identity); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.appendEvent(ctx, tx, "task.created", "task", t.ID, identity, events.EventPayload{
		"title":    t.Title,
		"priority": t.Priority,
		"assignee": t.AssigneeID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// GetTask returns a task visible to identity: its creator or assignee.
func (e Engine) GetTask(ctx context.Context, identity, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.CreatorID != identity && t.AssigneeID != identity {
		return domain.Task{}, AuthorizationError{Action: "view"}
	}
	return t, nil
}

// UpdateTask applies a full-form edit. Only the creator may edit. When the
// assignee changes, the new assignee gets exactly one notification, written
// in the same transaction as the task row.
func (e Engine) UpdateTask(ctx context.Context, identity, id string, in TaskInput) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.CreatorID != identity {
		return t, AuthorizationError{Action: "edit"}
	}
	draft, err := ValidateUpdate(in)
	if err != nil {
		return t, err
	}
	previousAssignee := t.AssigneeID
	t.Title = draft.Title
	t.Description = draft.Description
	t.DueDate = draft.DueDate
	t.Priority = draft.Priority
	if draft.Status != "" {
		t.Status = draft.Status
	}
	if draft.AssigneeID != "" {
		if _, err := e.Repo.GetUser(ctx, draft.AssigneeID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return t, validationErr("assigneeId", "Assignee does not exist")
			}
			return t, err
		}
		t.AssigneeID = draft.AssigneeID
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, fmt.Errorf("update task: %w", err)
	}
	if t.AssigneeID != previousAssignee {
		if err := e.notifyAssignment(ctx, tx, t, identity); err != nil {
			return t, err
		}
	}
	if err := e.appendEvent(ctx, tx, "task.updated", "task", t.ID, identity, events.EventPayload{
		"status":        t.Status,
		"assignee":      t.AssigneeID,
		"prev_assignee": previousAssignee,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTask removes a task. Only the creator may delete.
func (e Engine) DeleteTask(ctx context.Context, identity, id string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.CreatorID != identity {
		return AuthorizationError{Action: "delete"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, "task.deleted", "task", id, identity, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStatus assigns any legal status value directly. Transitions are
// unconstrained: any status is reachable from any other, and the caller is
// not required to be the assignee.
func (e Engine) SetStatus(ctx context.Context, identity, id, status string) (domain.Task, error) {
	if !domain.ValidStatus(status) {
		return domain.Task{}, validationErr("status", "Status must be one of TODO, IN_PROGRESS, REVIEW, COMPLETED")
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	from := t.Status
	t.Status = status
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, fmt.Errorf("update status: %w", err)
	}
	if err := e.appendEvent(ctx, tx, "task.status.changed", "task", t.ID, identity, events.EventPayload{
		"from": from,
		"to":   status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// MarkCompleted is the quick-action shortcut for status=COMPLETED.
func (e Engine) MarkCompleted(ctx context.Context, identity, id string) (domain.Task, error) {
	return e.SetStatus(ctx, identity, id, domain.StatusCompleted)
}

// Reopen is the quick-action shortcut for status=TODO.
func (e Engine) Reopen(ctx context.Context, identity, id string) (domain.Task, error) {
	return e.SetStatus(ctx, identity, id, domain.StatusTodo)
}

func (e Engine) notifyAssignment(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string) error {
	n := domain.Notification{
		ID:        uuid.New().String(),
		UserID:    t.AssigneeID,
		Title:     "New task assigned",
		Message:   fmt.Sprintf("You have been assigned: %s", t.Title),
		Type:      notificationTypeAssigned,
		LinkTo:    "/tasks/" + t.ID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return e.appendEvent(ctx, tx, "notification.created", "notification", n.ID, actorID, events.EventPayload{
		"user": n.UserID,
		"task": t.ID,
	})
}

// Notifications returns the identity's notifications, newest first.
func (e Engine) Notifications(ctx context.Context, identity string, limit int) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, identity, limit)
}

// MarkNotificationRead marks one of the identity's notifications as read.
func (e Engine) MarkNotificationRead(ctx context.Context, identity, id string) error {
	return e.Repo.MarkNotificationRead(ctx, id, identity)
}

// MarkAllNotificationsRead marks every unread notification of identity read.
func (e Engine) MarkAllNotificationsRead(ctx context.Context, identity string) error {
	return e.Repo.MarkAllNotificationsRead(ctx, identity)
}

// UnreadNotifications counts the identity's unread notifications.
func (e Engine) UnreadNotifications(ctx context.Context, identity string) (int, error) {
	return e.Repo.CountUnreadNotifications(ctx, identity)
}
