package server

import (
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	CurrentPassword *string `json:"current_password,omitempty"`
	NewPassword     *string `json:"new_password,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Priority    string  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type UpdateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Priority    string  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Status      *string `json:"status,omitempty" enum:"TODO,IN_PROGRESS,REVIEW,COMPLETED"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"TODO,IN_PROGRESS,REVIEW,COMPLETED"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Image     string `json:"image,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	Priority    string  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Status      string  `json:"status" enum:"TODO,IN_PROGRESS,REVIEW,COMPLETED"`
	CreatorID   string  `json:"creator_id"`
	AssigneeID  string  `json:"assignee_id"`
	Overdue     bool    `json:"overdue"`
	DueSoon     bool    `json:"due_soon"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type NotificationResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	LinkTo    string `json:"link_to,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// taskResponse attaches the derived temporal classifications; they are
// computed per request and never persisted.
func taskResponse(t domain.Task, now time.Time, dueSoonDays int) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
		CreatorID:   t.CreatorID,
		AssigneeID:  t.AssigneeID,
		Overdue:     engine.IsOverdue(t, now),
		DueSoon:     engine.IsDueSoon(t, now, dueSoonDays),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task, now time.Time, dueSoonDays int) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskResponse(t, now, dueSoonDays))
	}
	return res
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse(n)
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	res := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		res = append(res, notificationResponse(n))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse(e)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
