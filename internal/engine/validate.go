package engine

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"taskdeck/internal/domain"
)

const maxTitleLen = 100

// TaskInput is the raw payload of a task create or update.
type TaskInput struct {
	Title       string
	Description string
	DueDate     string
	Priority    string
	Status      string
	AssigneeID  string
}

// TaskDraft is a validated task payload. DueDate, when present, is
// normalized to RFC3339.
type TaskDraft struct {
	Title       string
	Description string
	DueDate     *string
	Priority    string
	Status      string
	AssigneeID  string
}

// ValidateCreate checks a creation payload. Pure; returns the first
// failure. A submitted Status is discarded; new tasks always start in TODO.
func ValidateCreate(in TaskInput) (TaskDraft, error) {
	return validateCommon(in)
}

// ValidateUpdate checks an update payload. Status is optional; an empty
// status keeps the task's current one.
func ValidateUpdate(in TaskInput) (TaskDraft, error) {
	draft, err := validateCommon(in)
	if err != nil {
		return TaskDraft{}, err
	}
	if in.Status != "" && !domain.ValidStatus(in.Status) {
		return TaskDraft{}, validationErr("status", "Status must be one of TODO, IN_PROGRESS, REVIEW, COMPLETED")
	}
	draft.Status = in.Status
	return draft, nil
}

func validateCommon(in TaskInput) (TaskDraft, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return TaskDraft{}, validationErr("title", "Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return TaskDraft{}, validationErr("title", "Title must be at most 100 characters")
	}
	due, err := normalizeDueDate(in.DueDate)
	if err != nil {
		return TaskDraft{}, err
	}
	if !domain.ValidPriority(in.Priority) {
		return TaskDraft{}, validationErr("priority", "Priority must be one of LOW, MEDIUM, HIGH")
	}
	return TaskDraft{
		Title:       title,
		Description: in.Description,
		DueDate:     due,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
	}, nil
}

// normalizeDueDate accepts a calendar date or an RFC3339 timestamp.
func normalizeDueDate(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			s := t.UTC().Format(time.RFC3339)
			return &s, nil
		}
	}
	return nil, validationErr("dueDate", "Due date is not a valid date")
}

// RegisterInput is the raw payload of a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func validateRegister(in RegisterInput) error {
	if utf8.RuneCountInString(strings.TrimSpace(in.Name)) < 2 {
		return validationErr("name", "Name must be at least 2 characters")
	}
	if !validEmail(in.Email) {
		return validationErr("email", "Invalid email address")
	}
	if utf8.RuneCountInString(in.Password) < 8 {
		return validationErr("password", "Password must be at least 8 characters")
	}
	return nil
}

// ProfileInput is the raw payload of a profile update. Password fields are
// optional; setting NewPassword requires the correct CurrentPassword.
type ProfileInput struct {
	Name            string
	Email           string
	CurrentPassword string
	NewPassword     string
}

func validateProfile(in ProfileInput) error {
	if utf8.RuneCountInString(strings.TrimSpace(in.Name)) < 2 {
		return validationErr("name", "Name must be at least 2 characters")
	}
	if !validEmail(in.Email) {
		return validationErr("email", "Invalid email address")
	}
	if in.NewPassword != "" && utf8.RuneCountInString(in.NewPassword) < 8 {
		return validationErr("newPassword", "Password must be at least 8 characters")
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
