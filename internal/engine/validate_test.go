package engine_test

import (
	"errors"
	"strings"
	"testing"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
)

func TestValidateCreate(t *testing.T) {
	cases := []struct {
		name      string
		in        engine.TaskInput
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing title",
			in:        engine.TaskInput{Priority: domain.PriorityLow},
			wantField: "title",
			wantMsg:   "Title is required",
		},
		{
			name:      "blank title",
			in:        engine.TaskInput{Title: "   ", Priority: domain.PriorityLow},
			wantField: "title",
			wantMsg:   "Title is required",
		},
		{
			name:      "title too long",
			in:        engine.TaskInput{Title: strings.Repeat("x", 101), Priority: domain.PriorityLow},
			wantField: "title",
			wantMsg:   "Title must be at most 100 characters",
		},
		{
			name:      "bad due date",
			in:        engine.TaskInput{Title: "ok", DueDate: "next tuesday", Priority: domain.PriorityLow},
			wantField: "dueDate",
			wantMsg:   "Due date is not a valid date",
		},
		{
			name:      "bad priority",
			in:        engine.TaskInput{Title: "ok", Priority: "URGENT"},
			wantField: "priority",
			wantMsg:   "Priority must be one of LOW, MEDIUM, HIGH",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.ValidateCreate(tc.in)
			var ve engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tc.wantField || ve.Message != tc.wantMsg {
				t.Fatalf("got %s/%q, want %s/%q", ve.Field, ve.Message, tc.wantField, tc.wantMsg)
			}
		})
	}
}

func TestValidateCreateNormalizesInput(t *testing.T) {
	draft, err := engine.ValidateCreate(engine.TaskInput{
		Title:    "  padded title  ",
		DueDate:  "2024-03-05",
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatal(err)
	}
	if draft.Title != "padded title" {
		t.Fatalf("title = %q", draft.Title)
	}
	if draft.DueDate == nil || *draft.DueDate != "2024-03-05T00:00:00Z" {
		t.Fatalf("due date = %v", draft.DueDate)
	}

	// 100 runes, not bytes.
	if _, err := engine.ValidateCreate(engine.TaskInput{
		Title:    strings.Repeat("ä", 100),
		Priority: domain.PriorityLow,
	}); err != nil {
		t.Fatalf("100-rune title rejected: %v", err)
	}
}

func TestValidateCreateDiscardsStatus(t *testing.T) {
	draft, err := engine.ValidateCreate(engine.TaskInput{
		Title:    "ok",
		Priority: domain.PriorityLow,
		Status:   domain.StatusCompleted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if draft.Status != "" {
		t.Fatalf("status = %q, want it dropped", draft.Status)
	}
}

func TestValidateUpdateStatus(t *testing.T) {
	draft, err := engine.ValidateUpdate(engine.TaskInput{
		Title:    "ok",
		Priority: domain.PriorityMedium,
		Status:   domain.StatusReview,
	})
	if err != nil {
		t.Fatal(err)
	}
	if draft.Status != domain.StatusReview {
		t.Fatalf("status = %q", draft.Status)
	}

	// Empty status means "keep the current one".
	draft, err = engine.ValidateUpdate(engine.TaskInput{Title: "ok", Priority: domain.PriorityMedium})
	if err != nil || draft.Status != "" {
		t.Fatalf("empty status: draft=%+v err=%v", draft, err)
	}

	_, err = engine.ValidateUpdate(engine.TaskInput{Title: "ok", Priority: domain.PriorityMedium, Status: "ARCHIVED"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
}
