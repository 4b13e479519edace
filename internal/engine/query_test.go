package engine_test

import (
	"testing"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
)

func titles(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestListTasksVisibilityUnion(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")
	carol := registerUser(t, env, "Carol", "carol@example.com")

	createTask(t, env, alice.ID, engine.TaskInput{Title: "Alice own"})
	createTask(t, env, alice.ID, engine.TaskInput{Title: "Alice to Bob", AssigneeID: bob.ID})
	createTask(t, env, bob.ID, engine.TaskInput{Title: "Bob own"})

	if got := env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{}); len(got) != 2 {
		t.Fatalf("alice sees %v, want 2 tasks", titles(got))
	}
	// Bob sees it both as assignee and as creator of his own.
	if got := env.Engine.ListTasks(env.Ctx, bob.ID, engine.TaskQuery{}); len(got) != 2 {
		t.Fatalf("bob sees %v, want 2 tasks", titles(got))
	}
	if got := env.Engine.ListTasks(env.Ctx, carol.ID, engine.TaskQuery{}); len(got) != 0 {
		t.Fatalf("carol sees %v, want none", titles(got))
	}
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	a := createTask(t, env, alice.ID, engine.TaskInput{Title: "Fix login bug", Priority: domain.PriorityHigh})
	createTask(t, env, alice.ID, engine.TaskInput{Title: "Ship release", Priority: domain.PriorityHigh})
	createTask(t, env, alice.ID, engine.TaskInput{
		Title:       "Write docs",
		Description: "cover the login flow",
		Priority:    domain.PriorityLow,
	})
	if _, err := env.Engine.SetStatus(env.Ctx, alice.ID, a.ID, domain.StatusInProgress); err != nil {
		t.Fatal(err)
	}

	got := env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Status: domain.StatusInProgress})
	if len(got) != 1 || got[0].Title != "Fix login bug" {
		t.Fatalf("status filter: %v", titles(got))
	}

	got = env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Priority: domain.PriorityHigh})
	if len(got) != 2 {
		t.Fatalf("priority filter: %v", titles(got))
	}

	// Text search matches title or description, case-insensitively.
	got = env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Query: "LOGIN"})
	if len(got) != 2 {
		t.Fatalf("text search: %v", titles(got))
	}

	// Filters are AND-combined.
	got = env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Query: "login", Priority: domain.PriorityHigh})
	if len(got) != 1 || got[0].Title != "Fix login bug" {
		t.Fatalf("combined filters: %v", titles(got))
	}
}

func TestListTasksSorting(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	createTask(t, env, alice.ID, engine.TaskInput{Title: "banana", Priority: domain.PriorityLow, DueDate: "2024-06-10"})
	createTask(t, env, alice.ID, engine.TaskInput{Title: "apple", Priority: domain.PriorityHigh})
	createTask(t, env, alice.ID, engine.TaskInput{Title: "cherry", Priority: domain.PriorityMedium, DueDate: "2024-06-05"})

	got := env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Sort: "title-asc"})
	want := []string{"apple", "banana", "cherry"}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("title-asc: %v", titles(got))
		}
	}

	got = env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Sort: "priority-desc"})
	want = []string{"apple", "cherry", "banana"}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("priority-desc: %v", titles(got))
		}
	}

	// Default sort is due date ascending with undated tasks last; an
	// unknown sort token falls back to it rather than failing.
	for _, sort := range []string{"", "dueDate-asc", "garbage"} {
		got = env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{Sort: sort})
		want = []string{"cherry", "banana", "apple"}
		for i, w := range want {
			if got[i].Title != w {
				t.Fatalf("sort %q: %v", sort, titles(got))
			}
		}
	}
}

func TestListTasksFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")
	createTask(t, env, alice.ID, engine.TaskInput{Title: "Lost to the outage"})

	// A broken store degrades to an empty list instead of an error.
	env.Engine.DB.Close()
	if got := env.Engine.ListTasks(env.Ctx, alice.ID, engine.TaskQuery{}); got != nil {
		t.Fatalf("expected empty result on store failure, got %v", titles(got))
	}
}

func TestRecentTasks(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third", "fourth", "fifth", "sixth"} {
		tick := base.Add(time.Duration(i) * time.Minute)
		env.Engine.Now = func() time.Time { return tick }
		createTask(t, env, alice.ID, engine.TaskInput{Title: title})
	}

	got, err := env.Engine.RecentTasks(env.Ctx, alice.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("default limit: got %d tasks", len(got))
	}
	if got[0].Title != "sixth" || got[4].Title != "second" {
		t.Fatalf("recent order: %v", titles(got))
	}
}

func TestIsOverdueAndDueSoon(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	date := func(s string) *string { return &s }

	cases := []struct {
		name    string
		task    domain.Task
		overdue bool
		dueSoon bool
	}{
		{"no due date", domain.Task{Status: domain.StatusTodo}, false, false},
		{"past due", domain.Task{Status: domain.StatusTodo, DueDate: date("2024-05-30T00:00:00Z")}, true, false},
		{"due tomorrow", domain.Task{Status: domain.StatusTodo, DueDate: date("2024-06-02T00:00:00Z")}, false, true},
		{"due next week", domain.Task{Status: domain.StatusTodo, DueDate: date("2024-06-09T00:00:00Z")}, false, false},
		{"completed past due", domain.Task{Status: domain.StatusCompleted, DueDate: date("2024-05-30T00:00:00Z")}, false, false},
		{"unparseable", domain.Task{Status: domain.StatusTodo, DueDate: date("yesterday")}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.IsOverdue(tc.task, now); got != tc.overdue {
				t.Fatalf("IsOverdue = %v, want %v", got, tc.overdue)
			}
			if got := engine.IsDueSoon(tc.task, now, 3); got != tc.dueSoon {
				t.Fatalf("IsDueSoon = %v, want %v", got, tc.dueSoon)
			}
		})
	}
}
