package engine_test

import (
	"errors"
	"testing"

	"taskdeck/internal/engine"
)

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name      string
		in        engine.RegisterInput
		wantField string
	}{
		{"short name", engine.RegisterInput{Name: "A", Email: "a@example.com", Password: "long enough"}, "name"},
		{"bad email", engine.RegisterInput{Name: "Alice", Email: "not-an-email", Password: "long enough"}, "email"},
		{"short password", engine.RegisterInput{Name: "Alice", Email: "a@example.com", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.Register(env.Ctx, tc.in)
			var ve engine.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.wantField {
				t.Fatalf("expected %s validation error, got %v", tc.wantField, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	registerUser(t, env, "Alice", "alice@example.com")

	// Email uniqueness is case-insensitive; no second row is written.
	_, err := env.Engine.Register(env.Ctx, engine.RegisterInput{
		Name:     "Impostor",
		Email:    "Alice@Example.com",
		Password: "another pass",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
	users, err := env.Engine.Repo.ListUsers(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %d, want 1", len(users))
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	u, err := env.Engine.Authenticate(env.Ctx, "Alice@example.com", "correct horse")
	if err != nil || u.ID != alice.ID {
		t.Fatalf("authenticate: %v", err)
	}

	// Wrong password and unknown email fail identically.
	if _, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ghost@example.com", "correct horse"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown email: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	u, err := env.Engine.UpdateProfile(env.Ctx, alice.ID, engine.ProfileInput{
		Name:  "Alice B.",
		Email: "alice.b@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "Alice B." || u.Email != "alice.b@example.com" {
		t.Fatalf("profile not applied: %+v", u)
	}
	// Old password still works after a name/email-only edit.
	if _, err := env.Engine.Authenticate(env.Ctx, u.Email, "correct horse"); err != nil {
		t.Fatalf("authenticate after edit: %v", err)
	}
}

func TestUpdateProfileEmailConflict(t *testing.T) {
	env := newTestEnv(t)
	registerUser(t, env, "Alice", "alice@example.com")
	bob := registerUser(t, env, "Bob", "bob@example.com")

	_, err := env.Engine.UpdateProfile(env.Ctx, bob.ID, engine.ProfileInput{
		Name:  "Bob",
		Email: "alice@example.com",
	})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateProfilePasswordChange(t *testing.T) {
	env := newTestEnv(t)
	alice := registerUser(t, env, "Alice", "alice@example.com")

	_, err := env.Engine.UpdateProfile(env.Ctx, alice.ID, engine.ProfileInput{
		Name:            "Alice",
		Email:           "alice@example.com",
		CurrentPassword: "wrong",
		NewPassword:     "brand new pass",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "currentPassword" {
		t.Fatalf("expected currentPassword error, got %v", err)
	}

	if _, err := env.Engine.UpdateProfile(env.Ctx, alice.ID, engine.ProfileInput{
		Name:            "Alice",
		Email:           "alice@example.com",
		CurrentPassword: "correct horse",
		NewPassword:     "brand new pass",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "brand new pass"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "alice@example.com", "correct horse"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
}
