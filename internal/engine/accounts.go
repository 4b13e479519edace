package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdeck/internal/domain"
	"taskdeck/internal/events"
	"taskdeck/internal/repo"
)

func (e Engine) bcryptCost() int {
	if e.Config != nil && e.Config.Auth.BcryptCost > 0 {
		return e.Config.Auth.BcryptCost
	}
	return bcrypt.DefaultCost
}

// Register creates a new user. Emails are unique: a taken email yields a
// ConflictError and no row is written.
func (e Engine) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if err := validateRegister(in); err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, ConflictError{Message: "User with this email already exists"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), e.bcryptCost())
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	u := domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.appendEvent(ctx, tx, "user.registered", "user", u.ID, u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate resolves an email/password pair to a user.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// UpdateProfile edits the identity's own name, email, and optionally the
// password. Changing the password requires the correct current password.
func (e Engine) UpdateProfile(ctx context.Context, identity string, in ProfileInput) (domain.User, error) {
	if err := validateProfile(in); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, identity)
	if err != nil {
		return domain.User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != u.Email {
		other, err := e.Repo.GetUserByEmail(ctx, email)
		if err == nil && other.ID != u.ID {
			return domain.User{}, ConflictError{Message: "Email already in use"}
		}
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, err
		}
	}
	if in.NewPassword != "" {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return domain.User{}, validationErr("currentPassword", "Current password is incorrect")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), e.bcryptCost())
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	u.Name = strings.TrimSpace(in.Name)
	u.Email = email
	u.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := e.appendEvent(ctx, tx, "user.updated", "user", u.ID, u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
