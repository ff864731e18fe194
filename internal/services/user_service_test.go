package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/zenithcart/api/internal/domain"
)

type stubTokenIssuer struct {
	issued int
	fail   bool
}

func (s *stubTokenIssuer) Issue(userID, email, role string) (string, time.Time, error) {
	if s.fail {
		return "", time.Time{}, errors.New("boom")
	}
	s.issued++
	return "token-" + userID, time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC), nil
}

func newTestUserService(t *testing.T, users *fakeUserRepo, mailer *fakeMailer) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users:       users,
		Tokens:      &stubTokenIssuer{},
		Mailer:      mailer,
		Clock:       testClock(),
		IDGenerator: sequentialIDs("01USR"),
		BcryptCost:  bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestUserServiceRegister(t *testing.T) {
	users := newFakeUserRepo()
	mailer := &fakeMailer{}
	svc := newTestUserService(t, users, mailer)

	session, err := svc.Register(context.Background(), RegisterCommand{
		FullName: "Asha Rao",
		Email:    "Asha@Example.com",
		Password: "correcthorse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if session.Token == "" {
		t.Fatal("expected a session token")
	}
	if session.User.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %s", session.User.Email)
	}
	if session.User.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s", session.User.Role)
	}
	if session.User.PasswordHash != "" {
		t.Fatal("session must not leak the password hash")
	}

	stored := users.users[session.User.ID]
	if stored.PasswordHash == "" || stored.PasswordHash == "correcthorse" {
		t.Fatal("expected stored password hash")
	}
	if len(mailer.welcomes) != 1 || mailer.welcomes[0] != "asha@example.com" {
		t.Fatalf("expected welcome email, got %+v", mailer.welcomes)
	}

	// Same email again, regardless of case.
	if _, err := svc.Register(context.Background(), RegisterCommand{
		FullName: "Other", Email: "ASHA@example.com", Password: "correcthorse",
	}); !errors.Is(err, ErrUserEmailTaken) {
		t.Fatalf("expected ErrUserEmailTaken, got %v", err)
	}
}

func TestUserServiceRegisterValidation(t *testing.T) {
	svc := newTestUserService(t, newFakeUserRepo(), &fakeMailer{})

	cases := []struct {
		name string
		cmd  RegisterCommand
	}{
		{name: "missing name", cmd: RegisterCommand{Email: "a@example.com", Password: "correcthorse"}},
		{name: "missing email", cmd: RegisterCommand{FullName: "A", Password: "correcthorse"}},
		{name: "malformed email", cmd: RegisterCommand{FullName: "A", Email: "not-an-email", Password: "correcthorse"}},
		{name: "short password", cmd: RegisterCommand{FullName: "A", Email: "a@example.com", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.cmd); !errors.Is(err, ErrUserInvalidInput) {
				t.Fatalf("expected ErrUserInvalidInput, got %v", err)
			}
		})
	}
}

func TestUserServiceLogin(t *testing.T) {
	users := newFakeUserRepo()
	svc := newTestUserService(t, users, &fakeMailer{})

	if _, err := svc.Register(context.Background(), RegisterCommand{
		FullName: "Asha Rao", Email: "asha@example.com", Password: "correcthorse",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	session, err := svc.Login(context.Background(), LoginCommand{Email: "ASHA@example.com", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.User.Email != "asha@example.com" {
		t.Fatalf("unexpected user %+v", session.User)
	}

	// Wrong password and unknown email look identical to the caller.
	if _, err := svc.Login(context.Background(), LoginCommand{Email: "asha@example.com", Password: "wrong-password"}); !errors.Is(err, ErrUserInvalidCredentials) {
		t.Fatalf("expected ErrUserInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginCommand{Email: "nobody@example.com", Password: "correcthorse"}); !errors.Is(err, ErrUserInvalidCredentials) {
		t.Fatalf("expected ErrUserInvalidCredentials, got %v", err)
	}
}

func TestUserServiceGetProfile(t *testing.T) {
	users := newFakeUserRepo(domain.User{
		ID:           "user-1",
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		PasswordHash: "hash",
		Role:         domain.RoleCustomer,
	})
	svc := newTestUserService(t, users, &fakeMailer{})

	user, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if user.PasswordHash != "" {
		t.Fatal("profile must not include the password hash")
	}
	if _, err := svc.GetProfile(context.Background(), "user-404"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
