package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/services"
)

func newAuthRouter(users services.UserService) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", NewAuthHandlers(testAuthenticator(), users).Routes)
	return r
}

func TestRegisterCreatesSession(t *testing.T) {
	var gotCmd services.RegisterCommand
	users := &stubUserService{
		register: func(_ context.Context, cmd services.RegisterCommand) (services.AuthSession, error) {
			gotCmd = cmd
			return services.AuthSession{
				Token:     "tok_abc",
				ExpiresAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				User: services.User{
					ID:       "user-1",
					FullName: "Asha Rao",
					Email:    cmd.Email,
					Role:     domain.RoleCustomer,
				},
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	body := `{"full_name":"Asha Rao","email":"asha@example.com","password":"s3cret-pass"}`
	newAuthRouter(users).ServeHTTP(rec, authedRequest(http.MethodPost, "/auth/register", "", body))

	assertStatus(t, rec, http.StatusCreated)
	assertBodyContains(t, rec, `"token":"tok_abc"`, `"email":"asha@example.com"`, `"role":"customer"`)
	if gotCmd.Email != "asha@example.com" || gotCmd.Password != "s3cret-pass" {
		t.Fatalf("unexpected register command: %+v", gotCmd)
	}
}

func TestRegisterEmailTaken(t *testing.T) {
	users := &stubUserService{
		register: func(context.Context, services.RegisterCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrUserEmailTaken
		},
	}

	rec := httptest.NewRecorder()
	body := `{"full_name":"Asha","email":"asha@example.com","password":"s3cret-pass"}`
	newAuthRouter(users).ServeHTTP(rec, authedRequest(http.MethodPost, "/auth/register", "", body))

	assertStatus(t, rec, http.StatusConflict)
	assertBodyContains(t, rec, "email_taken")
}

func TestLoginInvalidCredentials(t *testing.T) {
	users := &stubUserService{
		login: func(context.Context, services.LoginCommand) (services.AuthSession, error) {
			return services.AuthSession{}, services.ErrUserInvalidCredentials
		},
	}

	rec := httptest.NewRecorder()
	body := `{"email":"asha@example.com","password":"wrong"}`
	newAuthRouter(users).ServeHTTP(rec, authedRequest(http.MethodPost, "/auth/login", "", body))

	assertStatus(t, rec, http.StatusUnauthorized)
	assertBodyContains(t, rec, "invalid_credentials")
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newAuthRouter(&stubUserService{}).ServeHTTP(rec, authedRequest(http.MethodPost, "/auth/login", "", `{"email":`))
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestMeReturnsProfileForToken(t *testing.T) {
	users := &stubUserService{
		profile: func(_ context.Context, userID string) (services.User, error) {
			return services.User{ID: userID, FullName: "Asha Rao", Email: "asha@example.com", Role: domain.RoleCustomer}, nil
		},
	}

	rec := httptest.NewRecorder()
	newAuthRouter(users).ServeHTTP(rec, authedRequest(http.MethodGet, "/auth/me", customerToken, ""))

	assertStatus(t, rec, http.StatusOK)
	assertBodyContains(t, rec, `"id":"user-1"`, `"full_name":"Asha Rao"`)
}

func TestMeRequiresToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newAuthRouter(&stubUserService{}).ServeHTTP(rec, authedRequest(http.MethodGet, "/auth/me", "", ""))
	assertStatus(t, rec, http.StatusUnauthorized)
}
