package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/repositories"
)

const minPasswordLength = 8

var (
	// ErrUserInvalidInput indicates the caller supplied invalid input parameters.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserUnavailable indicates the account backend is currently unavailable.
	ErrUserUnavailable = errors.New("user service: unavailable")
	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("user service: not found")
	// ErrUserEmailTaken indicates the email is already registered.
	ErrUserEmailTaken = errors.New("user service: email already registered")
	// ErrUserInvalidCredentials indicates the email/password pair did not match.
	ErrUserInvalidCredentials = errors.New("user service: invalid credentials")
)

// sessionIssuer signs session tokens for authenticated accounts.
type sessionIssuer interface {
	Issue(userID, email, role string) (string, time.Time, error)
}

// UserServiceDeps wires the dependencies required by the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      sessionIssuer
	Mailer      NotificationSender
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
	// BcryptCost overrides the hashing cost. Zero selects the library default.
	BcryptCost int
}

type userService struct {
	users  repositories.UserRepository
	tokens sessionIssuer
	mailer NotificationSender
	now    func() time.Time
	newID  func() string
	logger func(ctx context.Context, event string, fields map[string]any)
	cost   int
}

// NewUserService constructs a UserService validating required dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	cost := deps.BcryptCost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	return &userService{
		users:  deps.Users,
		tokens: deps.Tokens,
		mailer: deps.Mailer,
		now:    func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
		cost:   cost,
	}, nil
}

var _ UserService = (*userService)(nil)

// Register creates a customer account and opens a session for it.
func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error) {
	if s == nil || s.users == nil {
		return AuthSession{}, ErrUserUnavailable
	}

	fullName := strings.TrimSpace(cmd.FullName)
	email, err := normaliseEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	if fullName == "" {
		return AuthSession{}, fmt.Errorf("%w: full name is required", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return AuthSession{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthSession{}, ErrUserEmailTaken
	} else if !isRepoNotFound(err) {
		return AuthSession{}, s.translateRepoError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.cost)
	if err != nil {
		return AuthSession{}, fmt.Errorf("user service: hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           "usr_" + s.newID(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		if isRepoConflict(err) {
			return AuthSession{}, ErrUserEmailTaken
		}
		return AuthSession{}, s.translateRepoError(err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, user.Email, user.FullName); err != nil {
			s.logger(ctx, "user.welcome_email_failed", map[string]any{
				"userID": user.ID,
				"error":  err.Error(),
			})
		}
	}
	return s.openSession(user)
}

// Login authenticates an email/password pair. Unknown emails and wrong
// passwords produce the same error so accounts cannot be enumerated.
func (s *userService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	if s == nil || s.users == nil {
		return AuthSession{}, ErrUserUnavailable
	}

	email, err := normaliseEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	if cmd.Password == "" {
		return AuthSession{}, fmt.Errorf("%w: password is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthSession{}, ErrUserInvalidCredentials
		}
		return AuthSession{}, s.translateRepoError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)) != nil {
		return AuthSession{}, ErrUserInvalidCredentials
	}
	return s.openSession(user)
}

// GetProfile loads an account without its credential material.
func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return User{}, ErrUserInvalidInput
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) openSession(user domain.User) (AuthSession, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		return AuthSession{}, fmt.Errorf("user service: issue token: %w", err)
	}
	user.PasswordHash = ""
	return AuthSession{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

func (s *userService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsConflict():
			return ErrUserEmailTaken
		}
	}
	return ErrUserUnavailable
}

func normaliseEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: malformed email", ErrUserInvalidInput)
	}
	return trimmed, nil
}
