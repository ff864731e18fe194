package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/zenithcart/api/internal/domain"
	pfirestore "github.com/zenithcart/api/internal/platform/firestore"
	"github.com/zenithcart/api/internal/repositories"
)

const usersCollection = "users"

// UserRepository persists account documents within Firestore.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the user document keyed by the user ID.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Set(ctx, id, encodeUser(user))
	return err
}

// Update replaces the stored user document.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	return r.Insert(ctx, user)
}

// FindByID loads the user document.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc.ID, doc.Data, doc.UpdateTime), nil
}

// FindByEmail locates the account registered with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	normalised := strings.ToLower(strings.TrimSpace(email))
	if normalised == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.NewNotFoundError("users.findByEmail", normalised)
	}
	return decodeUser(docs[0].ID, docs[0].Data, docs[0].UpdateTime), nil
}

func encodeUser(user domain.User) userDocument {
	return userDocument{
		FullName:     strings.TrimSpace(user.FullName),
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		IsVerified:   user.IsVerified,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func decodeUser(id string, doc userDocument, updateTime time.Time) domain.User {
	role := domain.UserRole(doc.Role)
	if role == "" {
		role = domain.RoleCustomer
	}
	return domain.User{
		ID:           id,
		FullName:     doc.FullName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Role:         role,
		IsVerified:   doc.IsVerified,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    firstNonZeroTime(updateTime, doc.UpdatedAt),
	}
}

type userDocument struct {
	FullName     string    `firestore:"fullName"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	Role         string    `firestore:"role"`
	IsVerified   bool      `firestore:"isVerified"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
