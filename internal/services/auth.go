package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bookstore-api/apiserver/internal/auth"
	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/bookstore-api/apiserver/types"
	"github.com/google/uuid"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	msgCredentialsRequired = "Email and password are required"
	msgInvalidEmail        = "Invalid email format"
	msgPasswordTooShort    = "Password must be at least 8 characters long"
	msgPasswordTooLong     = "Password must be at most 72 bytes long"
	msgEmailTaken          = "Email already registered"
	msgInvalidCredentials  = "Invalid credentials"
	msgSecretMissing       = "JWT secret not configured"
	msgUnauthorized        = "Unauthorized"
	msgUserNotFound        = "User not found"
)

// IdentityStore defines persistence operations for registered identities.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (types.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (types.User, error)
	Insert(ctx context.Context, user types.User) (types.User, error)
}

// TokenSigner issues session tokens.
type TokenSigner interface {
	Configured() bool
	Issue(userID uuid.UUID, email string) (string, error)
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// IdentitySummary is returned after a successful registration.
type IdentitySummary struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionToken is returned after a successful login.
type SessionToken struct {
	AccessToken string `json:"access_token"`
}

// ProfileSummary is the public view of an identity.
type ProfileSummary struct {
	ID       uuid.UUID `json:"id"`
	Username *string   `json:"username"`
	Email    string    `json:"email"`
}

// AuthService implements registration, login and profile lookup.
type AuthService struct {
	users  IdentityStore
	tokens TokenSigner
}

func NewAuthService(users IdentityStore, tokens TokenSigner) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Register creates a new identity. The email is stored exactly as given.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (IdentitySummary, error) {
	if input.Email == "" || input.Password == "" {
		return IdentitySummary{}, validationError(msgCredentialsRequired)
	}
	if !emailPattern.MatchString(input.Email) {
		return IdentitySummary{}, validationError(msgInvalidEmail)
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return IdentitySummary{}, validationError(msgPasswordTooShort)
	}
	if len(input.Password) > auth.MaxPasswordBytes {
		return IdentitySummary{}, validationError(msgPasswordTooLong)
	}

	// The unique constraint on email is authoritative; this lookup only
	// short-circuits the common case before paying for a hash.
	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return IdentitySummary{}, conflictError(msgEmailTaken)
	} else if !errors.Is(err, store.ErrNotFound) {
		return IdentitySummary{}, internalError(err)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return IdentitySummary{}, validationError(msgPasswordTooLong)
		}
		return IdentitySummary{}, internalError(err)
	}

	var username *string
	if trimmed := strings.TrimSpace(input.Username); trimmed != "" {
		username = &trimmed
	}

	user, err := s.users.Insert(ctx, types.User{
		ID:           uuid.New(),
		Email:        input.Email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return IdentitySummary{}, conflictError(msgEmailTaken)
		}
		return IdentitySummary{}, internalError(err)
	}

	return IdentitySummary{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}

// Login verifies credentials and issues a session token. Unknown emails and
// wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (SessionToken, error) {
	if email == "" || password == "" {
		return SessionToken{}, validationError(msgCredentialsRequired)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SessionToken{}, authError(msgInvalidCredentials)
		}
		return SessionToken{}, internalError(err)
	}

	if !auth.ComparePassword(user.PasswordHash, password) {
		return SessionToken{}, authError(msgInvalidCredentials)
	}

	if !s.tokens.Configured() {
		return SessionToken{}, configError(msgSecretMissing, auth.ErrSecretNotConfigured)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		if errors.Is(err, auth.ErrSecretNotConfigured) {
			return SessionToken{}, configError(msgSecretMissing, err)
		}
		return SessionToken{}, internalError(err)
	}

	return SessionToken{AccessToken: token}, nil
}

// GetProfile returns the public view of the identity. A nil id means the
// caller was never authenticated.
func (s *AuthService) GetProfile(ctx context.Context, identityID *uuid.UUID) (ProfileSummary, error) {
	if identityID == nil {
		return ProfileSummary{}, authError(msgUnauthorized)
	}

	user, err := s.users.FindByID(ctx, *identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProfileSummary{}, notFoundError(msgUserNotFound)
		}
		return ProfileSummary{}, internalError(err)
	}

	return ProfileSummary{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}
