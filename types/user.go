package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User represents a registered account in the bookstore.
// It holds the identity key, the optional display label and the
// password hash used for login verification.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	// ID is the unique identifier of the user. It is generated when the
	// account is created and never changes.
	ID uuid.UUID `bun:"id,pk,type:uuid" json:"id"`

	// Email is the unique identity key of the account, stored as given.
	Email string `bun:"email,notnull,unique" json:"email"`

	// Username is an optional display label. It is not unique.
	Username *string `bun:"username" json:"username"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `bun:"password_hash,notnull" json:"-"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
