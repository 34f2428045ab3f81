package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Genre groups books of the same kind. Genre names are unique.
type Genre struct {
	bun.BaseModel `bun:"table:genres,alias:g" json:"-"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`

	// Books is populated only when the genre is listed together with its books.
	Books []Book `bun:"rel:has-many,join:id=genre_id" json:"books,omitempty"`
}
