package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Book is a catalog entry. Every book belongs to exactly one genre.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b" json:"-"`

	// ID is the unique identifier of the book.
	ID uuid.UUID `bun:"id,pk,type:uuid" json:"id"`

	// Title is the unique, human-readable name of the book.
	Title string `bun:"title,notnull,unique" json:"title"`

	// Writer is the author of the book.
	Writer string `bun:"writer,notnull" json:"writer"`

	Publisher       *string `bun:"publisher" json:"publisher"`
	PublicationYear *int    `bun:"publication_year" json:"publication_year"`
	Description     *string `bun:"description" json:"description"`

	// Price is the selling price in the store currency.
	Price float64 `bun:"price,notnull" json:"price"`

	// StockQuantity is the number of copies available.
	StockQuantity int `bun:"stock_quantity,notnull" json:"stock_quantity"`

	// GenreID references the genre the book belongs to.
	GenreID uuid.UUID `bun:"genre_id,notnull,type:uuid" json:"genre_id"`
	Genre   *Genre    `bun:"rel:belongs-to,join:genre_id=id" json:"genre,omitempty"`

	// CoverKey is the object storage key of the cover image, if one was uploaded.
	CoverKey *string `bun:"cover_key" json:"cover_key,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// BookInput carries the writable fields of a book. Nil fields are absent:
// required on create, left unchanged on update.
type BookInput struct {
	Title           *string    `json:"title"`
	Writer          *string    `json:"writer"`
	Publisher       *string    `json:"publisher"`
	PublicationYear *int       `json:"publication_year"`
	Description     *string    `json:"description"`
	Price           *float64   `json:"price"`
	StockQuantity   *int       `json:"stock_quantity"`
	GenreID         *uuid.UUID `json:"genre_id"`
}

// Empty reports whether no field is set.
func (in BookInput) Empty() bool {
	return in.Title == nil &&
		in.Writer == nil &&
		in.Publisher == nil &&
		in.PublicationYear == nil &&
		in.Description == nil &&
		in.Price == nil &&
		in.StockQuantity == nil &&
		in.GenreID == nil
}
