package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ayush/personal-library/internal/common"
)

// BookStatus is the reading state of a book.
type BookStatus string

const (
	StatusToRead    BookStatus = "to-read"
	StatusReading   BookStatus = "reading"
	StatusCompleted BookStatus = "completed"
)

// DateLayout is the text format of start and end dates.
const DateLayout = "2006-01-02"

// MaxTextLen is the longest title or author accepted, in characters.
const MaxTextLen = 255

// Valid reports whether s is a known status.
func (s BookStatus) Valid() bool {
	switch s {
	case StatusToRead, StatusReading, StatusCompleted:
		return true
	}
	return false
}

// Book is a single entry of a user's library.
type Book struct {
	ID        string     `json:"id"                   bson:"_id"`
	OwnerID   string     `json:"owner_id"             bson:"owner_id"`
	Title     string     `json:"title"                bson:"title"`
	Author    string     `json:"author"               bson:"author"`
	Status    BookStatus `json:"status"               bson:"status"`
	StartDate string     `json:"start_date,omitempty" bson:"start_date,omitempty"`
	EndDate   string     `json:"end_date,omitempty"   bson:"end_date,omitempty"`
	Comment   string     `json:"comment,omitempty"    bson:"comment,omitempty"`
	CreatedAt time.Time  `json:"created_at"           bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"           bson:"updated_at"`
}

// BookInput is the JSON body for creating or replacing a book.
// OwnerID is accepted on the wire but always overwritten with the caller's identity.
type BookInput struct {
	OwnerID   string     `json:"owner_id,omitempty"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	Status    BookStatus `json:"status"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Comment   string     `json:"comment"`
}

// Normalize trims the text fields, applies the default status and validates the result.
func (in *BookInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.Comment = strings.TrimSpace(in.Comment)
	if in.Status == "" {
		in.Status = StatusToRead
	}

	if in.Title == "" {
		return common.Invalid("title", "is required")
	}
	if in.Author == "" {
		return common.Invalid("author", "is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTextLen {
		return common.Invalid("title", "must be at most 255 characters")
	}
	if utf8.RuneCountInString(in.Author) > MaxTextLen {
		return common.Invalid("author", "must be at most 255 characters")
	}
	if !in.Status.Valid() {
		return common.Invalid("status", "must be one of to-read, reading, completed")
	}

	var start, end time.Time
	var err error
	if in.StartDate != "" {
		if start, err = time.Parse(DateLayout, in.StartDate); err != nil {
			return common.Invalid("start_date", "must be YYYY-MM-DD")
		}
	}
	if in.EndDate != "" {
		if end, err = time.Parse(DateLayout, in.EndDate); err != nil {
			return common.Invalid("end_date", "must be YYYY-MM-DD")
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return common.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

// BookFilter narrows a library listing.
type BookFilter struct {
	Status BookStatus
	Query  string // case-insensitive substring of title or author
}

// Matches reports whether b passes the filter.
func (f BookFilter) Matches(b *Book) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q)
}
