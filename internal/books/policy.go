// Package books owns the per-user library: every read and write is scoped to the
// authenticated owner before it reaches a store.
package books

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
	"github.com/ayush/personal-library/internal/telemetry"
)

// MaxCoverBytes bounds an uploaded cover image.
const MaxCoverBytes = 5 << 20

var coverTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Store persists books. Every lookup is keyed by owner and id together; a book
// owned by someone else is reported as common.ErrNotFound.
type Store interface {
	InsertBook(ctx context.Context, book *models.Book) error
	ListBooks(ctx context.Context, ownerID string, filter models.BookFilter) ([]models.Book, error)
	GetBook(ctx context.Context, ownerID, id string) (*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, ownerID, id string) error
}

// FileStore defines the interface for cover object storage.
type FileStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// Cover is a stored cover image.
type Cover struct {
	Data        []byte
	ContentType string
}

// Policy enforces ownership on every book operation.
type Policy struct {
	books  Store
	covers FileStore
	newID  func() string
	now    func() time.Time
	log    *zap.Logger
}

// NewPolicy creates a Policy. covers may be nil, in which case cover operations
// report common.ErrNotFound.
func NewPolicy(books Store, covers FileStore, log *zap.Logger) *Policy {
	return &Policy{
		books:  books,
		covers: covers,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

// Create stores a new book owned by ownerID. Any owner carried by in is ignored.
func (p *Policy) Create(ctx context.Context, ownerID string, in models.BookInput) (*models.Book, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.books.create")
	defer span.End()

	if ownerID == "" {
		return nil, common.ErrUnauthorized
	}

	if err := in.Normalize(); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	now := p.now()
	book := &models.Book{
		ID:        p.newID(),
		OwnerID:   ownerID,
		Title:     in.Title,
		Author:    in.Author,
		Status:    in.Status,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.books.InsertBook(ctx, book); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("book_id", book.ID))
	return book, nil
}

// List returns the owner's books, newest first.
func (p *Policy) List(ctx context.Context, ownerID string, filter models.BookFilter) ([]models.Book, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.books.list")
	defer span.End()

	if ownerID == "" {
		return nil, common.ErrUnauthorized
	}
	if filter.Status != "" && !filter.Status.Valid() {
		err := common.Invalid("status", "must be one of to-read, reading, completed")
		telemetry.Fail(span, err)
		return nil, err
	}
	list, err := p.books.ListBooks(ctx, ownerID, filter)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	out := list[:0]
	for _, b := range list {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	if out == nil {
		out = []models.Book{}
	}
	return out, nil
}

// Get returns one of the owner's books.
func (p *Policy) Get(ctx context.Context, ownerID, id string) (*models.Book, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.books.get")
	defer span.End()

	book, err := p.owned(ctx, ownerID, id)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	return book, nil
}

// Update replaces the editable fields of one of the owner's books.
func (p *Policy) Update(ctx context.Context, ownerID, id string, in models.BookInput) (*models.Book, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.books.update")
	defer span.End()

	if err := in.Normalize(); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	book, err := p.owned(ctx, ownerID, id)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	book.Title = in.Title
	book.Author = in.Author
	book.Status = in.Status
	book.StartDate = in.StartDate
	book.EndDate = in.EndDate
	book.Comment = in.Comment
	book.UpdatedAt = p.now()
	if err := p.books.UpdateBook(ctx, book); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	return book, nil
}

// Delete removes one of the owner's books together with its cover.
func (p *Policy) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.books.delete")
	defer span.End()

	if _, err := p.owned(ctx, ownerID, id); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	if err := p.books.DeleteBook(ctx, ownerID, id); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	if p.covers != nil {
		if err := p.covers.Remove(ctx, coverKey(ownerID, id)); err != nil && !errors.Is(err, common.ErrNotFound) {
			p.log.Warn("cover cleanup failed", zap.String("book_id", id), zap.Error(err))
		}
	}
	return nil
}

// PutCover stores data as the cover of one of the owner's books. The content type
// is sniffed from the bytes, not taken from the caller.
func (p *Policy) PutCover(ctx context.Context, ownerID, id string, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "service.books.put_cover")
	defer span.End()

	if p.covers == nil {
		return common.ErrNotFound
	}
	if _, err := p.owned(ctx, ownerID, id); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	if len(data) > MaxCoverBytes {
		return common.ErrTooLarge
	}
	if len(data) == 0 {
		return common.Invalid("cover", "is empty")
	}
	ct := http.DetectContentType(data)
	if !coverTypes[ct] {
		return common.Invalid("cover", "must be a JPEG, PNG or WebP image")
	}
	if err := p.covers.Upload(ctx, coverKey(ownerID, id), data, ct); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	return nil
}

// GetCover returns the cover of one of the owner's books.
func (p *Policy) GetCover(ctx context.Context, ownerID, id string) (*Cover, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.books.get_cover")
	defer span.End()

	if p.covers == nil {
		return nil, common.ErrNotFound
	}
	if _, err := p.owned(ctx, ownerID, id); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	data, ct, err := p.covers.Download(ctx, coverKey(ownerID, id))
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Cover{Data: data, ContentType: ct}, nil
}

// owned loads id and checks it belongs to ownerID. Malformed ids and foreign
// books are indistinguishable from absent ones.
func (p *Policy) owned(ctx context.Context, ownerID, id string) (*models.Book, error) {
	if ownerID == "" {
		return nil, common.ErrUnauthorized
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrNotFound
	}
	book, err := p.books.GetBook(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if book.OwnerID != ownerID {
		p.log.Warn("store returned foreign book", zap.String("book_id", id))
		return nil, common.ErrNotFound
	}
	return book, nil
}

func coverKey(ownerID, bookID string) string {
	return "covers/" + ownerID + "/" + bookID
}
