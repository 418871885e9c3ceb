package books

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/auth"
	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
	"github.com/ayush/personal-library/internal/response"
)

const maxBookBody = 1 << 16

// Handler holds book HTTP handlers. Every route expects middleware.RequireAuth upstream.
type Handler struct {
	policy *Policy
	log    *zap.Logger
}

func NewHandler(policy *Policy, log *zap.Logger) *Handler {
	return &Handler{policy: policy, log: log}
}

// Routes mounts the book endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/cover", h.PutCover)
	r.Get("/{id}/cover", h.GetCover)
}

// Create adds a book to the caller's library.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in models.BookInput
	if err := decodeBook(w, r, &in); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	book, err := h.policy.Create(r.Context(), owner, in)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusCreated, book)
}

// List returns the caller's books, optionally filtered by ?status= and ?q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := models.BookFilter{
		Status: models.BookStatus(strings.TrimSpace(q.Get("status"))),
		Query:  strings.TrimSpace(q.Get("q")),
	}
	list, err := h.policy.List(r.Context(), owner, filter)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

// Get returns one book.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	book, err := h.policy.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, book)
}

// Update replaces a book's editable fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var in models.BookInput
	if err := decodeBook(w, r, &in); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	book, err := h.policy.Update(r.Context(), owner, chi.URLParam(r, "id"), in)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, book)
}

// Delete removes a book.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.policy.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutCover uploads the raw request body as the book's cover image.
func (h *Handler) PutCover(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxCoverBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = common.ErrTooLarge
		}
		response.Error(w, r, h.log, err)
		return
	}
	if err := h.policy.PutCover(r.Context(), owner, chi.URLParam(r, "id"), data); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCover streams the book's cover image.
func (h *Handler) GetCover(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	cover, err := h.policy.GetCover(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", cover.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(cover.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(cover.Data)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, h.log, common.ErrUnauthorized)
		return "", false
	}
	return sess.UserID, true
}

func decodeBook(w http.ResponseWriter, r *http.Request, in *models.BookInput) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBookBody)
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		return common.Invalid("body", "must be a JSON object")
	}
	return nil
}
