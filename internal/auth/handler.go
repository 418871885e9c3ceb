package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
	"github.com/ayush/personal-library/internal/response"
)

const maxAuthBody = 1 << 16

// Handler holds auth-related HTTP handlers.
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register creates a new user and returns its first token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

// Login authenticates a user and returns a fresh token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, h.log, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Logout revokes the token that authenticated the request.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, h.log, common.ErrUnauthorized)
		return
	}
	if err := h.svc.Logout(r.Context(), sess.TokenID, sess.ExpiresAt); err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, h.log, common.ErrUnauthorized)
		return
	}
	user, err := h.svc.Me(r.Context(), sess.UserID)
	if err != nil {
		response.Error(w, r, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.Invalid("body", "must be a JSON object")
	}
	return nil
}
