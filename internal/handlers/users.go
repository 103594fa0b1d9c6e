package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/provsalt/eldercare/internal/metrics"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/store"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login.
type LoginResponse struct {
	Token             string `json:"token"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Language          string `json:"language"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// SignupRequest represents the account creation request body.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Language string `json:"language" validate:"omitempty,max=20"`
}

// SignupResponse represents a created account.
type SignupResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login authenticates a user by email and password and issues a session
// token. Unknown email and wrong password are indistinguishable to the
// caller.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, err)
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LoginAttempts.WithLabelValues("failure").Inc()
			h.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tok, err := h.issuer.Issue(user.ID, user.Role)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.JSON(w, http.StatusOK, LoginResponse{
		Token:             tok,
		ID:                user.ID.String(),
		Name:              user.Name,
		Email:             user.Email,
		Language:          user.Language,
		ProfilePictureURL: user.ProfilePictureURL,
	})
}

// Signup creates a new user account.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, err)
		return
	}

	if _, err := h.db.GetUserByEmail(r.Context(), req.Email); err == nil {
		h.Error(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Name, req.Email, string(hash), req.Language, models.RoleUser)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.JSON(w, http.StatusCreated, SignupResponse{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	})
}
