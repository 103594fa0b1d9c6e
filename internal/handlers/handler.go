package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/provsalt/eldercare/internal/realtime"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db          store.DataStore
	redis       *store.RedisStore
	issuer      *token.Issuer
	broadcaster realtime.Broadcaster
	validate    *validator.Validate
}

// NewHandler creates a new Handler. redis may be nil.
func NewHandler(db store.DataStore, redis *store.RedisStore, issuer *token.Issuer, broadcaster realtime.Broadcaster) *Handler {
	return &Handler{
		db:          db,
		redis:       redis,
		issuer:      issuer,
		broadcaster: broadcaster,
		validate:    validator.New(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// validationError sends field-level messages for a failed struct
// validation, or a generic 400 when the error is not field specific.
func (h *Handler) validationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		h.JSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}
	h.Error(w, http.StatusBadRequest, "invalid request body")
}
