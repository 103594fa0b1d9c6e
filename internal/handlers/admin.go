package handlers

import (
	"net/http"
)

// StatsResponse represents aggregate platform counts for the admin view.
type StatsResponse struct {
	Users         int64 `json:"users"`
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}

// Stats returns platform-wide counts. Mounted behind RequireAdmin.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.CountUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	conversations, err := h.db.CountConversations(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	messages, err := h.db.CountMessages(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Users:         users,
		Conversations: conversations,
		Messages:      messages,
	})
}
