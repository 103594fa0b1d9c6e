package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/provsalt/eldercare/internal/api/middleware"
	"github.com/provsalt/eldercare/internal/metrics"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/realtime"
	"github.com/provsalt/eldercare/internal/store"
)

// MessageResponse represents a message in chat API responses.
type MessageResponse struct {
	ID     string `json:"id"`
	Msg    string `json:"msg"`
	Sender string `json:"sender"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
}

// StartChatRequest represents the request that opens a conversation with
// another user by sending it a first message.
type StartChatRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid4"`
	Message     string `json:"message" validate:"required,max=4096"`
}

// SendMessageResponse represents a created or mutated message.
type SendMessageResponse struct {
	ID     string `json:"id"`
	ChatID string `json:"chatId"`
	Msg    string `json:"msg"`
	Sender string `json:"sender"`
}

// ListChats returns the caller's conversations with their last messages.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	summaries, err := h.db.ListConversationsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}

	if h.redis != nil {
		for i := range summaries {
			peer := summaries[i].InitiatorID
			if peer == user.ID {
				peer = summaries[i].RecipientID
			}
			online, err := h.redis.IsOnline(r.Context(), peer.String())
			if err != nil {
				// Presence is decoration; a Redis hiccup must not fail the list.
				continue
			}
			summaries[i].PeerOnline = online
		}
	}

	h.JSON(w, http.StatusOK, summaries)
}

// GetChatMessages returns a conversation's messages in creation order.
// Only participants may read a conversation.
func (h *Handler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.participantConversation(w, r, user)
	if !ok {
		return
	}

	messages, err := h.db.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := make([]MessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = MessageResponse{ID: m.ID, Msg: m.Body, Sender: m.SenderID.String()}
	}

	h.JSON(w, http.StatusOK, resp)
}

// SendMessage appends a message to a conversation and broadcasts a
// message_created event. The event is published only after the insert
// committed.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.participantConversation(w, r, user)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, err)
		return
	}

	msg, err := h.db.AppendMessage(r.Context(), conv.ID, user.ID, req.Message)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.MessagesSent.Inc()
	h.broadcaster.Publish(realtime.Created(msg))

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:     msg.ID,
		ChatID: conv.ID.String(),
		Msg:    msg.Body,
		Sender: msg.SenderID.String(),
	})
}

// StartChat opens (or reuses) the conversation with a recipient and sends
// the first message. Conversations are created implicitly here; there is
// no separate create-conversation endpoint.
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req StartChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, err)
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid recipient ID format")
		return
	}
	if recipientID == user.ID {
		h.Error(w, http.StatusBadRequest, "cannot start a chat with yourself")
		return
	}

	if _, err := h.db.GetUserByID(r.Context(), recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "recipient not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	conv, err := h.db.GetOrCreateConversation(r.Context(), user.ID, recipientID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	msg, err := h.db.AppendMessage(r.Context(), conv.ID, user.ID, req.Message)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.MessagesSent.Inc()
	h.broadcaster.Publish(realtime.Created(msg))

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:     msg.ID,
		ChatID: conv.ID.String(),
		Msg:    msg.Body,
		Sender: msg.SenderID.String(),
	})
}

// UpdateMessage replaces a message body. Only the sender may update its
// own messages; the store itself is ownership-agnostic.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.participantConversation(w, r, user)
	if !ok {
		return
	}

	msg, ok := h.senderMessage(w, r, user, conv)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, err)
		return
	}

	if err := h.db.UpdateMessage(r.Context(), msg.ID, req.Message); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to update message")
		return
	}

	h.broadcaster.Publish(realtime.Updated(conv.ID, msg.ID, req.Message))

	h.JSON(w, http.StatusOK, SendMessageResponse{
		ID:     msg.ID,
		ChatID: conv.ID.String(),
		Msg:    req.Message,
		Sender: msg.SenderID.String(),
	})
}

// DeleteMessage removes a message. Only the sender may delete its own
// messages.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, ok := h.participantConversation(w, r, user)
	if !ok {
		return
	}

	msg, ok := h.senderMessage(w, r, user, conv)
	if !ok {
		return
	}

	if err := h.db.DeleteMessage(r.Context(), msg.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	h.broadcaster.Publish(realtime.Deleted(conv.ID, msg.ID))

	h.JSON(w, http.StatusOK, map[string]string{"id": msg.ID})
}

// participantConversation resolves the chatId URL parameter and enforces
// that the caller is one of the two participants. On failure it writes the
// error response and returns ok=false.
func (h *Handler) participantConversation(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Conversation, bool) {
	chatID, err := uuid.Parse(chi.URLParam(r, "chatId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return nil, false
	}

	conv, err := h.db.GetConversation(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "conversation not found")
			return nil, false
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}

	if !conv.HasParticipant(user.ID) {
		h.Error(w, http.StatusForbidden, "not a participant of this conversation")
		return nil, false
	}

	return conv, true
}

// senderMessage resolves the messageId URL parameter, checks the message
// belongs to the conversation and that the caller is its sender.
func (h *Handler) senderMessage(w http.ResponseWriter, r *http.Request, user *models.User, conv *models.Conversation) (*models.Message, bool) {
	messageID := chi.URLParam(r, "messageId")
	if messageID == "" {
		h.Error(w, http.StatusBadRequest, "message ID is required")
		return nil, false
	}

	msg, err := h.db.GetMessage(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "message not found")
			return nil, false
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil, false
	}

	if msg.ConversationID != conv.ID {
		h.Error(w, http.StatusNotFound, "message not found")
		return nil, false
	}
	if msg.SenderID != user.ID {
		h.Error(w, http.StatusForbidden, "only the sender may modify a message")
		return nil, false
	}

	return msg, true
}
