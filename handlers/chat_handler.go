package handlers

import (
	"net/http"
	"strconv"
	"time"

	"legalmatch-backend/chat"
	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChatHandler handles chat messages and the realtime socket
type ChatHandler struct {
	chat *service.ChatService
	hub  *chat.Hub
	log  *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, hub *chat.Hub, log *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chat: chatService,
		hub:  hub,
		log:  log,
	}
}

// SendMessage handles POST /api/chat/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, msg)
}

// ListConversations handles GET /api/chat/conversations?userId=
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := requiredUserID(c)
	if !ok {
		return
	}

	convs, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, convs)
}

// ListMessages handles GET /api/chat/conversations/:id/messages?userId=&before=&limit=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, ok := requiredUserID(c)
	if !ok {
		return
	}

	req := service.ListMessagesRequest{ConversationID: convID, UserID: userID}
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "INVALID_BEFORE", "before must be an RFC 3339 timestamp")
			return
		}
		req.Before = &before
	}
	req.Limit, _ = strconv.Atoi(c.Query("limit"))

	msgs, err := h.chat.ListMessages(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, msgs)
}

// MarkSeen handles POST /api/chat/conversations/:id/seen?userId=
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	convID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, ok := requiredUserID(c)
	if !ok {
		return
	}

	n, err := h.chat.MarkSeen(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"seen": n})
}

// UnseenCounts handles GET /api/chat/unseen?userId=
func (h *ChatHandler) UnseenCounts(c *gin.Context) {
	userID, ok := requiredUserID(c)
	if !ok {
		return
	}

	counts, err := h.chat.UnseenCounts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make(map[string]int, len(counts))
	for id, n := range counts {
		out[id.String()] = n
	}
	respondOK(c, http.StatusOK, out)
}

// Connect handles GET /ws?userId= and hands the socket to the hub
func (h *ChatHandler) Connect(c *gin.Context) {
	userID, ok := requiredUserID(c)
	if !ok {
		return
	}

	conn, err := chat.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	h.hub.Serve(conn, userID)
}

func requiredUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := uuidQuery(c, "userId")
	if !ok {
		return uuid.Nil, false
	}
	if id == nil {
		badRequest(c, "MISSING_USER_ID", "userId is required")
		return uuid.Nil, false
	}
	return *id, true
}
