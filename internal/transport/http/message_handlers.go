package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/store"
)

// MessageHandlers serves message history and read receipts.
type MessageHandlers struct {
	store store.MessageStore
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.MessageStore, hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// PageQuery selects a page of history.
type PageQuery struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=50" binding:"min=1,max=200"`
}

// MarkReadRequest represents the mark read request body.
type MarkReadRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	RoomID     string    `json:"roomId"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// PageResponse is a page of messages, newest first.
type PageResponse struct {
	Messages    []MessageResponse `json:"messages"`
	Total       int               `json:"total"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
}

func toPageResponse(p *store.Page) PageResponse {
	messages := make([]MessageResponse, 0, len(p.Messages))
	for _, m := range p.Messages {
		messages = append(messages, MessageResponse{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			RoomID:     m.RoomID,
			Message:    m.Body,
			Status:     string(m.Status),
			Timestamp:  m.CreatedAt,
		})
	}
	return PageResponse{
		Messages:    messages,
		Total:       p.Total,
		TotalPages:  p.TotalPages,
		CurrentPage: p.CurrentPage,
	}
}

// RoomMessages returns a page of a room's history.
// GET /api/messages/room/:roomId?page=&limit=
func (h *MessageHandlers) RoomMessages(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page or limit"})
		return
	}
	roomID := c.Param("roomId")

	page, err := h.store.ListRoomMessages(c.Request.Context(), roomID, q.Page, q.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list room messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

// Conversation returns a page of messages exchanged between two users.
// GET /api/messages/conversation/:userId1/:userId2?page=&limit=
func (h *MessageHandlers) Conversation(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page or limit"})
		return
	}
	userA, userB := c.Param("userId1"), c.Param("userId2")

	page, err := h.store.ListConversation(c.Request.Context(), userA, userB, q.Page, q.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userA).Str("peer_id", userB).Msg("failed to list conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toPageResponse(page))
}

// MarkRead marks every unread message addressed to the user in a room as read.
// PUT /api/messages/read/:roomId
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
		return
	}
	roomID := c.Param("roomId")

	ids, err := h.hub.MarkRead(c.Request.Context(), roomID, req.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", req.UserID).Msg("failed to mark room read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(ids), "messageIds": ids})
}
