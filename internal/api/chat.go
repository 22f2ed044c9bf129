package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListChatMessages returns a page of chat messages, newest first
func (h *Handler) ListChatMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := h.chat.Messages(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SendChatMessage posts a message as the authenticated operator
func (h *Handler) SendChatMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), c.GetString(ctxUsername), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ChatUnreadCount returns how many messages the operator has not read
func (h *Handler) ChatUnreadCount(c *gin.Context) {
	n, err := h.chat.UnreadCount(c.Request.Context(), c.GetString(ctxUsername))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// MarkChatRead marks every message as read for the operator
func (h *Handler) MarkChatRead(c *gin.Context) {
	if err := h.chat.MarkRead(c.Request.Context(), c.GetString(ctxUsername)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat marked as read"})
}

// OnlineUsers lists operators currently online
func (h *Handler) OnlineUsers(c *gin.Context) {
	users, err := h.chat.OnlineUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// UpdatePresence is the operator's heartbeat; {"online": false} leaves
func (h *Handler) UpdatePresence(c *gin.Context) {
	req := struct {
		Online *bool `json:"online"`
	}{}
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "online is required"})
		return
	}

	if err := h.chat.SetOnline(c.Request.Context(), c.GetString(ctxUsername), *req.Online); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": *req.Online})
}

// ClearChat deletes the chat history
func (h *Handler) ClearChat(c *gin.Context) {
	removed, err := h.chat.Clear(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
