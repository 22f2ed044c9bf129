package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Login handles operator login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username   string `json:"username" binding:"required"`
		Password   string `json:"password" binding:"required"`
		RememberMe bool   `json:"remember_me"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, req.RememberMe)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Remember exchanges a raw remember token, as returned by a remembered
// login, for a session
func (h *Handler) Remember(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	user, err := h.auth.VerifyRememberToken(c.Request.Context(), req.Token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	session, err := h.auth.SessionFor(user, true)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Me returns the authenticated operator
func (h *Handler) Me(c *gin.Context) {
	user, err := h.auth.GetUser(c.Request.Context(), c.GetUint(ctxUserID))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"permissions": user.PermissionSet(),
	})
}

// Logout forgets the locally saved remember token and leaves the chat
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.chat.SetOnline(c.Request.Context(), c.GetString(ctxUsername), false); err != nil {
		h.log.Warn("Failed to mark operator offline", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ChangePassword handles password change for the authenticated operator
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required"})
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), c.GetUint(ctxUserID), req.OldPassword, req.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed, please log in again"})
}
