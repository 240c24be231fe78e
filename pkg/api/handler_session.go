package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orito-labs/orito/pkg/config"
	"github.com/orito-labs/orito/pkg/session"
)

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Tier   string `json:"tier"`
	APIKey string `json:"apiKey"`
}

// createSessionHandler opens a session bound to a chat.
func (s *Server) createSessionHandler(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := config.Tier(req.Tier)
	if req.Tier != "" && !tier.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.ErrUnknownTier.Error() + ": " + req.Tier})
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), session.CreateOptions{
		ChatID: req.ChatID,
		UserID: req.UserID,
		Tier:   tier,
		APIKey: req.APIKey,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess.Info())
}

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.List())
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// closeSessionHandler handles DELETE /api/v1/sessions/:id.
func (s *Server) closeSessionHandler(c *gin.Context) {
	if err := s.sessions.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// sendMessageHandler handles POST /api/v1/sessions/:id/messages. The message
// is dispatched and the turn runs asynchronously; results arrive on the
// session's event stream.
func (s *Server) sendMessageHandler(c *gin.Context) {
	var msg session.Inbound
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.sessions.Dispatch(c.Request.Context(), c.Param("id"), msg)
	if err != nil {
		status := http.StatusBadRequest
		if strings.HasPrefix(err.Error(), "session not found") {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
