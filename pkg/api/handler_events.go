package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// streamEventsHandler handles GET /api/v1/sessions/:id/events.
// Serves the session's event bus as SSE; one consumer per session. The
// stream ends when the session closes or the client disconnects.
func (s *Server) streamEventsHandler(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-sess.Events():
			if !ok {
				return false
			}
			c.SSEvent(e.EventType(), e)
			return true
		case <-clientGone:
			return false
		}
	})
}
