package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cacheStatsHandler handles GET /api/v1/debug/caches.
// Reports hit/miss/eviction counters for every registered cache.
func (s *Server) cacheStatsHandler(c *gin.Context) {
	stats := make(gin.H, len(s.caches))
	for name, provider := range s.caches {
		stats[name] = provider.Stats()
	}
	c.JSON(http.StatusOK, stats)
}
