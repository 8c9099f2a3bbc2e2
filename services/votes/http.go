package votes

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router is the interface for a router.
type Router interface {
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// Syncer is implemented by *VotesService.
type Syncer interface {
	SyncAll(ctx context.Context) (SyncResult, error)
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provides the HTTP transport for.
	Service Syncer

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.POST("/syncAllDelegationVotes", h.syncHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) syncHandler(c *gin.Context) {
	result, err := s.Service.SyncAll(c)
	if err != nil {
		log.Printf("Failed to sync delegation votes: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": result.Message(),
		"result":  result,
	})
}
