package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {
	Catalog *Catalog
	Router  Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/parties", h.partiesHandler)
	r.GET("/hotels", h.hotelsHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) partiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"parties": s.Catalog.Parties()})
}

func (s *httpHandler) hotelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hotels": s.Catalog.Hotels()})
}
