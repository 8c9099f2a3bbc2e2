package venues

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cummap/backend/pkg/auth"
	"github.com/cummap/backend/pkg/history"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	PUT(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	DELETE(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// Editor is implemented by *VenuesService.
type Editor interface {
	AddVenue(ctx context.Context, input VenueInput) (Venue, error)
	UpdateVenue(ctx context.Context, venueID string, input VenueInput) (Venue, error)
	DeleteVenue(ctx context.Context, venueID string) error
	AddMatch(ctx context.Context, venueID string, input MatchInput) (Match, error)
	UpdateMatch(ctx context.Context, venueID, matchID string, input MatchInput) (Match, error)
	DeleteMatch(ctx context.Context, venueID, matchID string) error
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)
	History() history.State
}

// Reader is implemented by *Projection.
type Reader interface {
	Venues() []Venue
	Venue(id string) (Venue, bool)
	Version() uint64
	Listen() (<-chan uint64, func())
}

// AdminHTTPOptions contains all the options needed for the admin HTTP handler.
type AdminHTTPOptions struct {

	// The service we provides the HTTP transport for.
	Service Editor

	// The router instance to configure the HTTP routes.
	Router Router
}

// PublicHTTPOptions contains all the options needed for the public HTTP handler.
type PublicHTTPOptions struct {
	Projection Reader
	Router     Router
}

// NewAdminHTTPHandler registers the editing and undo/redo routes.
func NewAdminHTTPHandler(opts AdminHTTPOptions) {
	r := opts.Router
	h := &adminHandler{opts}
	r.POST("/venues", h.addVenueHandler)
	r.PUT("/venues/:venue_id", h.updateVenueHandler)
	r.DELETE("/venues/:venue_id", h.deleteVenueHandler)
	r.POST("/venues/:venue_id/matches", h.addMatchHandler)
	r.PUT("/venues/:venue_id/matches/:match_id", h.updateMatchHandler)
	r.DELETE("/venues/:venue_id/matches/:match_id", h.deleteMatchHandler)
	r.POST("/history/undo", h.undoHandler)
	r.POST("/history/redo", h.redoHandler)
	r.GET("/history", h.historyHandler)
}

// NewPublicHTTPHandler registers the read-only routes.
func NewPublicHTTPHandler(opts PublicHTTPOptions) {
	r := opts.Router
	h := &publicHandler{opts}
	r.GET("/venues", h.listHandler)
	r.GET("/venues/stream", h.streamHandler)
	r.GET("/venues/:venue_id", h.getHandler)
}

type adminHandler struct {
	AdminHTTPOptions
}

func (s *adminHandler) addVenueHandler(c *gin.Context) {
	var input VenueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	venue, err := s.Service.AddVenue(c, input)
	if err != nil {
		s.fail(c, "add venue", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"venue": venue})
}

func (s *adminHandler) updateVenueHandler(c *gin.Context) {
	var input VenueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	venue, err := s.Service.UpdateVenue(c, c.Param("venue_id"), input)
	if err != nil {
		s.fail(c, "update venue", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"venue": venue})
}

func (s *adminHandler) deleteVenueHandler(c *gin.Context) {
	if err := s.Service.DeleteVenue(c, c.Param("venue_id")); err != nil {
		s.fail(c, "delete venue", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *adminHandler) addMatchHandler(c *gin.Context) {
	var input MatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	match, err := s.Service.AddMatch(c, c.Param("venue_id"), input)
	if err != nil {
		s.fail(c, "add match", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"match": match})
}

func (s *adminHandler) updateMatchHandler(c *gin.Context) {
	var input MatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	match, err := s.Service.UpdateMatch(c, c.Param("venue_id"), c.Param("match_id"), input)
	if err != nil {
		s.fail(c, "update match", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (s *adminHandler) deleteMatchHandler(c *gin.Context) {
	if err := s.Service.DeleteMatch(c, c.Param("venue_id"), c.Param("match_id")); err != nil {
		s.fail(c, "delete match", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *adminHandler) undoHandler(c *gin.Context) {
	applied, err := s.Service.Undo(c)
	s.replay(c, "undo", applied, err)
}

func (s *adminHandler) redoHandler(c *gin.Context) {
	applied, err := s.Service.Redo(c)
	s.replay(c, "redo", applied, err)
}

func (s *adminHandler) replay(c *gin.Context, op string, applied bool, err error) {
	if err != nil {
		log.Printf("Failed to %s for %s: %v\n", op, auth.UID(c), err)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrVenueNotFound) || errors.Is(err, ErrMatchNotFound) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "history": s.Service.History()})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "history": s.Service.History()})
}

func (s *adminHandler) historyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.Service.History()})
}

func (s *adminHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrVenueNotFound), errors.Is(err, ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("Failed to %s for %s: %v\n", op, auth.UID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
	c.Abort()
}

type publicHandler struct {
	PublicHTTPOptions
}

func (s *publicHandler) listHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.Projection.Version(),
		"venues":  s.Projection.Venues(),
	})
}

func (s *publicHandler) getHandler(c *gin.Context) {
	venue, ok := s.Projection.Venue(c.Param("venue_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "venue not found"})
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"venue": venue})
}

// streamHandler pushes the full venue list once, then again after every
// projection rebuild.
func (s *publicHandler) streamHandler(c *gin.Context) {
	updates, stop := s.Projection.Listen()
	defer stop()

	c.SSEvent("venues", gin.H{"version": s.Projection.Version(), "venues": s.Projection.Venues()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case version, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("venues", gin.H{"version": version, "venues": s.Projection.Venues()})
			return true
		}
	})
}
