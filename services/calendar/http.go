package calendar

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// Calendar is implemented by *CalendarService.
type Calendar interface {
	Day(date, sport string) (DayView, error)
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {
	Service Calendar
	Router  Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/calendar/:date", h.dayHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) dayHandler(c *gin.Context) {
	view, err := s.Service.Day(c.Param("date"), strings.TrimSpace(c.Query("sport")))
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		}
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, view)
}
