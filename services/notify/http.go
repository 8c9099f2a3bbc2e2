package notify

import (
	"context"
	"errors"
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

// Notifier is implemented by *NotifyService.
type Notifier interface {
	SubscribeToTopic(ctx context.Context, req SubscribeRequest) error
	SendChat(ctx context.Context, req ChatRequest) (ChatResult, error)
	SendNotification(ctx context.Context, req NotificationRequest) (SendResult, error)
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provides the HTTP transport for.
	Service Notifier

	// The router instance to configure the HTTP routes.
	Router Router
}

// sendNotificationUsage is returned with 400s from /sendNotification.
var sendNotificationUsage = gin.H{
	"title":    "Match starting",
	"body":     "France - Belgique kicks off in 10 minutes",
	"type":     "topic | token | tokens | broadcast",
	"target":   "topic name, a token, or a list of tokens (omit for broadcast)",
	"data":     gin.H{"venueId": "optional"},
	"imageUrl": "https://example.com/optional.png",
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.POST("/subscribeToTopic", h.subscribeHandler)
	r.POST("/sendChatNotification", h.chatHandler)
	r.POST("/sendNotification", h.sendHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) subscribeHandler(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	if err := s.Service.SubscribeToTopic(c, req); err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *httpHandler) chatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}
	result, err := s.Service.SendChat(c, req)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	resp := gin.H{"success": true}
	if result.Deduplicated {
		resp["deduplicated"] = true
	} else {
		resp["messageId"] = result.MessageID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *httpHandler) sendHandler(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "example": sendNotificationUsage})
		c.Abort()
		return
	}
	result, err := s.Service.SendNotification(c, req)
	if err != nil {
		s.fail(c, err, sendNotificationUsage)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"type":         req.Type,
		"messageId":    result.MessageID,
		"successCount": result.SuccessCount,
		"failureCount": result.FailureCount,
		"totalTokens":  result.TotalTokens,
	})
}

func (s *httpHandler) fail(c *gin.Context, err error, example gin.H) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		resp := gin.H{"error": err.Error()}
		if example != nil {
			resp["example"] = example
		}
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		log.Printf("Failed to relay notification: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	c.Abort()
}
