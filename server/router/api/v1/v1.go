// Package v1 exposes the conversation engine over HTTP.
package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/convoflow/convoflow/internal/profile"
	"github.com/convoflow/convoflow/server/chat"
	enginerrors "github.com/convoflow/convoflow/internal/errors"
	"github.com/convoflow/convoflow/server/middleware"
	"github.com/convoflow/convoflow/store"
)

// APIV1Service wires the v1 HTTP routes to the store and the streamer.
type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Streamer *chat.Streamer

	turnLimiter *middleware.TurnLimiter
	// keepAliveInterval paces SSE comment frames during long streams.
	keepAliveInterval time.Duration
}

// NewAPIV1Service creates the v1 service.
func NewAPIV1Service(profile *profile.Profile, store *store.Store, streamer *chat.Streamer) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Store:    store,
		Streamer: streamer,
		// One turn per second sustained, short bursts allowed.
		turnLimiter:       middleware.NewTurnLimiter(time.Second, 5),
		keepAliveInterval: 15 * time.Second,
	}
}

// Register mounts the v1 routes on the Echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:id", s.GetConversation)
	g.POST("/conversations/stream", s.StreamConversation, s.turnLimiter.Middleware(ownerID))
	g.GET("/metrics", s.GetMetrics)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError maps an engine error to an HTTP response.
func httpError(c echo.Context, err error) error {
	code, ok := enginerrors.CodeOf(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, &errorResponse{
			Code:    string(enginerrors.ErrCodeStoreUnavailable),
			Message: err.Error(),
		})
	}

	status := http.StatusInternalServerError
	switch code {
	case enginerrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case enginerrors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case enginerrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case enginerrors.ErrCodeStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, &errorResponse{Code: string(code), Message: err.Error()})
}
