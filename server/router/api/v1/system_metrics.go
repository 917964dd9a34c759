package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/convoflow/convoflow/server/internal/observability"
)

type metricsResponse struct {
	TurnsTotal   int64 `json:"turns_total"`
	TurnsFailed  int64 `json:"turns_failed"`
	StreamEvents int64 `json:"stream_events"`
}

// GetMetrics handles GET /api/v1/metrics with streaming turn counters.
func (s *APIV1Service) GetMetrics(c echo.Context) error {
	turns, failures, events := observability.GlobalMetrics().Snapshot()
	return c.JSON(http.StatusOK, &metricsResponse{
		TurnsTotal:   turns,
		TurnsFailed:  failures,
		StreamEvents: events,
	})
}
