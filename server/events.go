package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/docvec/core"
)

func (s *Server) handleQueueStatus(c echo.Context) error {
	counts, err := s.queue.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"queued":    counts[core.JobStatusQueued],
		"active":    counts[core.JobStatusActive],
		"completed": counts[core.JobStatusCompleted],
		"failed":    counts[core.JobStatusFailed],
		"stalled":   counts[core.JobStatusStalled],
	})
}

// handleEvents streams the user's progress events as server-sent events.
// The stream carries whatever is emitted while connected; there is no
// replay of earlier events.
func (s *Server) handleEvents(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id required")
	}

	ch, cancel := s.events.Subscribe(userID)
	defer cancel()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("error encoding progress event", "err", err)
				continue
			}
			fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event.Type, data)
			resp.Flush()
		}
	}
}
