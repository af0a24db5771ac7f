package controller

import (
	"errors"
	"net/http"

	"climate-server/internal/modules/climate/repository"
	"climate-server/internal/modules/climate/service"
	"climate-server/internal/utils"
)

// statusForError maps a service error to its HTTP status and client message.
// Unexpected failures get a generic message; details stay in the log.
func statusForError(err error) (int, string) {
	var dateErr *service.InvalidDateError
	switch {
	case errors.As(err, &dateErr):
		return http.StatusBadRequest, dateErr.Error()
	case errors.Is(err, service.ErrNoData):
		return http.StatusNotFound, "no climate data available"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, "climate store temporarily unavailable"
	default:
		return http.StatusInternalServerError, "failed to read climate data"
	}
}

func (c *climateControllerImpl) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusForError(err)
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		c.logger.Error("request failed", attrs...)
	} else {
		c.logger.Warn("request rejected", attrs...)
	}
	utils.WriteError(w, status, msg)
}
