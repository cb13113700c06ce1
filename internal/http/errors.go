package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/session"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/filesystem"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/http/client"
	"github.com/gin-gonic/gin"
)

var errStatus = []struct {
	err    error
	status int
}{
	{session.ErrPageNotFound, http.StatusNotFound},
	{session.ErrInvalidPage, http.StatusUnprocessableEntity},
	{session.ErrClosed, http.StatusServiceUnavailable},
	{widget.ErrUnknownWidget, http.StatusNotFound},
	{widget.ErrUnknownField, http.StatusBadRequest},
	{widget.ErrClosed, http.StatusGone},
	{filesystem.ErrNoLibrary, http.StatusNotFound},
	{filesystem.ErrNotFound, http.StatusNotFound},
	{filesystem.ErrOutsideRoot, http.StatusBadRequest},
	{filesystem.ErrNotHTML, http.StatusUnsupportedMediaType},
	{filesystem.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{client.ErrInvalidURL, http.StatusBadRequest},
	{client.ErrBadStatus, http.StatusBadGateway},
	{client.ErrNotHTML, http.StatusUnsupportedMediaType},
	{client.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{client.ErrRateLimited, http.StatusTooManyRequests},
	{resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
	{resilience.ErrTooManyRequests, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
	{context.Canceled, http.StatusServiceUnavailable},
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	for _, e := range errStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
