package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/ratelimit"
	"github.com/lyzr/flow/common/runner"
	"github.com/lyzr/flow/common/workflow"
)

// serviceError maps service-layer failures onto HTTP statuses: missing
// records are 404s, rejected definitions and patches 400s, throttled runs
// 429s, anything else an opaque 500 with the detail kept in the log.
func serviceError(c echo.Context, log *logger.Logger, err error) error {
	var verr *workflow.ValidationError
	var lerr *ratelimit.LimitError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": verr.Error()})
	case errors.As(err, &lerr):
		c.Response().Header().Set("Retry-After", strconv.FormatInt(lerr.RetryAfterSeconds, 10))
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error":             lerr.Error(),
			"retryAfterSeconds": lerr.RetryAfterSeconds,
		})
	case errors.Is(err, runner.ErrStartNodeNotFound):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	default:
		log.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "internal server error"})
	}
}

// badRequest is the uniform 400 body for malformed input.
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": message})
}
