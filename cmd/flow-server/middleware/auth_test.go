package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/lyzr/flow/cmd/flow-server/middleware"
)

func authedServer(token string) *echo.Echo {
	e := echo.New()
	e.GET("/guarded", func(c echo.Context) error {
		return c.String(http.StatusOK, "in")
	}, middleware.RequireBearer(token))
	return e
}

func get(e *echo.Echo, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireBearer(t *testing.T) {
	e := authedServer("s3cret")

	assert.Equal(t, http.StatusUnauthorized, get(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "Basic s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, get(e, "Bearer s3cret").Code)
}

func TestRequireBearerDisabledWithoutToken(t *testing.T) {
	e := authedServer("")

	assert.Equal(t, http.StatusOK, get(e, "").Code)
	assert.Equal(t, http.StatusOK, get(e, "Bearer anything").Code)
}
