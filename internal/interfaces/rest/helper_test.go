package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestCreateEndpoint(t *testing.T) {
	app := echo.New()
	ok := func(c echo.Context) error { return c.String(http.StatusOK, c.Path()) }
	createEndpoint(app, &endpoint{
		apiVersion: "api/v1",
		groups: []*apiGroup{
			{
				prefix: "/courses",
				routes: []*route{
					{"GET", "/:course_id/lessons", ok, nil},
					{"DELETE", "/:course_id/session", ok, nil},
				},
			},
		},
	})

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses/c1/lessons", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/courses/:course_id/lessons", rec.Body.String())

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/courses/c1/session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Panics(t, func() {
		createEndpoint(echo.New(), &endpoint{
			apiVersion: "/api/v1",
			groups:     []*apiGroup{{prefix: "/x", routes: []*route{{"TRACE", "/", ok, nil}}}},
		})
	})
}
