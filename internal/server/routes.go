package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	REQUEST_TIMEOUT      = 10 * time.Second
	CREATE_ENTRY_TIMEOUT = 35 * time.Second
)

type createEntryBody struct {
	Title        string `json:"title"`
	Host         string `json:"host"`
	Selection    string `json:"selection"`
	ScanInterval uint   `json:"scan_interval"`
}

type errorBody struct {
	Error  string            `json:"error,omitempty"`
	Reason string            `json:"reason,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

type sensorsBody struct {
	EntryId           string               `json:"entry_id"`
	State             string               `json:"state"`
	LastUpdateSuccess bool                 `json:"last_update_success"`
	LastUpdate        *time.Time           `json:"last_update,omitempty"`
	Entities          []domain.EntityState `json:"entities"`
}

type refreshBody struct {
	LastUpdateSuccess bool `json:"last_update_success"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	entries := e.Group("/entries")
	entries.GET("", s.ListEntriesHandler)
	entries.POST("", s.CreateEntryHandler)
	entries.DELETE("/:id", s.RemoveEntryHandler)
	entries.GET("/:id/options", s.GetOptionsHandler)
	entries.PUT("/:id/options", s.UpdateOptionsHandler)
	entries.GET("/:id/sensors", s.SensorsHandler)
	entries.POST("/:id/refresh", s.RefreshHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListEntriesHandler(c echo.Context) error {
	resp, err := ask[domain.ListEntriesResponse](s, domain.ListEntriesRequest{}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	entries := resp.Entries
	if entries == nil {
		entries = []domain.ConfigEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) CreateEntryHandler(c echo.Context) error {
	var body createEntryBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Errors: map[string]string{service.FORM_FIELD_BASE: service.FORM_ERROR_INVALID_INPUT}})
	}
	resp, err := ask[domain.CreateEntryResponse](s, domain.CreateEntryRequest{
		Title:     body.Title,
		Host:      body.Host,
		Selection: body.Selection,
		Options:   domain.EntryOptions{ScanInterval: body.ScanInterval},
	}, CREATE_ENTRY_TIMEOUT)
	switch {
	case err != nil:
		return errorResponse(c, err)
	case resp.AbortReason != "":
		return c.JSON(http.StatusConflict, errorBody{Reason: resp.AbortReason})
	case len(resp.Errors) > 0:
		return c.JSON(http.StatusBadRequest, errorBody{Errors: resp.Errors})
	}
	return c.JSON(http.StatusCreated, resp.Entry)
}

func (s *Server) RemoveEntryHandler(c echo.Context) error {
	_, err := ask[domain.RemoveEntryResponse](s, domain.RemoveEntryRequest{EntryId: c.Param("id")}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) GetOptionsHandler(c echo.Context) error {
	resp, err := ask[domain.GetEntryResponse](s, domain.GetEntryRequest{EntryId: c.Param("id")}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp.Entry.Options)
}

func (s *Server) UpdateOptionsHandler(c echo.Context) error {
	var options domain.EntryOptions
	if err := c.Bind(&options); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	resp, err := ask[domain.UpdateEntryOptionsResponse](s, domain.UpdateEntryOptionsRequest{
		EntryId: c.Param("id"),
		Options: options,
	}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp.Entry.Options)
}

func (s *Server) SensorsHandler(c echo.Context) error {
	resp, err := ask[domain.GetEntityStatesResponse](s, domain.GetEntityStatesRequest{EntryId: c.Param("id")}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	body := sensorsBody{
		EntryId:           resp.EntryId,
		State:             resp.State,
		LastUpdateSuccess: resp.LastUpdateSuccess,
		Entities:          resp.Entities,
	}
	if !resp.LastUpdate.IsZero() {
		body.LastUpdate = &resp.LastUpdate
	}
	if body.Entities == nil {
		body.Entities = []domain.EntityState{}
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) RefreshHandler(c echo.Context) error {
	resp, err := ask[domain.RefreshEntryResponse](s, domain.RefreshEntryRequest{EntryId: c.Param("id")}, REQUEST_TIMEOUT)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, refreshBody{LastUpdateSuccess: resp.LastUpdateSuccess})
}

// ask sends a request to the master and unwraps the typed response and its error.
func ask[T domain.ActorResponse](s *Server, msg any, timeout time.Duration) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, timeout).Result()
	if err != nil {
		return zero, err
	}
	resp, ok := res.(T)
	if !ok {
		return zero, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return resp, resp.GetResponseError()
	}
	return resp, nil
}

func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownEntry):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEntryNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	return c.JSON(status, errorBody{Error: err.Error()})
}
