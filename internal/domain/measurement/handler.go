package measurement

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/srlistener/internal/platform/orthanc"
	"github.com/ehr/srlistener/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the listener's original results route on root and
// the extraction API on api.
func (h *Handler) RegisterRoutes(root *echo.Group, api *echo.Group) {
	root.GET("/api/filtered_tags", h.GetFilteredTags)

	api.GET("/extractions", h.ListExtractions)
	api.GET("/extractions/:id", h.GetExtraction)
	api.POST("/extractions", h.CreateExtraction)
	api.POST("/instances/:id/extract", h.ExtractInstance)
}

func (h *Handler) GetFilteredTags(c echo.Context) error {
	values, err := h.svc.Latest()
	if err != nil {
		if errors.Is(err, ErrNoResults) {
			return echo.NewHTTPError(http.StatusNotFound, "Filtered tags not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, values)
}

func (h *Handler) ListExtractions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListExtractions(c.Request().Context(), c.QueryParam("instance_id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Extraction{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetExtraction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.GetExtraction(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "extraction not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CreateExtraction(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is empty")
	}

	e, err := h.svc.ExtractUpload(c.Request().Context(), raw)
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

// ExtractInstance reprocesses one archived instance on demand.
func (h *Handler) ExtractInstance(c echo.Context) error {
	e, err := h.svc.ProcessInstance(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNoArchive):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, ErrInvalidDocument):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		var se *orthanc.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "instance not found")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}
