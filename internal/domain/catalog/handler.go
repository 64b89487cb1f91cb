package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/catalog", h.List)
	api.GET("/catalog/versions", h.ListVersions)
	api.GET("/catalog/:code", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	version := c.QueryParam("version")
	var (
		defs []*VaccineDefinition
		err  error
	)
	if version == "" {
		version = h.svc.ActiveVersion()
		defs, err = h.svc.ListActive(c.Request().Context())
	} else {
		defs, err = h.svc.ListByVersion(c.Request().Context(), version)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "catalog version not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version": version,
		"data":    defs,
	})
}

func (h *Handler) Get(c echo.Context) error {
	d, err := h.svc.GetByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "vaccine not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListVersions(c echo.Context) error {
	versions, err := h.svc.ListVersions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, versions)
}
