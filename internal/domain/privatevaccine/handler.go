package privatevaccine

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
	"github.com/vaxtrack/vaxtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the child-scoped wizard endpoints on children (which
// carries the ownership guard); the types listing and series removal are
// record or reference level.
func (h *Handler) RegisterRoutes(children, records *echo.Group) {
	records.GET("/private-vaccines/types", h.ListTypes)
	children.POST("/children/:child_id/private-vaccines/validate", h.Validate)
	children.POST("/children/:child_id/private-vaccines", h.Add)
	records.DELETE("/private-vaccines/:id", h.Remove)
}

func (h *Handler) ListTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ListTypes())
}

type additionRequest struct {
	Type          string `json:"type"`
	BrandCode     string `json:"brand_code"`
	BirthDate     string `json:"birth_date"`
	FirstDoseDate string `json:"first_dose_date"`
}

func (r *additionRequest) dates() (time.Time, *time.Time, error) {
	birth, err := time.Parse("2006-01-02", r.BirthDate)
	if err != nil {
		return time.Time{}, nil, echo.NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
	}
	var anchor *time.Time
	if r.FirstDoseDate != "" {
		t, err := time.Parse("2006-01-02", r.FirstDoseDate)
		if err != nil {
			return time.Time{}, nil, echo.NewHTTPError(http.StatusBadRequest, "first_dose_date must be YYYY-MM-DD")
		}
		anchor = &t
	}
	return birth, anchor, nil
}

func (h *Handler) Validate(c echo.Context) error {
	var req additionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	birth, anchor, err := req.dates()
	if err != nil {
		return err
	}
	plan, err := h.svc.Validate(c.Request().Context(), c.Param("child_id"), req.Type, req.BrandCode, birth, anchor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *Handler) Add(c echo.Context) error {
	var req additionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	birth, anchor, err := req.dates()
	if err != nil {
		return err
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	recs, err := h.svc.AddToSchedule(c.Request().Context(), userID, c.Param("child_id"), req.Type, req.BrandCode, birth, anchor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"count": len(recs),
		"data":  recs,
	})
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	removed, err := h.svc.RemoveSeries(c.Request().Context(), userID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": len(removed),
		"data":    removed,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrTypeNotFound), errors.Is(err, ErrBrandNotFound),
		errors.Is(err, schedule.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSeriesConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAnchorRequired), errors.Is(err, ErrNotPrivate):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
