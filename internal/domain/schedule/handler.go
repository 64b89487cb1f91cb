package schedule

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vaxtrack/vaxtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the child-scoped endpoints on children (which
// carries the ownership guard) and record-level mutations on records.
func (h *Handler) RegisterRoutes(children, records *echo.Group) {
	children.POST("/children/:child_id/vaccines/generate", h.Generate)
	children.GET("/children/:child_id/vaccines", h.List)
	children.GET("/children/:child_id/vaccines/upcoming", h.Upcoming)
	children.GET("/children/:child_id/vaccines/history", h.History)
	children.GET("/children/:child_id/vaccines/stats", h.Stats)

	records.GET("/vaccines/:id", h.Get)
	records.POST("/vaccines/:id/done", h.MarkDone)
	records.POST("/vaccines/:id/status", h.UpdateStatus)
	records.POST("/vaccines/:id/side-effects", h.RecordSideEffects)
}

type generateRequest struct {
	BirthDate      string `json:"birth_date"`
	IncludePrivate bool   `json:"include_private"`
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	recs, err := h.svc.Generate(c.Request().Context(), userID, c.Param("child_id"), birthDate, req.IncludePrivate)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"count": len(recs),
		"data":  recs,
	})
}

func (h *Handler) List(c echo.Context) error {
	recs, err := h.svc.ListByChild(c.Request().Context(), c.Param("child_id"), c.QueryParam("status"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Upcoming(c echo.Context) error {
	recs, err := h.svc.Upcoming(c.Request().Context(), c.Param("child_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) History(c echo.Context) error {
	recs, err := h.svc.History(c.Request().Context(), c.Param("child_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context(), c.Param("child_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Get(c echo.Context) error {
	rec, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// ownedRecord loads the addressed record and rejects the call when it does
// not belong to the authenticated user. Record routes carry no :child_id, so
// the group-level ownership guard cannot cover them.
func (h *Handler) ownedRecord(c echo.Context) (*VaccineRecord, error) {
	id, err := recordID(c)
	if err != nil {
		return nil, err
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, mapError(err)
	}
	if rec.UserID != auth.UserIDFromContext(c.Request().Context()) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "record does not belong to the authenticated user")
	}
	return rec, nil
}

type markDoneRequest struct {
	ActualDate string `json:"actual_date"`
	Notes      string `json:"notes"`
}

func (h *Handler) MarkDone(c echo.Context) error {
	owned, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	id := owned.ID
	var req markDoneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var actual *time.Time
	if req.ActualDate != "" {
		t, err := time.Parse("2006-01-02", req.ActualDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "actual_date must be YYYY-MM-DD")
		}
		actual = &t
	}
	rec, err := h.svc.MarkDone(c.Request().Context(), id, actual, req.Notes)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	owned, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	id := owned.ID
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, req.Notes)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type sideEffectsRequest struct {
	Severity    string        `json:"severity"`
	SideEffects []interface{} `json:"side_effects"`
}

func (h *Handler) RecordSideEffects(c echo.Context) error {
	owned, err := h.ownedRecord(c)
	if err != nil {
		return err
	}
	id := owned.ID
	var req sideEffectsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// Tags without a stated severity stay severity "none"; the follow-up
	// pass keys off severity, not off the tag list.
	if req.Severity == "" {
		req.Severity = string(SeverityNone)
	}
	rec, err := h.svc.RecordSideEffects(c.Request().Context(), id, req.SideEffects, req.Severity)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func recordID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	return id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDateBeforeBirth),
		errors.Is(err, ErrDateInFuture):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIllegalTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoDefinitions):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
