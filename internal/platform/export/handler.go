package export

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaxtrack/vaxtrack/internal/domain/schedule"
)

// ScheduleReader is the slice of the schedule service the exporter reads.
type ScheduleReader interface {
	Upcoming(ctx context.Context, childID string) ([]*schedule.VaccineRecord, error)
	History(ctx context.Context, childID string) ([]*schedule.VaccineRecord, error)
}

type Handler struct {
	schedules ScheduleReader
}

func NewHandler(schedules ScheduleReader) *Handler {
	return &Handler{schedules: schedules}
}

func (h *Handler) RegisterRoutes(children *echo.Group) {
	children.GET("/children/:child_id/vaccines/export", h.Export)
}

func (h *Handler) Export(c echo.Context) error {
	kindParam := c.QueryParam("kind")
	if kindParam == "" {
		kindParam = string(KindUpcoming)
	}
	kind, err := ParseKind(kindParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	childID := c.Param("child_id")
	var recs []*schedule.VaccineRecord
	if kind == KindHistory {
		recs, err = h.schedules.History(c.Request().Context(), childID)
	} else {
		recs, err = h.schedules.Upcoming(c.Request().Context(), childID)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	data, err := Workbook(recs, kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	filename := fmt.Sprintf("vaccines-%s-%s.xlsx", childID, kind)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
