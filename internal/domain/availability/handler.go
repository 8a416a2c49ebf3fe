package availability

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/pkg/timegrid"
)

// defaultRangeDays is the window served when the caller omits dates.
const defaultRangeDays = 14

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/clinicians/:id/availability", h.ListAvailability)
}

// ListAvailability serves GET /clinicians/:id/availability?from=&to=.
// Dates default to a two-week window starting today.
func (h *Handler) ListAvailability(c echo.Context) error {
	clinicianID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinician id")
	}

	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if from == "" {
		from = time.Now().Format(timegrid.DateLayout)
	}
	if to == "" {
		fromDay, err := time.Parse(timegrid.DateLayout, from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		to = fromDay.AddDate(0, 0, defaultRangeDays).Format(timegrid.DateLayout)
	}

	days, err := h.service.ListOpenSlots(c.Request().Context(), clinicianID, from, to)
	switch {
	case errors.Is(err, ErrInvalidRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load availability").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"clinician_id": clinicianID,
		"from":         from,
		"to":           to,
		"days":         days,
	})
}
