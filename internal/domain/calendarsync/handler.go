package calendarsync

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler exposes the operator surface of the sync engine: a manual
// per-clinician trigger and a run-state snapshot.
type Handler struct {
	scheduler *Scheduler
}

func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// RegisterRoutes mounts the sync endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/clinicians/:id/sync", h.TriggerSync)
	g.GET("/sync/status", h.SyncStatus)
}

// TriggerSync runs one reconciliation cycle for one clinician right now,
// bypassing the scheduler cooldown.
func (h *Handler) TriggerSync(c echo.Context) error {
	clinicianID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid clinician id")
	}

	summary, err := h.scheduler.TriggerClinician(c.Request().Context(), clinicianID)
	switch {
	case errors.Is(err, ErrSyncInFlight):
		return echo.NewHTTPError(http.StatusConflict, "sync already in progress for this clinician")
	case errors.Is(err, ErrNotConnected):
		return echo.NewHTTPError(http.StatusNotFound, "clinician has no calendar connected")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, "calendar sync failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// SyncStatus reports which clinicians are mid-sync and when each was last
// reconciled.
func (h *Handler) SyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Status())
}
