package anesthesia

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/drmauij/Viali-sub010/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "anesthetist", "nurse", "pharmacist"))
	readGroup.GET("/records/:id", h.GetRecord)
	readGroup.GET("/records/:id/events", h.ListEvents)
	readGroup.GET("/records/:id/usage", h.GetUsage)
	readGroup.GET("/records/:id/commits", h.ListCommits)
	readGroup.GET("/commits/:id", h.GetCommit)
	readGroup.GET("/audit", h.ListAudit)

	writeGroup := api.Group("", auth.RequireRole("admin", "anesthetist"))
	writeGroup.POST("/records", h.CreateRecord)
	writeGroup.PUT("/records/:id", h.UpdateRecord)
	writeGroup.POST("/records/:id/events", h.AddEvent)
	writeGroup.DELETE("/events/:id", h.DeleteEvent)
	writeGroup.PUT("/usage/:id/override", h.Override)
	writeGroup.DELETE("/usage/:id/override", h.ClearOverride)
	writeGroup.POST("/records/:id/commits", h.Commit)
	writeGroup.POST("/commits/:id/rollback", h.Rollback)
}

func actor(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Records --

func (h *Handler) CreateRecord(c echo.Context) error {
	var rec Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRecord(c.Request().Context(), &rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var rec Record
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec.ID = id
	if err := h.svc.UpdateRecord(c.Request().Context(), &rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// -- Events --

func (h *Handler) AddEvent(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var ev MedicationEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ev.RecordID = recordID
	if err := h.svc.AddEvent(c.Request().Context(), &ev, actor(c)); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ev)
}

func (h *Handler) ListEvents(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	events, err := h.svc.ListEvents(c.Request().Context(), recordID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reason := c.QueryParam("reason")
	if err := h.svc.DeleteEvent(c.Request().Context(), id, actor(c), reason); err != nil {
		switch {
		case errors.Is(err, ErrReasonRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrEventNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "event not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Usage --

// GetUsage recalculates synchronously on every read: pending usage is
// always derived from the current event stream, never served stale.
func (h *Handler) GetUsage(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	usages, err := h.svc.Recalculate(c.Request().Context(), recordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, usages)
}

type overrideRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

func (h *Handler) Override(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Override(c.Request().Context(), id, req.Quantity, req.Reason, actor(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrUsageNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "usage record not found")
		case errors.Is(err, ErrReasonRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ClearOverride(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.ClearOverride(c.Request().Context(), id, actor(c))
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "usage record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

// -- Commits --

type commitRequest struct {
	UnitID    uuid.UUID `json:"unit_id"`
	Signature *string   `json:"signature,omitempty"`
}

func (h *Handler) Commit(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var req commitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UnitID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unit_id is required")
	}

	commit, err := h.svc.Commit(c.Request().Context(), recordID, req.UnitID, actor(c), req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		case errors.Is(err, ErrNoItemsToCommit):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrSignatureRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, commit)
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Rollback(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rollbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	commit, err := h.svc.Rollback(c.Request().Context(), id, actor(c), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrCommitNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "commit not found")
		case errors.Is(err, ErrAlreadyRolledBack):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrReasonRequired):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commit)
}

func (h *Handler) GetCommit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	commit, err := h.svc.GetCommit(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrCommitNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "commit not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commit)
}

func (h *Handler) ListCommits(c echo.Context) error {
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	var unitID *uuid.UUID
	if v := c.QueryParam("unit_id"); v != "" {
		parsed, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid unit_id")
		}
		unitID = &parsed
	}
	commits, err := h.svc.ListCommits(c.Request().Context(), recordID, unitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, commits)
}

// -- Audit --

func (h *Handler) ListAudit(c echo.Context) error {
	recordType := c.QueryParam("record_type")
	if recordType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "record_type is required")
	}
	recordID, err := uuid.Parse(c.QueryParam("record_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record_id")
	}
	entries, err := h.svc.ListAudit(c.Request().Context(), recordType, recordID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}
