package report

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the staff-only report endpoints under /intake/reports.
func (h *Handler) RegisterRoutes(api *echo.Group, staff ...echo.MiddlewareFunc) {
	mws := append(append([]echo.MiddlewareFunc{}, staff...), auth.RequireStaff())
	g := api.Group("/intake/reports", mws...)
	g.GET("/:patient_id", h.ListReports)
	g.GET("/:patient_id/:visit", h.GetReport)
}

func (h *Handler) ListReports(c echo.Context) error {
	items, err := h.store.List(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetReport(c echo.Context) error {
	visit, err := strconv.Atoi(c.Param("visit"))
	if err != nil || visit < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit number")
	}
	r, err := h.store.Get(c.Request().Context(), c.Param("patient_id"), visit)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`inline; filename="intake-%s-visit-%d.pdf"`, r.PatientID, r.VisitNumber))
	return c.Blob(http.StatusOK, r.ContentType, r.Document)
}
