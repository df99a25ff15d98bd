package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/pkg/pagination"
)

type Handler struct {
	svc     *Service
	turnMWs []echo.MiddlewareFunc
}

// NewHandler applies turnMiddleware to the turn endpoint only.
func NewHandler(svc *Service, turnMiddleware ...echo.MiddlewareFunc) *Handler {
	return &Handler{svc: svc, turnMWs: turnMiddleware}
}

// RegisterRoutes mounts the patient-facing turn endpoint on api and the
// staff views behind staff, which should authenticate the caller.
func (h *Handler) RegisterRoutes(api *echo.Group, staff ...echo.MiddlewareFunc) {
	g := api.Group("/intake")
	g.POST("/turns", h.HandleTurn, h.turnMWs...)
	g.GET("/catalog", h.GetCatalog)

	mws := append(append([]echo.MiddlewareFunc{}, staff...), auth.RequireStaff())
	readGroup := g.Group("", mws...)
	readGroup.GET("/records", h.ListRecords)
	readGroup.GET("/records/:patient_id", h.GetRecord)
	readGroup.GET("/records/:patient_id/plan", h.GetPlan)
	readGroup.GET("/records/:patient_id/visits", h.ListVisits)
	readGroup.GET("/records/:patient_id/visits/:visit", h.GetVisit)
}

type turnRequest struct {
	PatientID string `json:"patient_id"`
	Text      string `json:"text"`
}

func (h *Handler) HandleTurn(c echo.Context) error {
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.HandleTurn(c.Request().Context(), req.PatientID, req.Text)
	if err != nil {
		return turnError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// PatientKey keys per-patient middleware on the patient_id of a turn body,
// falling back to the client IP. The body is left readable.
func PatientKey(c echo.Context) string {
	req := c.Request()
	if req.Body == nil {
		return c.RealIP()
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, 64<<10))
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return c.RealIP()
	}
	var t turnRequest
	if json.Unmarshal(body, &t) != nil || t.PatientID == "" {
		return c.RealIP()
	}
	return "patient:" + t.PatientID
}

func turnError(c echo.Context, err error) error {
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrEmptyPatientID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "record could not be saved, retry the same message")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type catalogResponse struct {
	Questions       []Question        `json:"questions"`
	DemographicsEnd int               `json:"demographics_end"`
	Issues          []IssueDefinition `json:"issues"`
}

func (h *Handler) GetCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, catalogResponse{
		Questions:       h.svc.Catalog().Questions(),
		DemographicsEnd: h.svc.Catalog().DemographicsEnd(),
		Issues:          h.svc.Issues().Definitions(),
	})
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Path()))
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.GetRecord(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetPlan(c echo.Context) error {
	plan, err := h.svc.Plan(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *Handler) ListVisits(c echo.Context) error {
	visits, err := h.svc.Visits(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, visits)
}

func (h *Handler) GetVisit(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("visit"))
	if err != nil || n < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit number")
	}
	_, visit, err := h.svc.Visit(c.Request().Context(), c.Param("patient_id"), n)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, visit)
}

func lookupError(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
