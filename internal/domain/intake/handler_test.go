package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
)

func newTestHandler(store RecordStore) (*Handler, *echo.Echo) {
	svc := newTestService(store, newFakeExtractor(), greenAssessor())
	return NewHandler(svc), echo.New()
}

func postTurn(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_HandleTurn(t *testing.T) {
	h, e := newTestHandler(NewMemoryStore())
	c, rec := postTurn(e, `{"patient_id":"patient-1","text":"Hi"}`)

	if err := h.HandleTurn(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["phase"] != string(PhaseOnboarding) || body["terminal_action"] != string(ActionNone) {
		t.Errorf("unexpected body %v", body)
	}
	if !strings.HasPrefix(body["reply"].(string), greetingText) {
		t.Errorf("expected a greeting, got %q", body["reply"])
	}
}

func TestHandler_HandleTurn_MissingPatient(t *testing.T) {
	h, e := newTestHandler(NewMemoryStore())
	c, _ := postTurn(e, `{"text":"Hi"}`)

	if code := httpStatus(t, h.HandleTurn(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_HandleTurn_SaveFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSave: true}
	h, e := newTestHandler(store)
	c, rec := postTurn(e, `{"patient_id":"patient-1","text":"Hi"}`)

	if code := httpStatus(t, h.HandleTurn(c)); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Error("expected a Retry-After header")
	}
}

func TestHandler_GetRecord_NotFound(t *testing.T) {
	h, e := newTestHandler(NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("patient_id")
	c.SetParamValues("nobody")

	if code := httpStatus(t, h.GetRecord(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetVisit_BadNumber(t *testing.T) {
	h, e := newTestHandler(NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("patient_id", "visit")
	c.SetParamValues("patient-1", "zero")

	if code := httpStatus(t, h.GetVisit(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetCatalog(t *testing.T) {
	h, e := newTestHandler(NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GetCatalog(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body catalogResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Questions) != DefaultCatalog().Len() || body.DemographicsEnd != 5 || len(body.Issues) != 10 {
		t.Errorf("unexpected catalog %d/%d/%d", len(body.Questions), body.DemographicsEnd, len(body.Issues))
	}
}

func TestHandler_RoutesRequireStaff(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), NewRecord("patient-1", testNow))
	h, e := newTestHandler(store)

	nurse := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Test-Role") == "" {
				return next(c)
			}
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{c.Request().Header.Get("X-Test-Role")})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	h.RegisterRoutes(e.Group("/api/v1"), nurse)

	tests := []struct {
		name string
		path string
		role string
		want int
	}{
		{"anonymous list", "/api/v1/intake/records", "", http.StatusForbidden},
		{"nurse list", "/api/v1/intake/records", auth.RoleNurse, http.StatusOK},
		{"nurse record", "/api/v1/intake/records/patient-1", auth.RoleNurse, http.StatusOK},
		{"nurse plan", "/api/v1/intake/records/patient-1/plan", auth.RoleNurse, http.StatusOK},
		{"visit list", "/api/v1/intake/records/patient-1/visits", auth.RoleNurse, http.StatusOK},
		{"current visit", "/api/v1/intake/records/patient-1/visits/1", auth.RoleClinician, http.StatusOK},
		{"unknown visit", "/api/v1/intake/records/patient-1/visits/4", auth.RoleClinician, http.StatusNotFound},
		{"unknown patient", "/api/v1/intake/records/nobody", auth.RoleAdmin, http.StatusNotFound},
		{"wrong role", "/api/v1/intake/records", "receptionist", http.StatusForbidden},
		{"public catalog", "/api/v1/intake/catalog", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.role != "" {
				req.Header.Set("X-Test-Role", tt.role)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
