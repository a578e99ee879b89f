package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	"github.com/gofiber/fiber/v2"
)

type stubRequestService struct {
	pending      models.RequestPartitions
	acceptView   *models.RequestView
	acceptErr    error
	created      *models.ConnectionRequest
	createErr    error
	contacts     []models.Contact
	contactTotal int
	lastViewer   models.Identity
	lastID       string
	lastTarget   string
	lastRole     models.Role
	lastQuery    string
	lastPage     int
	lastLimit    int
}

func (s *stubRequestService) CreateRequest(_ context.Context, actor models.Identity, targetID string, targetRole models.Role) (*models.ConnectionRequest, error) {
	s.lastViewer = actor
	s.lastTarget = targetID
	s.lastRole = targetRole
	return s.created, s.createErr
}

func (s *stubRequestService) ListPending(_ context.Context, viewer models.Identity) (models.RequestPartitions, error) {
	s.lastViewer = viewer
	return s.pending, nil
}

func (s *stubRequestService) ListAccepted(_ context.Context, viewer models.Identity) (models.RequestPartitions, error) {
	s.lastViewer = viewer
	return models.NewRequestPartitions(), nil
}

func (s *stubRequestService) Accept(_ context.Context, requestID string, viewer models.Identity) (*models.RequestView, error) {
	s.lastViewer = viewer
	s.lastID = requestID
	return s.acceptView, s.acceptErr
}

func (s *stubRequestService) Contacts(_ context.Context, viewer models.Identity, query string, page int, limit int) ([]models.Contact, int, error) {
	s.lastViewer = viewer
	s.lastQuery = query
	s.lastPage = page
	s.lastLimit = limit
	return s.contacts, s.contactTotal, nil
}

func withIdentity(userID string, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("role", string(role))
		return c.Next()
	}
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestListPendingReturnsPartitions(t *testing.T) {
	pending := models.NewRequestPartitions()
	pending.Add(models.RequestView{ID: "r1", CounterpartID: "lab-b", Category: models.CategoryLab, Status: models.RequestPending})
	service := &stubRequestService{pending: pending}
	handler := NewRequestHandler(service)

	app := fiber.New()
	app.Use(withIdentity("patient-a", models.RolePatient))
	app.Get("/api/v1/requests/pending", handler.ListPending)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/requests/pending", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastViewer.UserID != "patient-a" || service.lastViewer.Role != models.RolePatient {
		t.Fatalf("unexpected viewer %+v", service.lastViewer)
	}

	var body map[string][]models.RequestView
	decodeBody(t, resp, &body)
	if len(body["lab"]) != 1 || len(body["pharmacy"]) != 0 || len(body["doctor"]) != 0 {
		t.Fatalf("unexpected partitions %+v", body)
	}
	if body["pharmacy"] == nil {
		t.Fatal("empty partitions must encode as arrays")
	}
}

func TestAcceptMapsErrors(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{err: services.ErrForbidden, status: http.StatusForbidden, code: models.CodeForbidden},
		{err: services.ErrNotFound, status: http.StatusNotFound, code: models.CodeNotFound},
		{err: services.ErrAlreadyAccepted, status: http.StatusConflict, code: models.CodeAlreadyAccepted},
		{err: fmt.Errorf("%w: dial tcp", services.ErrUnavailable), status: http.StatusServiceUnavailable, code: models.CodeUnavailable, retryable: true},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			service := &stubRequestService{acceptErr: tc.err}
			app := fiber.New()
			app.Use(withIdentity("lab-b", models.RoleLaboratory))
			app.Post("/api/v1/requests/:id/accept", NewRequestHandler(service).Accept)

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/requests/r9/accept", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var body struct {
				Code      string `json:"code"`
				Retryable bool   `json:"retryable"`
			}
			decodeBody(t, resp, &body)
			if body.Code != tc.code || body.Retryable != tc.retryable {
				t.Fatalf("unexpected body %+v", body)
			}
			if service.lastID != "r9" {
				t.Fatalf("expected request id r9, got %q", service.lastID)
			}
		})
	}
}

func TestCreateRequestParsesTargetRole(t *testing.T) {
	service := &stubRequestService{created: &models.ConnectionRequest{ID: "r1", Status: models.RequestPending}}
	app := fiber.New()
	app.Use(withIdentity("patient-a", models.RolePatient))
	app.Post("/api/v1/requests", NewRequestHandler(service).CreateRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(`{"targetId":"lab-b","targetRole":"lab"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastTarget != "lab-b" || service.lastRole != models.RoleLaboratory {
		t.Fatalf("unexpected target %q %q", service.lastTarget, service.lastRole)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(`{"targetId":"x","targetRole":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
}

func TestListContactsAppliesPaginationDefaults(t *testing.T) {
	service := &stubRequestService{
		contacts:     []models.Contact{{UserID: "lab-b", DisplayName: "Central Lab"}},
		contactTotal: 41,
	}
	app := fiber.New()
	app.Use(withIdentity("patient-a", models.RolePatient))
	app.Get("/api/v1/contacts", NewRequestHandler(service).ListContacts)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/contacts?q=lab&limit=500", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if service.lastQuery != "lab" || service.lastPage != 1 || service.lastLimit != maxPageLimit {
		t.Fatalf("unexpected query %q page %d limit %d", service.lastQuery, service.lastPage, service.lastLimit)
	}
	var body struct {
		Contacts   []models.Contact      `json:"contacts"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	decodeBody(t, resp, &body)
	if len(body.Contacts) != 1 || body.Pagination.Total != 41 || body.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHandlersRejectMissingIdentity(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/requests/accepted", NewRequestHandler(&stubRequestService{}).ListAccepted)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/requests/accepted", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
