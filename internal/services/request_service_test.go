package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/repository/sqlitestore"
)

var (
	patientA = models.Identity{UserID: "patient-a", Role: models.RolePatient}
	labB     = models.Identity{UserID: "lab-b", Role: models.RoleLaboratory}
	pharmC   = models.Identity{UserID: "pharm-c", Role: models.RolePharmacy}
	doctorD  = models.Identity{UserID: "doctor-d", Role: models.RoleDoctor}
)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRequestService(t *testing.T, store *sqlitestore.Store) *RequestService {
	t.Helper()
	service := NewRequestService(store, store, time.UTC, nil)
	service.now = func() time.Time {
		return time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	}
	return service
}

func TestCreateRequestDerivesCategoryFromProvider(t *testing.T) {
	service := newRequestService(t, openStore(t))

	request, err := service.CreateRequest(context.Background(), patientA, labB.UserID, labB.Role)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if request.Category != models.CategoryLab {
		t.Fatalf("expected lab category, got %q", request.Category)
	}
	if request.Status != models.RequestPending {
		t.Fatalf("expected pending, got %q", request.Status)
	}
	if request.CreatedDate != "2024-03-01" || request.CreatedTime != "09:30:15" {
		t.Fatalf("unexpected created stamp %s %s", request.CreatedDate, request.CreatedTime)
	}
}

func TestCreateRequestRejectsSecondPending(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	if _, err := service.CreateRequest(ctx, patientA, labB.UserID, labB.Role); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	_, err := service.CreateRequest(ctx, patientA, labB.UserID, labB.Role)
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
}

func TestCreateRequestRejectsInvalidPairs(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  models.Identity
		target string
		role   models.Role
	}{
		{name: "self", actor: patientA, target: patientA.UserID, role: models.RolePatient},
		{name: "two providers", actor: labB, target: pharmC.UserID, role: pharmC.Role},
		{name: "two patients", actor: patientA, target: "patient-z", role: models.RolePatient},
		{name: "empty target", actor: patientA, target: "", role: models.RoleDoctor},
		{name: "bad role", actor: patientA, target: "x", role: models.Role("admin")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreateRequest(ctx, tc.actor, tc.target, tc.role)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestListPendingPartitionsByCategoryForTarget(t *testing.T) {
	store := openStore(t)
	service := newRequestService(t, store)
	ctx := context.Background()

	if err := store.Upsert(ctx, models.Profile{UserID: labB.UserID, Role: labB.Role, DisplayName: "Central Lab"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := service.CreateRequest(ctx, labB, patientA.UserID, patientA.Role); err != nil {
		t.Fatalf("CreateRequest lab: %v", err)
	}
	if _, err := service.CreateRequest(ctx, pharmC, patientA.UserID, patientA.Role); err != nil {
		t.Fatalf("CreateRequest pharmacy: %v", err)
	}
	if _, err := service.CreateRequest(ctx, patientA, doctorD.UserID, doctorD.Role); err != nil {
		t.Fatalf("CreateRequest doctor: %v", err)
	}

	pending, err := service.ListPending(ctx, patientA)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending.Lab) != 1 || len(pending.Pharmacy) != 1 {
		t.Fatalf("expected one lab and one pharmacy request, got %d and %d", len(pending.Lab), len(pending.Pharmacy))
	}
	if len(pending.Doctor) != 0 {
		t.Fatalf("request sent by the viewer must not be listed as pending for them, got %d", len(pending.Doctor))
	}
	if pending.Lab[0].CounterpartID != labB.UserID || pending.Lab[0].CounterpartName != "Central Lab" {
		t.Fatalf("unexpected lab view %+v", pending.Lab[0])
	}
	if pending.Pharmacy[0].CounterpartName != "" {
		t.Fatalf("expected empty name without a profile, got %q", pending.Pharmacy[0].CounterpartName)
	}
}

func TestAcceptOnlyByTarget(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	request, err := service.CreateRequest(ctx, patientA, labB.UserID, labB.Role)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := service.Accept(ctx, request.ID, patientA); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for requester, got %v", err)
	}
	if _, err := service.Accept(ctx, "missing", labB); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptTwiceSucceedsOnce(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	request, err := service.CreateRequest(ctx, patientA, labB.UserID, labB.Role)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	service.now = func() time.Time {
		return time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	}

	view, err := service.Accept(ctx, request.ID, labB)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if view.Status != models.RequestAccepted || view.AcceptedDate != "2024-03-02" || view.AcceptedTime != "14:00:00" {
		t.Fatalf("unexpected accepted view %+v", view)
	}

	_, err = service.Accept(ctx, request.ID, labB)
	if !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("expected ErrAlreadyAccepted, got %v", err)
	}

	accepted, err := service.ListAccepted(ctx, labB)
	if err != nil {
		t.Fatalf("ListAccepted: %v", err)
	}
	if accepted.Len() != 1 {
		t.Fatalf("expected exactly one accepted request, got %d", accepted.Len())
	}
	pending, err := service.ListPending(ctx, labB)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if pending.Len() != 0 {
		t.Fatalf("accepted request still pending: %+v", pending)
	}
}

func TestAcceptedVisibleToBothSides(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	request, err := service.CreateRequest(ctx, patientA, pharmC.UserID, pharmC.Role)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := service.Accept(ctx, request.ID, pharmC); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	for _, viewer := range []models.Identity{patientA, pharmC} {
		accepted, err := service.ListAccepted(ctx, viewer)
		if err != nil {
			t.Fatalf("ListAccepted(%s): %v", viewer.UserID, err)
		}
		if len(accepted.Pharmacy) != 1 || len(accepted.Lab) != 0 || len(accepted.Doctor) != 0 {
			t.Fatalf("unexpected partitions for %s: %+v", viewer.UserID, accepted)
		}
	}

	if err := service.Authorize(ctx, pharmC.UserID, patientA.UserID); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if _, err := service.CreateRequest(ctx, pharmC, patientA.UserID, patientA.Role); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("expected ErrAlreadyAccepted for connected pair, got %v", err)
	}
}

func TestAuthorizeRequiresAcceptedRequest(t *testing.T) {
	service := newRequestService(t, openStore(t))
	ctx := context.Background()

	if _, err := service.CreateRequest(ctx, patientA, doctorD.UserID, doctorD.Role); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := service.Authorize(ctx, patientA.UserID, doctorD.UserID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for pending pair, got %v", err)
	}
	if err := service.Authorize(ctx, patientA.UserID, patientA.UserID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for self, got %v", err)
	}
}

func TestContactsFiltersAndPaginates(t *testing.T) {
	store := openStore(t)
	service := newRequestService(t, store)
	ctx := context.Background()

	providers := []models.Identity{labB, pharmC, doctorD}
	names := []string{"Central Lab", "City Pharmacy", "Dr Perera"}
	for i, provider := range providers {
		if err := store.Upsert(ctx, models.Profile{UserID: provider.UserID, Role: provider.Role, DisplayName: names[i]}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		request, err := service.CreateRequest(ctx, patientA, provider.UserID, provider.Role)
		if err != nil {
			t.Fatalf("CreateRequest: %v", err)
		}
		if _, err := service.Accept(ctx, request.ID, provider); err != nil {
			t.Fatalf("Accept: %v", err)
		}
	}

	contacts, total, err := service.Contacts(ctx, patientA, "", 1, 2)
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if total != 3 || len(contacts) != 2 {
		t.Fatalf("expected 2 of 3 contacts, got %d of %d", len(contacts), total)
	}
	if contacts[0].DisplayName != "Central Lab" || contacts[1].DisplayName != "City Pharmacy" {
		t.Fatalf("unexpected order %+v", contacts)
	}

	contacts, total, err = service.Contacts(ctx, patientA, "perera", 1, 10)
	if err != nil {
		t.Fatalf("Contacts search: %v", err)
	}
	if total != 1 || contacts[0].UserID != doctorD.UserID {
		t.Fatalf("expected only the doctor, got %+v", contacts)
	}

	contacts, _, err = service.Contacts(ctx, patientA, "", 5, 10)
	if err != nil {
		t.Fatalf("Contacts page past end: %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("expected empty page, got %d", len(contacts))
	}
}
