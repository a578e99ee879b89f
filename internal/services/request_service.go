package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/repository"
	"go.uber.org/zap"
)

// RequestLedger is the persistence contract for connection requests.
type RequestLedger interface {
	Create(ctx context.Context, input repository.CreateRequestInput) (*models.ConnectionRequest, error)
	GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error)
	ListByRole(ctx context.Context, role models.Role, id string) ([]models.ConnectionRequest, error)
	MarkAccepted(ctx context.Context, id string, acceptedDate string, acceptedTime string) (*models.ConnectionRequest, error)
	HasAccepted(ctx context.Context, a string, b string) (bool, error)
}

// NameDirectory resolves counterpart display names.
type NameDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// RequestService runs the Pending -> Accepted workflow and is the single
// authority on whether two parties may exchange messages.
type RequestService struct {
	ledger    RequestLedger
	directory NameDirectory
	location  *time.Location
	now       func() time.Time
	log       *zap.Logger
}

func NewRequestService(ledger RequestLedger, directory NameDirectory, location *time.Location, log *zap.Logger) *RequestService {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RequestService{
		ledger:    ledger,
		directory: directory,
		location:  location,
		now:       time.Now,
		log:       log,
	}
}

func (s *RequestService) stamp() (string, string) {
	return models.CivilStamp(s.now(), s.location)
}

func validIdentity(actor models.Identity) bool {
	return actor.Role.Valid() && models.ValidParticipantID(actor.UserID)
}

// CreateRequest records a pending request from actor to the target party.
func (s *RequestService) CreateRequest(
	ctx context.Context,
	actor models.Identity,
	targetID string,
	targetRole models.Role,
) (*models.ConnectionRequest, error) {
	if !validIdentity(actor) {
		return nil, ErrForbidden
	}
	targetID = strings.TrimSpace(targetID)
	if !models.ValidParticipantID(targetID) || !targetRole.Valid() || targetID == actor.UserID {
		return nil, ErrInvalidInput
	}
	category, ok := models.CategoryFor(actor.Role, targetRole)
	if !ok {
		return nil, ErrInvalidInput
	}

	connected, err := s.ledger.HasAccepted(ctx, actor.UserID, targetID)
	if err != nil {
		return nil, err
	}
	if connected {
		return nil, ErrAlreadyAccepted
	}

	createdDate, createdTime := s.stamp()
	request, err := s.ledger.Create(ctx, repository.CreateRequestInput{
		RequesterRole: actor.Role,
		RequesterID:   actor.UserID,
		TargetRole:    targetRole,
		TargetID:      targetID,
		Category:      category,
		CreatedDate:   createdDate,
		CreatedTime:   createdTime,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("connection request created",
		zap.String("request_id", request.ID),
		zap.String("requester_id", request.RequesterID),
		zap.String("target_id", request.TargetID),
		zap.String("category", string(request.Category)),
	)
	return request, nil
}

// ListPending returns the requests addressed to the viewer that still wait for acceptance.
func (s *RequestService) ListPending(ctx context.Context, viewer models.Identity) (models.RequestPartitions, error) {
	return s.list(ctx, viewer, func(request *models.ConnectionRequest) bool {
		return request.Status == models.RequestPending && request.TargetID == viewer.UserID
	})
}

// ListAccepted returns every accepted connection of the viewer, on either side.
func (s *RequestService) ListAccepted(ctx context.Context, viewer models.Identity) (models.RequestPartitions, error) {
	return s.list(ctx, viewer, func(request *models.ConnectionRequest) bool {
		return request.Status == models.RequestAccepted
	})
}

func (s *RequestService) list(
	ctx context.Context,
	viewer models.Identity,
	keep func(*models.ConnectionRequest) bool,
) (models.RequestPartitions, error) {
	partitions := models.NewRequestPartitions()
	if !validIdentity(viewer) {
		return partitions, ErrForbidden
	}

	requests, err := s.ledger.ListByRole(ctx, viewer.Role, viewer.UserID)
	if err != nil {
		return partitions, err
	}

	selected := make([]models.ConnectionRequest, 0, len(requests))
	for i := range requests {
		if keep(&requests[i]) {
			selected = append(selected, requests[i])
		}
	}

	names := s.counterpartNames(ctx, viewer.UserID, selected)
	for i := range selected {
		partitions.Add(toView(&selected[i], viewer.UserID, names))
	}
	return partitions, nil
}

// Accept moves a pending request addressed to the viewer into Accepted. The
// acceptance stamp is taken here and is the one every client reflects.
func (s *RequestService) Accept(ctx context.Context, requestID string, viewer models.Identity) (*models.RequestView, error) {
	if !validIdentity(viewer) {
		return nil, ErrForbidden
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, ErrNotFound
	}

	request, err := s.ledger.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.TargetID != viewer.UserID || request.TargetRole != viewer.Role {
		return nil, ErrForbidden
	}
	if request.Status == models.RequestAccepted {
		return nil, ErrAlreadyAccepted
	}

	acceptedDate, acceptedTime := s.stamp()
	accepted, err := s.ledger.MarkAccepted(ctx, request.ID, acceptedDate, acceptedTime)
	if err != nil {
		return nil, err
	}

	s.log.Info("connection request accepted",
		zap.String("request_id", accepted.ID),
		zap.String("target_id", accepted.TargetID),
		zap.String("accepted_date", accepted.AcceptedDate),
		zap.String("accepted_time", accepted.AcceptedTime),
	)

	names := s.counterpartNames(ctx, viewer.UserID, []models.ConnectionRequest{*accepted})
	view := toView(accepted, viewer.UserID, names)
	return &view, nil
}

// Authorize fails with ErrUnauthorized unless an accepted request links a and b.
func (s *RequestService) Authorize(ctx context.Context, a string, b string) error {
	if a == "" || b == "" || a == b {
		return ErrUnauthorized
	}
	connected, err := s.ledger.HasAccepted(ctx, a, b)
	if err != nil {
		return err
	}
	if !connected {
		return ErrUnauthorized
	}
	return nil
}

// Contacts lists accepted counterparts whose name or id contains query.
func (s *RequestService) Contacts(
	ctx context.Context,
	viewer models.Identity,
	query string,
	page int,
	limit int,
) ([]models.Contact, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	accepted, err := s.ListAccepted(ctx, viewer)
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]struct{})
	contacts := make([]models.Contact, 0)
	for _, category := range models.Categories {
		for _, view := range accepted.Get(category) {
			if _, dup := seen[view.CounterpartID]; dup {
				continue
			}
			if needle != "" &&
				!strings.Contains(strings.ToLower(view.CounterpartName), needle) &&
				!strings.Contains(strings.ToLower(view.CounterpartID), needle) {
				continue
			}
			seen[view.CounterpartID] = struct{}{}
			contacts = append(contacts, models.Contact{
				UserID:       view.CounterpartID,
				Role:         view.CounterpartRole,
				DisplayName:  view.CounterpartName,
				Category:     view.Category,
				RequestID:    view.ID,
				AcceptedDate: view.AcceptedDate,
				AcceptedTime: view.AcceptedTime,
			})
		}
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		left, right := strings.ToLower(contacts[i].DisplayName), strings.ToLower(contacts[j].DisplayName)
		if left == right {
			return contacts[i].UserID < contacts[j].UserID
		}
		return left < right
	})

	total := len(contacts)
	start := (page - 1) * limit
	if start >= total {
		return []models.Contact{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return contacts[start:end], total, nil
}

// counterpartNames is best effort: a directory failure leaves names empty
// rather than failing the listing.
func (s *RequestService) counterpartNames(
	ctx context.Context,
	viewerID string,
	requests []models.ConnectionRequest,
) map[string]string {
	if s.directory == nil || len(requests) == 0 {
		return nil
	}
	ids := make([]string, 0, len(requests))
	for i := range requests {
		id, _ := requests[i].Counterpart(viewerID)
		ids = append(ids, id)
	}
	names, err := s.directory.DisplayNames(ctx, ids)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Warn("resolve counterpart names", zap.Error(err))
		}
		return nil
	}
	return names
}

func toView(request *models.ConnectionRequest, viewerID string, names map[string]string) models.RequestView {
	counterpartID, counterpartRole := request.Counterpart(viewerID)
	return models.RequestView{
		ID:              request.ID,
		CounterpartID:   counterpartID,
		CounterpartRole: counterpartRole,
		CounterpartName: names[counterpartID],
		Category:        request.Category,
		Status:          request.Status,
		CreatedDate:     request.CreatedDate,
		CreatedTime:     request.CreatedTime,
		AcceptedDate:    request.AcceptedDate,
		AcceptedTime:    request.AcceptedTime,
	}
}
