package models

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
)

type ConnectionRequest struct {
	ID            string        `json:"id" db:"id"`
	RequesterRole Role          `json:"requesterRole" db:"requester_role"`
	RequesterID   string        `json:"requesterId" db:"requester_id"`
	TargetRole    Role          `json:"targetRole" db:"target_role"`
	TargetID      string        `json:"targetId" db:"target_id"`
	Category      Category      `json:"category" db:"category"`
	Status        RequestStatus `json:"status" db:"status"`
	CreatedDate   string        `json:"createdDate" db:"created_date"`
	CreatedTime   string        `json:"createdTime" db:"created_time"`
	AcceptedDate  string        `json:"acceptedDate,omitempty" db:"accepted_date"`
	AcceptedTime  string        `json:"acceptedTime,omitempty" db:"accepted_time"`
}

func (r *ConnectionRequest) Involves(userID string) bool {
	return r.RequesterID == userID || r.TargetID == userID
}

// Counterpart returns the id and role of the party opposite to userID.
func (r *ConnectionRequest) Counterpart(userID string) (string, Role) {
	if r.RequesterID == userID {
		return r.TargetID, r.TargetRole
	}
	return r.RequesterID, r.RequesterRole
}

// RequestView is the listing shape returned to a viewer.
type RequestView struct {
	ID              string        `json:"id"`
	CounterpartID   string        `json:"counterpartId"`
	CounterpartRole Role          `json:"counterpartRole"`
	CounterpartName string        `json:"counterpartName"`
	Category        Category      `json:"category"`
	Status          RequestStatus `json:"status"`
	CreatedDate     string        `json:"createdDate"`
	CreatedTime     string        `json:"createdTime"`
	AcceptedDate    string        `json:"acceptedDate,omitempty"`
	AcceptedTime    string        `json:"acceptedTime,omitempty"`
}

// RequestPartitions groups request views by category for independent display.
type RequestPartitions struct {
	Lab      []RequestView `json:"lab"`
	Pharmacy []RequestView `json:"pharmacy"`
	Doctor   []RequestView `json:"doctor"`
}

func NewRequestPartitions() RequestPartitions {
	return RequestPartitions{
		Lab:      make([]RequestView, 0),
		Pharmacy: make([]RequestView, 0),
		Doctor:   make([]RequestView, 0),
	}
}

func (p *RequestPartitions) Add(view RequestView) {
	switch view.Category {
	case CategoryLab:
		p.Lab = append(p.Lab, view)
	case CategoryPharmacy:
		p.Pharmacy = append(p.Pharmacy, view)
	case CategoryDoctor:
		p.Doctor = append(p.Doctor, view)
	}
}

func (p RequestPartitions) Get(category Category) []RequestView {
	switch category {
	case CategoryLab:
		return p.Lab
	case CategoryPharmacy:
		return p.Pharmacy
	case CategoryDoctor:
		return p.Doctor
	default:
		return nil
	}
}

func (p RequestPartitions) Len() int {
	return len(p.Lab) + len(p.Pharmacy) + len(p.Doctor)
}

type Contact struct {
	UserID       string   `json:"userId"`
	Role         Role     `json:"role"`
	DisplayName  string   `json:"displayName"`
	Category     Category `json:"category"`
	RequestID    string   `json:"requestId"`
	AcceptedDate string   `json:"acceptedDate,omitempty"`
	AcceptedTime string   `json:"acceptedTime,omitempty"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}
