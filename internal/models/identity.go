package models

import "strings"

type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleLaboratory Role = "laboratory"
	RolePharmacy   Role = "pharmacy"
)

// Category partitions connection requests by the provider side of the pair.
type Category string

const (
	CategoryLab      Category = "lab"
	CategoryPharmacy Category = "pharmacy"
	CategoryDoctor   Category = "doctor"
)

var Categories = []Category{CategoryLab, CategoryPharmacy, CategoryDoctor}

// Identity is the verified actor handed to the core by the authentication layer.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleLaboratory, "lab":
		return RoleLaboratory, true
	case RolePharmacy:
		return RolePharmacy, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleLaboratory, RolePharmacy:
		return true
	default:
		return false
	}
}

func (r Role) IsProvider() bool {
	return r == RoleDoctor || r == RoleLaboratory || r == RolePharmacy
}

func (c Category) Valid() bool {
	switch c {
	case CategoryLab, CategoryPharmacy, CategoryDoctor:
		return true
	default:
		return false
	}
}

// CategoryFor derives the request category from the two roles of a pair.
// Exactly one side must be a provider; the other must be a patient.
func CategoryFor(a, b Role) (Category, bool) {
	provider := a
	other := b
	if !provider.IsProvider() {
		provider, other = b, a
	}
	if !provider.IsProvider() || other != RolePatient {
		return "", false
	}
	switch provider {
	case RoleLaboratory:
		return CategoryLab, true
	case RolePharmacy:
		return CategoryPharmacy, true
	default:
		return CategoryDoctor, true
	}
}
