package models

import "time"

type Profile struct {
	UserID      string    `json:"userId" db:"user_id"`
	Role        Role      `json:"role" db:"role"`
	DisplayName string    `json:"displayName" db:"display_name"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
