package model

import "time"

// StaffUser is a dashboard account scoped to one restaurant.
type StaffUser struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type PrincipalKind string

const (
	PrincipalStaff PrincipalKind = "staff"
	PrincipalGuest PrincipalKind = "guest"
)

// Principal is a resolved session: either a staff account or a short-lived
// guest table session.
type Principal struct {
	Kind         PrincipalKind
	UserID       string // staff only
	RestaurantID string
	TableNumber  *int // guest only
}
