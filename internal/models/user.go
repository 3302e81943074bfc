package models

import "time"

// Roles known to the authentication collaborator.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User represents a user of the store.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string    `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password  string    `json:"password,omitempty" gorm:"type:varchar(255)" validate:"required,min=6"`
	Role      string    `json:"role" gorm:"type:varchar(20);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated caller of an operation.
// A zero Principal means nobody is signed in.
type Principal struct {
	UserID string
	Role   string
}

// Authenticated reports whether the principal carries a user id.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}
