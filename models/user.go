package models

import (
	"fmt"
	"time"
)

// Role is the capability class attached to an identity at signup.
type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleResearcher Role = "researcher"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleResearcher:
		return true
	}
	return false
}

// ParseRole converts a raw role claim into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is a registered wallet identity. The identity is the base58 encoded
// ed25519 public key of the wallet.
type User struct {
	Identity  string    `json:"wallet_address" db:"identity"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(identity string, role Role) *User {
	return &User{
		Identity:  identity,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
}
