package profile

import "time"

// Profile is a verified student record, unique by phone.
type Profile struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	IsVerified bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpsertInput carries the mutable contact fields written on verification.
type UpsertInput struct {
	Phone string
	Name  string
	Email string
	At    time.Time
}
