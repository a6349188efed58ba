package models

import "time"

// User is a row of the users table.
//
// Password and RefreshToken hold bcrypt hashes, never the raw secrets.
// An empty RefreshToken means there is no active session.
type User struct {
	ID                string
	Name              string
	Email             string
	Password          string
	SignupVerifyToken string
	RefreshToken      string
	CreatedAt         time.Time
}
