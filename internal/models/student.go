package models

import "time"

// Student represents a learner registered at the university. The directory
// itself is maintained elsewhere; this API only reads it to validate
// enrollment requests.
type Student struct {
	ID             string    `db:"id" json:"id"`
	RegistrationNo string    `db:"registration_no" json:"registration_no"`
	FullName       string    `db:"full_name" json:"full_name"`
	Program        string    `db:"program" json:"program"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
