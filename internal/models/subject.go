package models

import "time"

// Subject represents an academic subject offered by a department.
// CreditHours weights the subject in GPA aggregation.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Department  string    `db:"department" json:"department"`
	CreditHours int       `db:"credit_hours" json:"credit_hours"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
