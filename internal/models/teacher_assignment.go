package models

import "time"

// TeacherAssignment is one teacher's offering of one subject in one
// semester of an academic year, bounded by a seat capacity.
type TeacherAssignment struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	Semester     string    `db:"semester" json:"semester"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Capacity     int       `db:"capacity" json:"capacity"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TeacherAssignmentDetail enriches an assignment with directory names and
// the live count of ACTIVE enrollments. EnrolledCount is always computed
// from the enrollment rows, never stored.
type TeacherAssignmentDetail struct {
	TeacherAssignment
	TeacherName   string `db:"teacher_name" json:"teacher_name"`
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	CreditHours   int    `db:"credit_hours" json:"credit_hours"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// AssignmentCapacity answers the single question the enrollment protocol
// cares about: how many seats exist and how many are taken right now.
type AssignmentCapacity struct {
	AssignmentID  string `json:"assignment_id"`
	Capacity      int    `json:"capacity"`
	EnrolledCount int    `json:"enrolled_count"`
}

// SeatsFree reports remaining seats, never negative.
func (c AssignmentCapacity) SeatsFree() int {
	free := c.Capacity - c.EnrolledCount
	if free < 0 {
		return 0
	}
	return free
}

// TeacherAssignmentFilter provides filters for listing assignments.
type TeacherAssignmentFilter struct {
	TeacherID    string
	SubjectID    string
	Semester     string
	AcademicYear string
	ActiveOnly   bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
