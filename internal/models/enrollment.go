package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Enrollment captures a student's membership in a teacher assignment for
// one semester of an academic year. TeacherAssignmentID is nullable because
// rows imported from the legacy system predate assignments.
type Enrollment struct {
	ID                  string           `db:"id" json:"id"`
	StudentID           string           `db:"student_id" json:"student_id"`
	SubjectID           string           `db:"subject_id" json:"subject_id"`
	TeacherAssignmentID *string          `db:"teacher_assignment_id" json:"teacher_assignment_id,omitempty"`
	Semester            string           `db:"semester" json:"semester"`
	AcademicYear        string           `db:"academic_year" json:"academic_year"`
	Status              EnrollmentStatus `db:"status" json:"status"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	DroppedAt           *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and subject info.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	RegistrationNo string `db:"registration_no" json:"registration_no"`
	SubjectCode    string `db:"subject_code" json:"subject_code"`
	SubjectName    string `db:"subject_name" json:"subject_name"`
	CreditHours    int    `db:"credit_hours" json:"credit_hours"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID           string
	SubjectID           string
	TeacherAssignmentID string
	Semester            string
	AcademicYear        string
	Status              EnrollmentStatus
	Page                int
	PageSize            int
	SortBy              string
	SortOrder           string
}
