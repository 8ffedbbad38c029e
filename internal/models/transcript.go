package models

import "time"

// TranscriptRow is the flat storage shape a transcript is computed from:
// one row per enrollment with its subject and (possibly absent) grade.
type TranscriptRow struct {
	EnrollmentID       string           `db:"enrollment_id"`
	Semester           string           `db:"semester"`
	AcademicYear       string           `db:"academic_year"`
	Status             EnrollmentStatus `db:"status"`
	SubjectCode        string           `db:"subject_code"`
	SubjectName        string           `db:"subject_name"`
	CreditHours        int              `db:"credit_hours"`
	ClassParticipation *float64         `db:"class_participation"`
	Assignment         *float64         `db:"assignment_score"`
	Quiz               *float64         `db:"quiz"`
	Project            *float64         `db:"project"`
	MidTerm            *float64         `db:"mid_term"`
	FinalTerm          *float64         `db:"final_term"`
	GradedAt           *time.Time       `db:"graded_at"`
}

// ComponentValues mirrors Grade.ComponentValues for transcript rows.
func (r *TranscriptRow) ComponentValues() map[string]*float64 {
	return map[string]*float64{
		ComponentClassParticipation: r.ClassParticipation,
		ComponentAssignment:         r.Assignment,
		ComponentQuiz:               r.Quiz,
		ComponentProject:            r.Project,
		ComponentMidTerm:            r.MidTerm,
		ComponentFinalTerm:          r.FinalTerm,
	}
}

// HasGrade reports whether a grade row exists for the enrollment.
func (r *TranscriptRow) HasGrade() bool {
	return r.GradedAt != nil
}

// TranscriptCourse is one enrollment's line on a transcript.
type TranscriptCourse struct {
	EnrollmentID  string           `json:"enrollment_id"`
	SubjectCode   string           `json:"subject_code"`
	SubjectName   string           `json:"subject_name"`
	CreditHours   int              `json:"credit_hours"`
	Status        EnrollmentStatus `json:"status"`
	Graded        bool             `json:"graded"`
	ObtainedMarks *float64         `json:"obtained_marks,omitempty"`
	LetterGrade   *string          `json:"letter_grade,omitempty"`
	GPA           *float64         `json:"gpa,omitempty"`
}

// TranscriptTerm groups courses taken in one (semester, academic year).
// SemesterGPA covers graded courses only; TotalCredits covers all.
type TranscriptTerm struct {
	Semester      string             `json:"semester"`
	AcademicYear  string             `json:"academic_year"`
	Courses       []TranscriptCourse `json:"courses"`
	SemesterGPA   *float64           `json:"semester_gpa,omitempty"`
	GradedCredits int                `json:"graded_credits"`
	TotalCredits  int                `json:"total_credits"`
}

// Transcript is a read-only projection computed on demand from a student's
// enrollments and grades. It is never persisted.
type Transcript struct {
	StudentID      string           `json:"student_id"`
	StudentName    string           `json:"student_name"`
	RegistrationNo string           `json:"registration_no"`
	Terms          []TranscriptTerm `json:"terms"`
	CGPA           *float64         `json:"cgpa,omitempty"`
	TotalCredits   int              `json:"total_credits"`
	Classification string           `json:"classification"`
}
