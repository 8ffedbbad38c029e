package models

import "time"

// Grade is the single assessment record attached to an enrollment.
// Component columns are NULL until a score is explicitly submitted, so a
// genuine zero is distinguishable from "never graded".
type Grade struct {
	ID                 string     `db:"id" json:"id"`
	EnrollmentID       string     `db:"enrollment_id" json:"enrollment_id"`
	ClassParticipation *float64   `db:"class_participation" json:"class_participation,omitempty"`
	Assignment         *float64   `db:"assignment_score" json:"assignment,omitempty"`
	Quiz               *float64   `db:"quiz" json:"quiz,omitempty"`
	Project            *float64   `db:"project" json:"project,omitempty"`
	MidTerm            *float64   `db:"mid_term" json:"mid_term,omitempty"`
	FinalTerm          *float64   `db:"final_term" json:"final_term,omitempty"`
	Remarks            *string    `db:"remarks" json:"remarks,omitempty"`
	Finalized          bool       `db:"finalized" json:"finalized"`
	FinalizedAt        *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// ComponentValues returns the stored component scores keyed by component
// name, nil where a score was never submitted.
func (g *Grade) ComponentValues() map[string]*float64 {
	return map[string]*float64{
		ComponentClassParticipation: g.ClassParticipation,
		ComponentAssignment:         g.Assignment,
		ComponentQuiz:               g.Quiz,
		ComponentProject:            g.Project,
		ComponentMidTerm:            g.MidTerm,
		ComponentFinalTerm:          g.FinalTerm,
	}
}

// Component names shared between the grade columns and the grading policy.
const (
	ComponentClassParticipation = "class_participation"
	ComponentAssignment         = "assignment"
	ComponentQuiz               = "quiz"
	ComponentProject            = "project"
	ComponentMidTerm            = "mid_term"
	ComponentFinalTerm          = "final_term"
)

// GradeView is the API shape of a grade: the stored record plus the
// derived figures, which are computed on read and never persisted.
type GradeView struct {
	Grade
	ObtainedMarks float64 `json:"obtained_marks"`
	Percentage    float64 `json:"percentage"`
	LetterGrade   string  `json:"letter_grade"`
	GPA           float64 `json:"gpa"`
	IsComplete    bool    `json:"is_complete"`
}

// ComponentAdjustment reports a submitted score that was clamped to its
// component band. Surfaced as a warning, not an error.
type ComponentAdjustment struct {
	Component string  `json:"component"`
	Submitted float64 `json:"submitted"`
	Applied   float64 `json:"applied"`
	Max       float64 `json:"max"`
}
