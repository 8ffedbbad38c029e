package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/ums-api/internal/models"
)

// GradeRepository persists the single grade record per enrollment.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, enrollment_id, class_participation, assignment_score, quiz, project, mid_term, final_term, remarks, finalized, finalized_at, created_at, updated_at`

// FindByEnrollment returns the grade attached to an enrollment.
func (r *GradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE enrollment_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// UpsertComponents merges the submitted component scores into the grade
// row, creating it on first write. Only non-nil values overwrite; a column
// never submitted stays NULL so "ungraded" remains distinguishable from an
// explicit zero. Writes against a finalized grade are rejected.
func (r *GradeRepository) UpsertComponents(ctx context.Context, grade *models.Grade) (*models.Grade, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var finalized bool
	err = tx.GetContext(ctx, &finalized, `SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE`, grade.EnrollmentID)
	switch {
	case err == sql.ErrNoRows:
		if grade.ID == "" {
			grade.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		grade.CreatedAt = now
		grade.UpdatedAt = now
		const insert = `INSERT INTO grades (id, enrollment_id, class_participation, assignment_score, quiz, project, mid_term, final_term, remarks, finalized, created_at, updated_at)
            VALUES (:id, :enrollment_id, :class_participation, :assignment_score, :quiz, :project, :mid_term, :final_term, :remarks, FALSE, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, grade); err != nil {
			return nil, fmt.Errorf("insert grade: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lock grade: %w", err)
	case finalized:
		return nil, ErrGradeFinalized
	default:
		grade.UpdatedAt = time.Now().UTC()
		const update = `UPDATE grades SET
            class_participation = COALESCE(:class_participation, class_participation),
            assignment_score = COALESCE(:assignment_score, assignment_score),
            quiz = COALESCE(:quiz, quiz),
            project = COALESCE(:project, project),
            mid_term = COALESCE(:mid_term, mid_term),
            final_term = COALESCE(:final_term, final_term),
            remarks = COALESCE(:remarks, remarks),
            updated_at = :updated_at
            WHERE enrollment_id = :enrollment_id`
		if _, err := tx.NamedExecContext(ctx, update, grade); err != nil {
			return nil, fmt.Errorf("update grade: %w", err)
		}
	}

	var stored models.Grade
	if err := tx.GetContext(ctx, &stored, `SELECT `+gradeColumns+` FROM grades WHERE enrollment_id = $1`, grade.EnrollmentID); err != nil {
		return nil, fmt.Errorf("reload grade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade upsert: %w", err)
	}
	return &stored, nil
}

// Finalize locks the grade record and, in the same transaction, moves the
// enrollment to COMPLETED. After this the grade is immutable.
func (r *GradeRepository) Finalize(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade finalize: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var finalized bool
	err = tx.GetContext(ctx, &finalized, `SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE`, enrollmentID)
	if err == sql.ErrNoRows {
		return nil, ErrGradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock grade: %w", err)
	}
	if finalized {
		return nil, ErrGradeFinalized
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE grades SET finalized = TRUE, finalized_at = $2, updated_at = $2 WHERE enrollment_id = $1`, enrollmentID, now); err != nil {
		return nil, fmt.Errorf("finalize grade: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE enrollments SET status = $2 WHERE id = $1 AND status = $3`,
		enrollmentID, models.EnrollmentStatusCompleted, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("complete enrollment: %w", err)
	}

	var stored models.Grade
	if err := tx.GetContext(ctx, &stored, `SELECT `+gradeColumns+` FROM grades WHERE enrollment_id = $1`, enrollmentID); err != nil {
		return nil, fmt.Errorf("reload grade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade finalize: %w", err)
	}
	return &stored, nil
}

// TranscriptRows returns every enrollment of a student joined with its
// subject and grade, ordered for term grouping. A single query keeps the
// projection consistent within one read.
func (r *GradeRepository) TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT e.id AS enrollment_id, e.semester, e.academic_year, e.status,
        s.code AS subject_code, s.name AS subject_name, s.credit_hours,
        g.class_participation, g.assignment_score, g.quiz, g.project, g.mid_term, g.final_term, g.updated_at AS graded_at
        FROM enrollments e
        JOIN subjects s ON s.id = e.subject_id
        LEFT JOIN grades g ON g.enrollment_id = e.id
        WHERE e.student_id = $1
        ORDER BY e.academic_year ASC, e.semester ASC, s.code ASC`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("load transcript rows: %w", err)
	}
	return rows, nil
}
