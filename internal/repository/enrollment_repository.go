package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuskit/ums-api/internal/models"
)

// Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// EnrollmentRepository handles persistence of enrollments. Every mutation
// that affects a seat count runs inside one transaction holding a row lock
// on the teacher assignment, so the capacity check and the write are a
// single atomic unit.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN subjects s ON s.id = e.subject_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherAssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.teacher_assignment_id = $%d", len(args)+1))
		args = append(args, filter.TeacherAssignmentID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("e.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "st.full_name",
		"subject_name": "s.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.subject_id, e.teacher_assignment_id, e.semester, e.academic_year, e.status, e.created_at, e.dropped_at,
        st.full_name AS student_name, st.registration_no, s.code AS subject_code, s.name AS subject_name, s.credit_hours
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, teacher_assignment_id, semester, academic_year, status, created_at, dropped_at
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.subject_id, e.teacher_assignment_id, e.semester, e.academic_year, e.status, e.created_at, e.dropped_at,
        st.full_name AS student_name, st.registration_no, s.code AS subject_code, s.name AS subject_name, s.credit_hours
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN subjects s ON s.id = e.subject_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateGuarded inserts a new ACTIVE enrollment as one atomic unit: it
// locks the assignment row, re-reads the live ACTIVE count and the
// duplicate tuple under that lock, and only then inserts. A plain
// read-compare-insert sequence would race; two concurrent enrolls must
// serialize on the assignment lock so at most one wins the last seat.
//
// The assignment lock cannot serialize two enrolls of the same student
// into different assignments of one (subject, semester, year). That case
// is caught by the partial unique index
// uq_enrollments_active_subject_term ON enrollments
// (student_id, subject_id, semester, academic_year) WHERE status = 'ACTIVE',
// whose violation is mapped back to ErrDuplicateEnrollment here.
func (r *EnrollmentRepository) CreateGuarded(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.TeacherAssignmentID == nil || *enrollment.TeacherAssignmentID == "" {
		return ErrAssignmentNotFound
	}
	assignmentID := *enrollment.TeacherAssignmentID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var assignment struct {
		Capacity int  `db:"capacity"`
		IsActive bool `db:"is_active"`
	}
	if err := tx.GetContext(ctx, &assignment, `SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE`, assignmentID); err != nil {
		if err == sql.ErrNoRows {
			return ErrAssignmentNotFound
		}
		return fmt.Errorf("lock assignment: %w", err)
	}
	if !assignment.IsActive {
		return ErrAssignmentInactive
	}

	var enrolled int
	if err := tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'`, assignmentID); err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	if enrolled >= assignment.Capacity {
		return ErrAssignmentFull
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2 AND semester = $3 AND academic_year = $4 AND status = 'ACTIVE' LIMIT 1`,
		enrollment.StudentID, enrollment.SubjectID, enrollment.Semester, enrollment.AcademicYear)
	if err == nil {
		return ErrDuplicateEnrollment
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check duplicate enrollment: %w", err)
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusActive

	const insert = `INSERT INTO enrollments (id, student_id, subject_id, teacher_assignment_id, semester, academic_year, status, created_at)
        VALUES (:id, :student_id, :subject_id, :teacher_assignment_id, :semester, :academic_year, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

// UnenrollGuarded transitions an ACTIVE enrollment to DROPPED (or deletes
// the row when hardDelete is set). The enrollment row is locked so the seat
// is freed exactly once; unless allowFinalized is set, a finalized grade
// blocks removal.
func (r *EnrollmentRepository) UnenrollGuarded(ctx context.Context, id string, allowFinalized, hardDelete bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unenroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status models.EnrollmentStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return ErrEnrollmentNotFound
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if status != models.EnrollmentStatusActive {
		return ErrEnrollmentNotActive
	}

	if !allowFinalized {
		var finalized bool
		err := tx.GetContext(ctx, &finalized, `SELECT finalized FROM grades WHERE enrollment_id = $1`, id)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("check grade finalized: %w", err)
		}
		if err == nil && finalized {
			return ErrGradeFinalized
		}
	}

	if hardDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM grades WHERE enrollment_id = $1`, id); err != nil {
			return fmt.Errorf("delete enrollment grade: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, dropped_at = $3 WHERE id = $1`,
			id, models.EnrollmentStatusDropped, time.Now().UTC()); err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unenroll: %w", err)
	}
	return nil
}
