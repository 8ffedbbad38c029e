package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/ums-api/internal/models"
)

// enrolledCountExpr computes the live count of ACTIVE enrollments for an
// assignment. The count is always derived from the enrollment rows; there
// is no cached counter to drift.
const enrolledCountExpr = `(SELECT COUNT(*) FROM enrollments e WHERE e.teacher_assignment_id = ta.id AND e.status = 'ACTIVE')`

// TeacherAssignmentRepository persists teacher-subject offerings and is the
// single authority on seat capacity.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// Create inserts a new assignment.
func (r *TeacherAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_assignments (id, teacher_id, subject_id, semester, academic_year, capacity, is_active, created_at)
        VALUES (:id, :teacher_id, :subject_id, :semester, :academic_year, :capacity, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create teacher assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by its ID.
func (r *TeacherAssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, teacher_id, subject_id, semester, academic_year, capacity, is_active, created_at
        FROM teacher_assignments WHERE id = $1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindDetailByID returns an assignment with directory names and the live
// enrolled count.
func (r *TeacherAssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.TeacherAssignmentDetail, error) {
	query := `SELECT ta.id, ta.teacher_id, ta.subject_id, ta.semester, ta.academic_year, ta.capacity, ta.is_active, ta.created_at,
        t.full_name AS teacher_name, s.code AS subject_code, s.name AS subject_name, s.credit_hours,
        ` + enrolledCountExpr + ` AS enrolled_count
        FROM teacher_assignments ta
        JOIN teachers t ON t.id = ta.teacher_id
        JOIN subjects s ON s.id = ta.subject_id
        WHERE ta.id = $1`
	var detail models.TeacherAssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns assignments filtered by the provided criteria.
func (r *TeacherAssignmentRepository) List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, int, error) {
	base := `FROM teacher_assignments ta
JOIN teachers t ON t.id = ta.teacher_id
JOIN subjects s ON s.id = ta.subject_id`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("ta.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("ta.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("ta.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("ta.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "ta.is_active = TRUE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "ta.created_at",
		"subject_name": "s.name",
		"teacher_name": "t.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "ta.created_at"
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

	query := fmt.Sprintf(`SELECT ta.id, ta.teacher_id, ta.subject_id, ta.semester, ta.academic_year, ta.capacity, ta.is_active, ta.created_at,
        t.full_name AS teacher_name, s.code AS subject_code, s.name AS subject_name, s.credit_hours,
        %s AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrolledCountExpr, base+clause, orderBy, order, size, offset)

	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teacher assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teacher assignments: %w", err)
	}
	return assignments, total, nil
}

// Capacity reports seat capacity and the live ACTIVE enrollment count.
func (r *TeacherAssignmentRepository) Capacity(ctx context.Context, id string) (*models.AssignmentCapacity, error) {
	query := `SELECT ta.id AS assignment_id, ta.capacity, ` + enrolledCountExpr + ` AS enrolled_count
        FROM teacher_assignments ta WHERE ta.id = $1`
	var row struct {
		AssignmentID  string `db:"assignment_id"`
		Capacity      int    `db:"capacity"`
		EnrolledCount int    `db:"enrolled_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("read assignment capacity: %w", err)
	}
	return &models.AssignmentCapacity{AssignmentID: row.AssignmentID, Capacity: row.Capacity, EnrolledCount: row.EnrolledCount}, nil
}

// SetCapacity updates the seat capacity inside one transaction. The
// assignment row is locked and the ACTIVE count re-read under the lock so a
// concurrent enroll cannot slip past a shrinking capacity.
func (r *TeacherAssignmentRepository) SetCapacity(ctx context.Context, id string, newCapacity int) (*models.AssignmentCapacity, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set capacity: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM teacher_assignments WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("lock assignment: %w", err)
	}

	var enrolled int
	if err := tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'`, id); err != nil {
		return nil, fmt.Errorf("count active enrollments: %w", err)
	}
	if newCapacity < enrolled {
		return nil, ErrCapacityBelowEnrolled
	}

	if _, err := tx.ExecContext(ctx, `UPDATE teacher_assignments SET capacity = $2 WHERE id = $1`, id, newCapacity); err != nil {
		return nil, fmt.Errorf("update capacity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set capacity: %w", err)
	}
	return &models.AssignmentCapacity{AssignmentID: id, Capacity: newCapacity, EnrolledCount: enrolled}, nil
}

// Deactivate marks an assignment inactive. Assignments with enrollments are
// deactivated, never deleted.
func (r *TeacherAssignmentRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE teacher_assignments SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivated rows: %w", err)
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// Delete removes an assignment only when no enrollment ever referenced it.
func (r *TeacherAssignmentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete assignment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1`, id); err != nil {
		return fmt.Errorf("count assignment enrollments: %w", err)
	}
	if count > 0 {
		return ErrAssignmentHasEnrollments
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM teacher_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}
	return tx.Commit()
}
