package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/ums-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(s string) *string { return &s }

func TestEnrollmentRepositoryCreateGuardedSuccess(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "is_active"}).AddRow(2, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "sub-1", "FALL", "2025-2026").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{
		StudentID:           "stu-1",
		SubjectID:           "sub-1",
		TeacherAssignmentID: strPtr("ta-1"),
		Semester:            "FALL",
		AcademicYear:        "2025-2026",
	}
	err := repo.CreateGuarded(context.Background(), enrollment)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGuardedFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "is_active"}).AddRow(1, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{
		StudentID:           "stu-1",
		SubjectID:           "sub-1",
		TeacherAssignmentID: strPtr("ta-1"),
		Semester:            "FALL",
		AcademicYear:        "2025-2026",
	}
	err := repo.CreateGuarded(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrAssignmentFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGuardedDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "is_active"}).AddRow(5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "sub-1", "FALL", "2025-2026").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{
		StudentID:           "stu-1",
		SubjectID:           "sub-1",
		TeacherAssignmentID: strPtr("ta-1"),
		Semester:            "FALL",
		AcademicYear:        "2025-2026",
	}
	err := repo.CreateGuarded(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGuardedDuplicateAcrossAssignments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// A concurrent enroll into another assignment of the same subject and
	// term passes the in-tx duplicate probe (that row is not committed yet)
	// and trips the partial unique index on insert instead.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-2").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "is_active"}).AddRow(5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "sub-1", "FALL", "2025-2026").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_enrollments_active_subject_term"})
	mock.ExpectRollback()

	enrollment := &models.Enrollment{
		StudentID:           "stu-1",
		SubjectID:           "sub-1",
		TeacherAssignmentID: strPtr("ta-2"),
		Semester:            "FALL",
		AcademicYear:        "2025-2026",
	}
	err := repo.CreateGuarded(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGuardedInactive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, is_active FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "is_active"}).AddRow(5, false))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{
		StudentID:           "stu-1",
		SubjectID:           "sub-1",
		TeacherAssignmentID: strPtr("ta-1"),
		Semester:            "FALL",
		AcademicYear:        "2025-2026",
	}
	err := repo.CreateGuarded(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrAssignmentInactive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.EnrollmentStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"finalized"}).AddRow(false))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusDropped, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UnenrollGuarded(context.Background(), "enr-1", false, false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollGuardedBlocksFinalized(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.EnrollmentStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"finalized"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.UnenrollGuarded(context.Background(), "enr-1", false, false)
	require.ErrorIs(t, err, ErrGradeFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollGuardedNotActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.EnrollmentStatusDropped))
	mock.ExpectRollback()

	err := repo.UnenrollGuarded(context.Background(), "enr-1", false, false)
	require.ErrorIs(t, err, ErrEnrollmentNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "student_id", "subject_id", "teacher_assignment_id", "semester", "academic_year", "status", "created_at", "dropped_at",
		"student_name", "registration_no", "subject_code", "subject_name", "credit_hours",
	}).AddRow("enr-1", "stu-1", "sub-1", "ta-1", "FALL", "2025-2026", models.EnrollmentStatusActive, time.Now(), nil,
		"Amina Yusuf", "REG-001", "CS101", "Programming Fundamentals", 3)
	mock.ExpectQuery("SELECT e.id, e.student_id").
		WithArgs("stu-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	require.Equal(t, "CS101", enrollments[0].SubjectCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
