package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTeacherAssignmentRepositoryCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery("SELECT ta.id AS assignment_id, ta.capacity").
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"assignment_id", "capacity", "enrolled_count"}).AddRow("ta-1", 30, 12))

	capacity, err := repo.Capacity(context.Background(), "ta-1")
	require.NoError(t, err)
	require.Equal(t, 30, capacity.Capacity)
	require.Equal(t, 12, capacity.EnrolledCount)
	require.Equal(t, 18, capacity.SeatsFree())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryCapacityNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery("SELECT ta.id AS assignment_id, ta.capacity").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"assignment_id", "capacity", "enrolled_count"}))

	_, err := repo.Capacity(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAssignmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositorySetCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("UPDATE teacher_assignments SET capacity").
		WithArgs("ta-1", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	capacity, err := repo.SetCapacity(context.Background(), "ta-1", 20)
	require.NoError(t, err)
	require.Equal(t, 20, capacity.Capacity)
	require.Equal(t, 12, capacity.EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositorySetCapacityBelowEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM teacher_assignments WHERE id = $1 FOR UPDATE")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1 AND status = 'ACTIVE'")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectRollback()

	_, err := repo.SetCapacity(context.Background(), "ta-1", 10)
	require.ErrorIs(t, err, ErrCapacityBelowEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryDeleteBlockedByEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE teacher_assignment_id = $1")).
		WithArgs("ta-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "ta-1")
	require.ErrorIs(t, err, ErrAssignmentHasEnrollments)
	require.NoError(t, mock.ExpectationsWereMet())
}
