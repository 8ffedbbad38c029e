package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/ums-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

var gradeRowColumns = []string{
	"id", "enrollment_id", "class_participation", "assignment_score", "quiz", "project",
	"mid_term", "final_term", "remarks", "finalized", "finalized_at", "created_at", "updated_at",
}

func TestGradeRepositoryUpsertComponentsInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO grades").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, enrollment_id, class_participation").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).
			AddRow("grd-1", "enr-1", nil, nil, floatPtr(8), nil, nil, nil, nil, false, nil, time.Now(), time.Now()))
	mock.ExpectCommit()

	stored, err := repo.UpsertComponents(context.Background(), &models.Grade{EnrollmentID: "enr-1", Quiz: floatPtr(8)})
	require.NoError(t, err)
	require.Equal(t, "grd-1", stored.ID)
	require.NotNil(t, stored.Quiz)
	require.Nil(t, stored.MidTerm)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertComponentsRejectsFinalized(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"finalized"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.UpsertComponents(context.Background(), &models.Grade{EnrollmentID: "enr-1", Quiz: floatPtr(8)})
	require.ErrorIs(t, err, ErrGradeFinalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFinalize(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"finalized"}).AddRow(false))
	mock.ExpectExec("UPDATE grades SET finalized = TRUE").
		WithArgs("enr-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusCompleted, models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, enrollment_id, class_participation").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(gradeRowColumns).
			AddRow("grd-1", "enr-1", floatPtr(4), floatPtr(9), floatPtr(8), floatPtr(12), floatPtr(15), floatPtr(30), nil, true, time.Now(), time.Now(), time.Now()))
	mock.ExpectCommit()

	stored, err := repo.Finalize(context.Background(), "enr-1")
	require.NoError(t, err)
	require.True(t, stored.Finalized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFinalizeMissingGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT finalized FROM grades WHERE enrollment_id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Finalize(context.Background(), "enr-1")
	require.ErrorIs(t, err, ErrGradeNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryTranscriptRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{
		"enrollment_id", "semester", "academic_year", "status",
		"subject_code", "subject_name", "credit_hours",
		"class_participation", "assignment_score", "quiz", "project", "mid_term", "final_term", "graded_at",
	}).
		AddRow("enr-1", "FALL", "2025-2026", models.EnrollmentStatusCompleted, "CS101", "Programming Fundamentals", 3,
			floatPtr(5), floatPtr(9), floatPtr(8), floatPtr(13), floatPtr(18), floatPtr(35), time.Now()).
		AddRow("enr-2", "FALL", "2025-2026", models.EnrollmentStatusActive, "MA101", "Calculus I", 4,
			nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT e.id AS enrollment_id").
		WithArgs("stu-1").
		WillReturnRows(rows)

	got, err := repo.TranscriptRows(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].HasGrade())
	require.False(t, got[1].HasGrade())
	require.NoError(t, mock.ExpectationsWereMet())
}
