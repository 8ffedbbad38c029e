package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/ums-api/internal/models"
	"github.com/campuskit/ums-api/internal/repository"
	appErrors "github.com/campuskit/ums-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollment   *models.Enrollment
	detail       *models.EnrollmentDetail
	list         []models.EnrollmentDetail
	listTotal    int
	findErr      error
	detailErr    error
	listErr      error
	createErr    error
	unenrollErr  error
	created      *models.Enrollment
	unenrolled   bool
	allowedFinal bool
	hardDeleted  bool
}

func (m *mockEnrollmentRepo) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.list, m.listTotal, nil
}

func (m *mockEnrollmentRepo) FindByID(_ context.Context, _ string) (*models.Enrollment, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.enrollment, nil
}

func (m *mockEnrollmentRepo) FindDetailByID(_ context.Context, _ string) (*models.EnrollmentDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

func (m *mockEnrollmentRepo) CreateGuarded(_ context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	enrollment.ID = "enrollment-1"
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UnenrollGuarded(_ context.Context, _ string, allowFinalized, hardDelete bool) error {
	if m.unenrollErr != nil {
		return m.unenrollErr
	}
	m.unenrolled = true
	m.allowedFinal = allowFinalized
	m.hardDeleted = hardDelete
	return nil
}

type mockStudentRepo struct {
	student *models.Student
	err     error
}

func (m *mockStudentRepo) FindByID(_ context.Context, _ string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.student, nil
}

type mockEnrollMetrics struct {
	outcomes map[string]int
}

func (m *mockEnrollMetrics) RecordEnrollOutcome(outcome string) {
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

type mockInvalidator struct {
	invalidated []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, studentID string) {
	m.invalidated = append(m.invalidated, studentID)
}

func activeAssignment() *models.TeacherAssignment {
	return &models.TeacherAssignment{
		ID:           "assignment-1",
		TeacherID:    "teacher-1",
		SubjectID:    "subject-1",
		Semester:     "Fall",
		AcademicYear: "2025-2026",
		Capacity:     2,
		IsActive:     true,
	}
}

func newEnrollmentFixture() (*mockEnrollmentRepo, *mockAssignmentRepo, *mockStudentRepo, *mockEnrollMetrics, *mockInvalidator) {
	repo := &mockEnrollmentRepo{
		detail: &models.EnrollmentDetail{
			Enrollment: models.Enrollment{ID: "enrollment-1", StudentID: "student-1", Status: models.EnrollmentStatusActive},
		},
	}
	assignments := &mockAssignmentRepo{assignment: activeAssignment()}
	students := &mockStudentRepo{student: &models.Student{ID: "student-1", Active: true}}
	return repo, assignments, students, &mockEnrollMetrics{}, &mockInvalidator{}
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", AssignmentID: "assignment-1"})
	require.NoError(t, err)
	assert.Equal(t, "enrollment-1", detail.ID)

	// Subject and term are copied from the assignment, never from the caller.
	require.NotNil(t, repo.created)
	assert.Equal(t, "subject-1", repo.created.SubjectID)
	assert.Equal(t, "Fall", repo.created.Semester)
	assert.Equal(t, "2025-2026", repo.created.AcademicYear)
	assert.Equal(t, models.EnrollmentStatusActive, repo.created.Status)

	assert.Equal(t, 1, metrics.outcomes[EnrollOutcomeSuccess])
	assert.Equal(t, []string{"student-1"}, invalidator.invalidated)
}

func TestEnrollmentServiceEnrollFull(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.createErr = repository.ErrAssignmentFull
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", AssignmentID: "assignment-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAssignmentFull.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.outcomes[EnrollOutcomeFull])
	assert.Empty(t, invalidator.invalidated)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.createErr = repository.ErrDuplicateEnrollment
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", AssignmentID: "assignment-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.outcomes[EnrollOutcomeDuplicate])
}

func TestEnrollmentServiceEnrollInactiveAssignment(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.createErr = repository.ErrAssignmentInactive
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", AssignmentID: "assignment-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAssignmentInactive.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.outcomes[EnrollOutcomeRejected])
}

func TestEnrollmentServiceEnrollInactiveStudent(t *testing.T) {
	repo, assignments, _, metrics, invalidator := newEnrollmentFixture()
	students := &mockStudentRepo{student: &models.Student{ID: "student-1", Active: false}}
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", AssignmentID: "assignment-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceEnrollUnknownStudent(t *testing.T) {
	repo, assignments, _, metrics, invalidator := newEnrollmentFixture()
	students := &mockStudentRepo{err: sql.ErrNoRows}
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "missing", AssignmentID: "assignment-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceUnenroll(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.enrollment = &models.Enrollment{ID: "enrollment-1", StudentID: "student-1", Status: models.EnrollmentStatusActive}
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	err := svc.Unenroll(context.Background(), "enrollment-1")
	require.NoError(t, err)
	assert.True(t, repo.unenrolled)
	assert.False(t, repo.allowedFinal)
	assert.False(t, repo.hardDeleted)
	assert.Equal(t, []string{"student-1"}, invalidator.invalidated)
}

func TestEnrollmentServiceUnenrollBlocksFinalized(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.enrollment = &models.Enrollment{ID: "enrollment-1", StudentID: "student-1", Status: models.EnrollmentStatusActive}
	repo.unenrollErr = repository.ErrGradeFinalized
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	err := svc.Unenroll(context.Background(), "enrollment-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGradeFinalized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, invalidator.invalidated)
}

func TestEnrollmentServiceUnenrollPolicyFlags(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.enrollment = &models.Enrollment{ID: "enrollment-1", StudentID: "student-1", Status: models.EnrollmentStatusActive}
	policy := EnrollmentPolicy{AllowUnenrollFinalized: true, HardDeleteOnUnenroll: true}
	svc := NewEnrollmentService(repo, assignments, students, policy, metrics, invalidator, nil, nil)

	err := svc.Unenroll(context.Background(), "enrollment-1")
	require.NoError(t, err)
	assert.True(t, repo.allowedFinal)
	assert.True(t, repo.hardDeleted)
}

func TestEnrollmentServiceUnenrollNotActive(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.enrollment = &models.Enrollment{ID: "enrollment-1", StudentID: "student-1", Status: models.EnrollmentStatusDropped}
	repo.unenrollErr = repository.ErrEnrollmentNotActive
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	err := svc.Unenroll(context.Background(), "enrollment-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyInactive.Code, appErrors.FromError(err).Code)
}

// memEnrollmentStore runs the capacity and uniqueness checks under one
// mutex, standing in for the row-locked transaction the real repository
// uses. It lets the race test drive many Enroll calls concurrently.
type memEnrollmentStore struct {
	mu       sync.Mutex
	capacity int
	seq      int
	active   []models.Enrollment
}

func (m *memEnrollmentStore) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *memEnrollmentStore) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.active {
		if m.active[i].ID == id {
			enrollment := m.active[i]
			return &enrollment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentDetail{Enrollment: *enrollment}, nil
}

func (m *memEnrollmentStore) CreateGuarded(_ context.Context, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	enrolled := 0
	for i := range m.active {
		e := &m.active[i]
		if e.Status != models.EnrollmentStatusActive {
			continue
		}
		enrolled++
		if e.StudentID == enrollment.StudentID && e.SubjectID == enrollment.SubjectID &&
			e.Semester == enrollment.Semester && e.AcademicYear == enrollment.AcademicYear {
			return repository.ErrDuplicateEnrollment
		}
	}
	if enrolled >= m.capacity {
		return repository.ErrAssignmentFull
	}
	m.seq++
	enrollment.ID = fmt.Sprintf("enrollment-%d", m.seq)
	enrollment.Status = models.EnrollmentStatusActive
	m.active = append(m.active, *enrollment)
	return nil
}

func (m *memEnrollmentStore) UnenrollGuarded(_ context.Context, _ string, _, _ bool) error {
	return nil
}

func TestEnrollmentServiceEnrollRaceLastSeat(t *testing.T) {
	// Capacity 1, many concurrent enrolls: exactly one wins the seat and
	// every other attempt reports the assignment full.
	store := &memEnrollmentStore{capacity: 1}
	assignments := &mockAssignmentRepo{assignment: activeAssignment()}
	students := &mockStudentRepo{student: &models.Student{ID: "student-1", Active: true}}
	svc := NewEnrollmentService(store, assignments, students, EnrollmentPolicy{}, nil, nil, nil, nil)

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(context.Background(), EnrollRequest{
				StudentID:    fmt.Sprintf("student-%d", i),
				AssignmentID: "assignment-1",
			})
		}(i)
	}
	wg.Wait()

	successes, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case appErrors.FromError(err).Code == appErrors.ErrAssignmentFull.Code:
			full++
		default:
			t.Fatalf("unexpected enroll error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, full)
	require.Len(t, store.active, 1)
}

func TestEnrollmentServiceListPagination(t *testing.T) {
	repo, assignments, students, metrics, invalidator := newEnrollmentFixture()
	repo.list = []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "enrollment-1"}}}
	repo.listTotal = 41
	svc := NewEnrollmentService(repo, assignments, students, EnrollmentPolicy{}, metrics, invalidator, nil, nil)

	items, pagination, err := svc.List(context.Background(), models.EnrollmentFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 41, pagination.TotalCount)
}
