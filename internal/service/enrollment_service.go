package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/ums-api/internal/models"
	"github.com/campuskit/ums-api/internal/repository"
	appErrors "github.com/campuskit/ums-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	CreateGuarded(ctx context.Context, enrollment *models.Enrollment) error
	UnenrollGuarded(ctx context.Context, id string, allowFinalized, hardDelete bool) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollMetrics interface {
	RecordEnrollOutcome(outcome string)
}

type transcriptInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// EnrollRequest is the payload for enrolling a student into an assignment.
type EnrollRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	AssignmentID string `json:"assignment_id" validate:"required"`
}

// EnrollmentPolicy carries the configurable unenroll behaviour.
type EnrollmentPolicy struct {
	AllowUnenrollFinalized bool
	HardDeleteOnUnenroll   bool
}

// EnrollmentService drives the enroll and unenroll protocol. All capacity
// and uniqueness decisions happen inside a single repository transaction so
// two simultaneous requests for the last seat cannot both win.
type EnrollmentService struct {
	repo        enrollmentRepository
	assignments assignmentRepository
	students    studentReader
	policy      EnrollmentPolicy
	metrics     enrollMetrics
	transcripts transcriptInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. metrics and transcripts
// may be nil.
func NewEnrollmentService(repo enrollmentRepository, assignments assignmentRepository, students studentReader, policy EnrollmentPolicy, metrics enrollMetrics, transcripts transcriptInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		assignments: assignments,
		students:    students,
		policy:      policy,
		metrics:     metrics,
		transcripts: transcripts,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment with student and subject details.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll places a student into an assignment. The seat check, the duplicate
// check and the insert run atomically against a row lock on the assignment,
// so the capacity can never be oversubscribed even under concurrent load.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		s.countOutcome(EnrollOutcomeRejected)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.countOutcome(EnrollOutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		s.countOutcome(EnrollOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not active")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.countOutcome(EnrollOutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	assignmentID := assignment.ID
	enrollment := &models.Enrollment{
		StudentID:           req.StudentID,
		SubjectID:           assignment.SubjectID,
		TeacherAssignmentID: &assignmentID,
		Semester:            assignment.Semester,
		AcademicYear:        assignment.AcademicYear,
		Status:              models.EnrollmentStatusActive,
	}

	if err := s.repo.CreateGuarded(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrAssignmentFull):
			s.countOutcome(EnrollOutcomeFull)
			return nil, appErrors.ErrAssignmentFull
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			s.countOutcome(EnrollOutcomeDuplicate)
			return nil, appErrors.ErrDuplicateEnrollment
		case errors.Is(err, repository.ErrAssignmentInactive):
			s.countOutcome(EnrollOutcomeRejected)
			return nil, appErrors.ErrAssignmentInactive
		case errors.Is(err, repository.ErrAssignmentNotFound):
			s.countOutcome(EnrollOutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
		}
	}

	s.countOutcome(EnrollOutcomeSuccess)
	s.invalidateTranscript(ctx, req.StudentID)
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("assignment_id", req.AssignmentID))
	return s.Get(ctx, enrollment.ID)
}

// Unenroll drops an ACTIVE enrollment and frees its seat. Finalized grades
// block the drop unless the deployment opts in via configuration.
func (s *EnrollmentService) Unenroll(ctx context.Context, id string) error {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	err = s.repo.UnenrollGuarded(ctx, id, s.policy.AllowUnenrollFinalized, s.policy.HardDeleteOnUnenroll)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEnrollmentNotFound):
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrEnrollmentNotActive):
			return appErrors.ErrAlreadyInactive
		case errors.Is(err, repository.ErrGradeFinalized):
			return appErrors.Clone(appErrors.ErrGradeFinalized, "cannot unenroll after grade finalization")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll student")
		}
	}

	s.invalidateTranscript(ctx, enrollment.StudentID)
	s.logger.Info("student unenrolled",
		zap.String("enrollment_id", id),
		zap.String("student_id", enrollment.StudentID),
		zap.Bool("hard_delete", s.policy.HardDeleteOnUnenroll))
	return nil
}

func (s *EnrollmentService) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordEnrollOutcome(outcome)
	}
}

func (s *EnrollmentService) invalidateTranscript(ctx context.Context, studentID string) {
	if s.transcripts != nil {
		s.transcripts.Invalidate(ctx, studentID)
	}
}
