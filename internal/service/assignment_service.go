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

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.TeacherAssignment) error
	FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.TeacherAssignmentDetail, error)
	List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, int, error)
	Capacity(ctx context.Context, id string) (*models.AssignmentCapacity, error)
	SetCapacity(ctx context.Context, id string, newCapacity int) (*models.AssignmentCapacity, error)
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// CreateAssignmentRequest describes an assignment creation payload.
type CreateAssignmentRequest struct {
	TeacherID    string `json:"teacher_id" validate:"required"`
	SubjectID    string `json:"subject_id" validate:"required"`
	Semester     string `json:"semester" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Capacity     int    `json:"capacity" validate:"required,gt=0"`
}

// SetCapacityRequest carries a capacity edit.
type SetCapacityRequest struct {
	Capacity int `json:"capacity" validate:"required,gt=0"`
}

// AssignmentService manages teacher-subject offerings and answers every
// capacity question for the enrollment protocol.
type AssignmentService struct {
	repo      assignmentRepository
	teachers  teacherReader
	subjects  subjectReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, teachers teacherReader, subjects subjectReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, teachers: teachers, subjects: subjects, validator: validate, logger: logger}
}

// List returns assignments with pagination metadata.
func (s *AssignmentService) List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return assignments, pagination, nil
}

// Get returns one assignment with its live enrolled count.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.TeacherAssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return detail, nil
}

// Create registers a new offering.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest) (*models.TeacherAssignmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher inactive")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	assignment := &models.TeacherAssignment{
		TeacherID:    req.TeacherID,
		SubjectID:    req.SubjectID,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		Capacity:     req.Capacity,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return s.Get(ctx, assignment.ID)
}

// GetCapacity reports seat capacity and the live ACTIVE enrollment count.
func (s *AssignmentService) GetCapacity(ctx context.Context, id string) (*models.AssignmentCapacity, error) {
	capacity, err := s.repo.Capacity(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAssignmentNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read capacity")
	}
	return capacity, nil
}

// SetCapacity edits the seat capacity; lowering below the current enrolled
// count is rejected.
func (s *AssignmentService) SetCapacity(ctx context.Context, id string, req SetCapacityRequest) (*models.AssignmentCapacity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}
	capacity, err := s.repo.SetCapacity(ctx, id, req.Capacity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAssignmentNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		case errors.Is(err, repository.ErrCapacityBelowEnrolled):
			return nil, appErrors.ErrInvalidCapacity
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update capacity")
		}
	}
	s.logger.Info("assignment capacity updated",
		zap.String("assignment_id", id),
		zap.Int("capacity", capacity.Capacity),
		zap.Int("enrolled", capacity.EnrolledCount))
	return capacity, nil
}

// Deactivate retires an offering without deleting its history.
func (s *AssignmentService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrAssignmentNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate assignment")
	}
	return nil
}

// Delete removes an offering that never received enrollments. Anything
// with enrollment history must be deactivated instead.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrAssignmentNotFound):
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		case errors.Is(err, repository.ErrAssignmentHasEnrollments):
			return appErrors.Clone(appErrors.ErrConflict, "assignment has enrollments; deactivate instead")
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
		}
	}
	return nil
}
