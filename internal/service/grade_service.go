package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/ums-api/internal/grading"
	"github.com/campuskit/ums-api/internal/models"
	"github.com/campuskit/ums-api/internal/repository"
	appErrors "github.com/campuskit/ums-api/pkg/errors"
)

type gradeRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error)
	UpsertComponents(ctx context.Context, grade *models.Grade) (*models.Grade, error)
	Finalize(ctx context.Context, enrollmentID string) (*models.Grade, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type gradeMetrics interface {
	RecordGradeWrite()
}

// RecordGradeRequest carries a partial grade submission. Absent components
// keep whatever was stored before; a present zero is a real zero.
type RecordGradeRequest struct {
	ClassParticipation *float64 `json:"class_participation"`
	Assignment         *float64 `json:"assignment"`
	Quiz               *float64 `json:"quiz"`
	Project            *float64 `json:"project"`
	MidTerm            *float64 `json:"mid_term"`
	FinalTerm          *float64 `json:"final_term"`
	Remarks            *string  `json:"remarks"`
}

func (r RecordGradeRequest) empty() bool {
	return r.ClassParticipation == nil && r.Assignment == nil && r.Quiz == nil &&
		r.Project == nil && r.MidTerm == nil && r.FinalTerm == nil && r.Remarks == nil
}

// GradeService records component scores and derives letter grades and grade
// points through the configured policy. Derived figures are computed on
// every read; only raw component scores are persisted.
type GradeService struct {
	repo        gradeRepository
	enrollments enrollmentReader
	policy      grading.Policy
	metrics     gradeMetrics
	transcripts transcriptInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService. metrics and transcripts may be nil.
func NewGradeService(repo gradeRepository, enrollments enrollmentReader, policy grading.Policy, metrics gradeMetrics, transcripts transcriptInvalidator, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		repo:        repo,
		enrollments: enrollments,
		policy:      policy,
		metrics:     metrics,
		transcripts: transcripts,
		validator:   validate,
		logger:      logger,
	}
}

// Get returns the grade for an enrollment together with its derived figures.
func (s *GradeService) Get(ctx context.Context, enrollmentID string) (*models.GradeView, error) {
	grade, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no grade recorded for this enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return s.view(grade), nil
}

// Record merges the submitted component scores into the stored grade.
// Out-of-range scores are clamped into their component band and reported
// back as adjustments rather than rejected. DROPPED enrollments and
// finalized grades cannot be written.
func (s *GradeService) Record(ctx context.Context, enrollmentID string, req RecordGradeRequest) (*models.GradeView, []models.ComponentAdjustment, error) {
	if req.empty() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "at least one component or remark is required")
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusDropped {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyInactive, "cannot grade a dropped enrollment")
	}

	grade := &models.Grade{EnrollmentID: enrollmentID, Remarks: req.Remarks}
	var adjustments []models.ComponentAdjustment
	apply := func(component string, submitted *float64, target **float64) {
		if submitted == nil {
			return
		}
		applied, adjusted := s.policy.Clamp(component, *submitted)
		if adjusted {
			max, _ := s.policy.MaxFor(component)
			adjustments = append(adjustments, models.ComponentAdjustment{
				Component: component,
				Submitted: *submitted,
				Applied:   applied,
				Max:       max,
			})
		}
		value := applied
		*target = &value
	}
	apply(models.ComponentClassParticipation, req.ClassParticipation, &grade.ClassParticipation)
	apply(models.ComponentAssignment, req.Assignment, &grade.Assignment)
	apply(models.ComponentQuiz, req.Quiz, &grade.Quiz)
	apply(models.ComponentProject, req.Project, &grade.Project)
	apply(models.ComponentMidTerm, req.MidTerm, &grade.MidTerm)
	apply(models.ComponentFinalTerm, req.FinalTerm, &grade.FinalTerm)

	stored, err := s.repo.UpsertComponents(ctx, grade)
	if err != nil {
		if errors.Is(err, repository.ErrGradeFinalized) {
			return nil, nil, appErrors.ErrGradeFinalized
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	if s.metrics != nil {
		s.metrics.RecordGradeWrite()
	}
	if s.transcripts != nil {
		s.transcripts.Invalidate(ctx, enrollment.StudentID)
	}
	if len(adjustments) > 0 {
		s.logger.Warn("component scores clamped",
			zap.String("enrollment_id", enrollmentID),
			zap.Int("adjustments", len(adjustments)))
	}
	return s.view(stored), adjustments, nil
}

// Finalize locks the grade against further edits and marks the enrollment
// COMPLETED. A grade can only be finalized once every component has been
// submitted.
func (s *GradeService) Finalize(ctx context.Context, enrollmentID string) (*models.GradeView, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	grade, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no grade recorded for this enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if summary := s.policy.Summarize(grade.ComponentValues()); !summary.IsComplete {
		return nil, appErrors.Clone(appErrors.ErrValidation, "all components must be submitted before finalization")
	}

	finalized, err := s.repo.Finalize(ctx, enrollmentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrGradeNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no grade recorded for this enrollment")
		case errors.Is(err, repository.ErrGradeFinalized):
			return nil, appErrors.ErrGradeFinalized
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize grade")
		}
	}

	if s.transcripts != nil {
		s.transcripts.Invalidate(ctx, enrollment.StudentID)
	}
	s.logger.Info("grade finalized",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", enrollment.StudentID))
	return s.view(finalized), nil
}

func (s *GradeService) view(grade *models.Grade) *models.GradeView {
	summary := s.policy.Summarize(grade.ComponentValues())
	return &models.GradeView{
		Grade:         *grade,
		ObtainedMarks: summary.ObtainedMarks,
		Percentage:    summary.Percentage,
		LetterGrade:   summary.Letter,
		GPA:           summary.Points,
		IsComplete:    summary.IsComplete,
	}
}
