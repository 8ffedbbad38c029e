package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/ums-api/internal/grading"
	"github.com/campuskit/ums-api/internal/models"
	"github.com/campuskit/ums-api/pkg/export"
	appErrors "github.com/campuskit/ums-api/pkg/errors"
)

type transcriptRepository interface {
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error)
}

type transcriptCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type cacheMetrics interface {
	RecordCacheLookup(hit bool)
}

// TranscriptService assembles read-only transcript projections from a
// student's enrollments and grades. Transcripts are computed on demand and
// optionally cached; every enrollment or grade write invalidates the cache.
type TranscriptService struct {
	repo     transcriptRepository
	students studentReader
	policy   grading.Policy
	cache    transcriptCache
	cacheTTL time.Duration
	metrics  cacheMetrics
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewTranscriptService constructs TranscriptService. cache and metrics may
// be nil; a nil cache disables caching entirely.
func NewTranscriptService(repo transcriptRepository, students studentReader, policy grading.Policy, cache transcriptCache, cacheTTL time.Duration, metrics cacheMetrics, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		repo:     repo,
		students: students,
		policy:   policy,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

func transcriptCacheKey(studentID string) string {
	return "transcript:" + studentID
}

// Get returns the student's transcript, from cache when available.
func (s *TranscriptService) Get(ctx context.Context, studentID string) (*models.Transcript, error) {
	if s.cache != nil {
		var cached models.Transcript
		if err := s.cache.Get(ctx, transcriptCacheKey(studentID), &cached); err == nil {
			s.countCacheLookup(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("transcript cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
		s.countCacheLookup(false)
	}

	transcript, err := s.build(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, transcriptCacheKey(studentID), transcript, s.cacheTTL); err != nil {
			s.logger.Warn("transcript cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, nil
}

// Invalidate drops the cached transcript for a student. Called by the
// enrollment and grade services after every write.
func (s *TranscriptService) Invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, transcriptCacheKey(studentID)); err != nil {
		s.logger.Warn("transcript cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *TranscriptService) build(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.repo.TranscriptRows(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript rows")
	}

	transcript := &models.Transcript{
		StudentID:      student.ID,
		StudentName:    student.FullName,
		RegistrationNo: student.RegistrationNo,
		Terms:          []models.TranscriptTerm{},
		Classification: grading.ClassificationNone,
	}

	var allGraded []grading.CreditPoints
	var current *models.TranscriptTerm
	var currentPoints []grading.CreditPoints

	closeTerm := func() {
		if current == nil {
			return
		}
		current.SemesterGPA = grading.WeightedGPA(currentPoints)
		transcript.Terms = append(transcript.Terms, *current)
		current = nil
		currentPoints = nil
	}

	// Rows arrive ordered by academic year, semester, subject code.
	for i := range rows {
		row := &rows[i]
		if current == nil || current.Semester != row.Semester || current.AcademicYear != row.AcademicYear {
			closeTerm()
			current = &models.TranscriptTerm{
				Semester:     row.Semester,
				AcademicYear: row.AcademicYear,
				Courses:      []models.TranscriptCourse{},
			}
		}

		course := models.TranscriptCourse{
			EnrollmentID: row.EnrollmentID,
			SubjectCode:  row.SubjectCode,
			SubjectName:  row.SubjectName,
			CreditHours:  row.CreditHours,
			Status:       row.Status,
		}
		current.TotalCredits += row.CreditHours
		transcript.TotalCredits += row.CreditHours

		// A course only counts toward GPA once every component has been
		// submitted; a partially recorded grade stays an ungraded line.
		if summary := s.policy.Summarize(row.ComponentValues()); row.HasGrade() && summary.IsComplete {
			obtained := summary.ObtainedMarks
			letter := summary.Letter
			points := summary.Points
			course.Graded = true
			course.ObtainedMarks = &obtained
			course.LetterGrade = &letter
			course.GPA = &points
			current.GradedCredits += row.CreditHours

			cp := grading.CreditPoints{CreditHours: row.CreditHours, Points: points}
			currentPoints = append(currentPoints, cp)
			allGraded = append(allGraded, cp)
		}

		current.Courses = append(current.Courses, course)
	}
	closeTerm()

	transcript.CGPA = grading.WeightedGPA(allGraded)
	if transcript.CGPA != nil {
		transcript.Classification = s.policy.Classify(*transcript.CGPA)
	}
	return transcript, nil
}

var transcriptExportHeaders = []string{"Academic Year", "Semester", "Subject Code", "Subject Name", "Credits", "Status", "Marks", "Grade", "GPA"}

func transcriptExportRows(transcript *models.Transcript) []map[string]string {
	var rows []map[string]string
	for _, term := range transcript.Terms {
		for _, course := range term.Courses {
			row := map[string]string{
				"Academic Year": term.AcademicYear,
				"Semester":      term.Semester,
				"Subject Code":  course.SubjectCode,
				"Subject Name":  course.SubjectName,
				"Credits":       strconv.Itoa(course.CreditHours),
				"Status":        string(course.Status),
				"Marks":         "-",
				"Grade":         "-",
				"GPA":           "-",
			}
			if course.Graded {
				row["Marks"] = fmt.Sprintf("%.2f", *course.ObtainedMarks)
				row["Grade"] = *course.LetterGrade
				row["GPA"] = fmt.Sprintf("%.2f", *course.GPA)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// ExportCSV renders the transcript as a flat CSV document.
func (s *TranscriptService) ExportCSV(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(export.Dataset{
		Headers: transcriptExportHeaders,
		Rows:    transcriptExportRows(transcript),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript csv")
	}
	return data, nil
}

// ExportPDF renders the transcript with one table per term and a closing
// CGPA summary.
func (s *TranscriptService) ExportPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	headers := []string{"Subject Code", "Subject Name", "Credits", "Status", "Marks", "Grade", "GPA"}
	var sections []export.Section
	for _, term := range transcript.Terms {
		var rows []map[string]string
		for _, course := range term.Courses {
			row := map[string]string{
				"Subject Code": course.SubjectCode,
				"Subject Name": course.SubjectName,
				"Credits":      strconv.Itoa(course.CreditHours),
				"Status":       string(course.Status),
				"Marks":        "-",
				"Grade":        "-",
				"GPA":          "-",
			}
			if course.Graded {
				row["Marks"] = fmt.Sprintf("%.2f", *course.ObtainedMarks)
				row["Grade"] = *course.LetterGrade
				row["GPA"] = fmt.Sprintf("%.2f", *course.GPA)
			}
			rows = append(rows, row)
		}

		footer := fmt.Sprintf("Credits: %d", term.TotalCredits)
		if term.SemesterGPA != nil {
			footer = fmt.Sprintf("Semester GPA: %.2f  Credits: %d", *term.SemesterGPA, term.TotalCredits)
		}
		sections = append(sections, export.Section{
			Heading: fmt.Sprintf("%s %s", term.Semester, term.AcademicYear),
			Data:    export.Dataset{Headers: headers, Rows: rows},
			Footer:  footer,
		})
	}
	if len(sections) == 0 {
		sections = append(sections, export.Section{
			Data: export.Dataset{Headers: headers},
		})
	}

	summary := fmt.Sprintf("Total Credits: %d  Classification: %s", transcript.TotalCredits, transcript.Classification)
	if transcript.CGPA != nil {
		summary = fmt.Sprintf("CGPA: %.2f  %s", *transcript.CGPA, summary)
	}

	title := fmt.Sprintf("Academic Transcript - %s (%s)", transcript.StudentName, transcript.RegistrationNo)
	data, err := s.pdf.RenderSections(title, sections, summary)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript pdf")
	}
	return data, nil
}

func (s *TranscriptService) countCacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}
