package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/ums-api/internal/service"
	appErrors "github.com/campuskit/ums-api/pkg/errors"
	"github.com/campuskit/ums-api/pkg/response"
)

// GradeHandler exposes grade endpoints keyed by enrollment.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Get godoc
// @Summary Get the grade for an enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Record godoc
// @Summary Record component scores for an enrollment
// @Description Merges the submitted components into the stored grade. Scores
// @Description outside a component's range are clamped and reported back as
// @Description warnings.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.RecordGradeRequest true "Component scores"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Grade already finalized"
// @Router /enrollments/{id}/grade [put]
func (h *GradeHandler) Record(c *gin.Context) {
	var req service.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, adjustments, err := h.grades.Record(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(adjustments) > 0 {
		response.JSONWithWarnings(c, http.StatusOK, grade, adjustments)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Finalize godoc
// @Summary Finalize a grade
// @Description Locks the grade against further edits and marks the
// @Description enrollment COMPLETED.
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Grade already finalized"
// @Router /enrollments/{id}/grade/finalize [post]
func (h *GradeHandler) Finalize(c *gin.Context) {
	grade, err := h.grades.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}
