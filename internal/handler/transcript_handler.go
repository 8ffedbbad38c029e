package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/ums-api/internal/service"
	"github.com/campuskit/ums-api/pkg/response"
)

// TranscriptHandler exposes transcript endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Get godoc
// @Summary Get a student's transcript
// @Tags Transcripts
// @Produce json
// @Param student_id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{student_id}/transcript [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	transcript, err := h.transcripts.Get(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// ExportCSV godoc
// @Summary Export a transcript as CSV
// @Tags Transcripts
// @Produce text/csv
// @Param student_id path string true "Student ID"
// @Success 200 {file} file
// @Router /students/{student_id}/transcript/export/csv [get]
func (h *TranscriptHandler) ExportCSV(c *gin.Context) {
	studentID := c.Param("student_id")
	data, err := h.transcripts.ExportCSV(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"transcript-%s.csv\"", studentID))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF godoc
// @Summary Export a transcript as PDF
// @Tags Transcripts
// @Produce application/pdf
// @Param student_id path string true "Student ID"
// @Success 200 {file} file
// @Router /students/{student_id}/transcript/export/pdf [get]
func (h *TranscriptHandler) ExportPDF(c *gin.Context) {
	studentID := c.Param("student_id")
	data, err := h.transcripts.ExportPDF(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"transcript-%s.pdf\"", studentID))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", data)
}
