package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hallpass-labs/examhall-backend/internal/middleware"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
)

// ResultsHandler serves graded exam results to professors.
type ResultsHandler struct {
	resultsService *service.ResultsService
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(resultsService *service.ResultsService) *ResultsHandler {
	return &ResultsHandler{resultsService: resultsService}
}

// ListResults godoc
// GET /api/v1/professor/exams/:exam_id/results
// Per-taker rows with score, timing and violation count, ordered by name.
func (h *ResultsHandler) ListResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	results, pagination, err := h.resultsService.ListResults(c.Request.Context(), examID, scopeAuthor(claims), page, perPage)
	if err != nil {
		h.failResults(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// ExportResults godoc
// GET /api/v1/professor/exams/:exam_id/results/export
// Streams the full result set as a CSV attachment.
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	filename := fmt.Sprintf("exam-results-%s-%s.csv", examID, time.Now().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.resultsService.ExportCSV(c.Request.Context(), examID, scopeAuthor(claims), c.Writer); err != nil {
		// Headers may already be out; the truncated body signals failure.
		c.Status(http.StatusInternalServerError)
		return
	}
}

func (h *ResultsHandler) failResults(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotExamAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
