package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hallpass-labs/examhall-backend/internal/middleware"
	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
)

// PortalHandler handles taker-facing endpoints (lobby, paper, state).
type PortalHandler struct {
	sessionService *service.SessionService
	examService    *service.ExamService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(sessionService *service.SessionService, examService *service.ExamService) *PortalHandler {
	return &PortalHandler{
		sessionService: sessionService,
		examService:    examService,
	}
}

// GetLobby godoc
// GET /api/v1/portal/lobby
// Returns published exams overlaid with the taker's attempt status.
func (h *PortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.sessionService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// GetExamPaper godoc
// GET /api/v1/portal/exams/:exam_id/paper
// Returns the taker-facing paper, served from the Redis fast lane with a
// PostgreSQL failover.
func (h *PortalHandler) GetExamPaper(c *gin.Context) {
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

	paper, err := h.examService.GetExamPaper(c.Request.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotPublished)
		case errors.Is(err, service.ErrExamLoad):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrExamLoadFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// StartExam godoc
// POST /api/v1/portal/exams/:exam_id/start
// Creates the attempt and live engine, or resumes an existing one. Safe
// to call again: re-entry lands on the same session.
func (h *PortalHandler) StartExam(c *gin.Context) {
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

	engine, err := h.sessionService.StartSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, repository.ErrDuplicateAttempt):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		case errors.Is(err, service.ErrExamNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotPublished)
		case errors.Is(err, service.ErrExamLoad):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrExamLoadFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, engine.Snapshot())
}

// GetExamState godoc
// GET /api/v1/portal/exams/:exam_id/state
// Returns the current session view. Covers page reloads: the frontend
// recovers answered questions and the remaining time from here.
func (h *PortalHandler) GetExamState(c *gin.Context) {
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

	state, err := h.sessionService.GetState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// AbandonExam godoc
// POST /api/v1/portal/exams/:exam_id/abandon
// Ends the taker's live session without completing it.
func (h *PortalHandler) AbandonExam(c *gin.Context) {
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

	if err := h.sessionService.AbandonSession(c.Request.Context(), examID, claims.UserID); err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
