package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/config"
	"github.com/hallpass-labs/examhall-backend/internal/middleware"
	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live exam progress to professors over SSE.
// Session events arrive through Redis Pub/Sub; periodic refreshes poll
// PostgreSQL and Redis for per-taker counters.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	resultsService *service.ResultsService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	resultsService *service.ResultsService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		resultsService: resultsService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/professor/exams/:exam_id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
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

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if claims.Role != model.RoleAdmin && exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendInitialSnapshot(c, reqCtx, exam, scopeAuthor(claims))

	channelName := config.CacheKey.ExamMonitorChannel(examID)
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip empty refreshes until a taker has produced at least one event.
	hasTakers := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Professor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Professor disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward the published JSON as-is, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			hasTakers = true

		case <-refreshTicker.C:
			if !hasTakers {
				continue
			}
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers the attempt list and counters, then writes
// the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(c *gin.Context, ctx context.Context, exam *model.Exam, authorID uuid.UUID) {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	results, _, err := h.resultsService.ListResults(fetchCtx, exam.ID, authorID, 1, 1000)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to load results for snapshot")
	}

	totalJoined := len(results)
	totalInProgress := 0
	totalCompleted := 0

	takersSnapshot := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		switch res.Status {
		case model.SubmissionStatusInProgress:
			totalInProgress++
		case model.SubmissionStatusCompleted:
			totalCompleted++
		}

		takersSnapshot = append(takersSnapshot, map[string]interface{}{
			"taker_id":        res.TakerID,
			"name":            res.Name,
			"email":           res.Email,
			"status":          res.Status,
			"score":           res.Score,
			"started_at":      res.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(res.ViolationCount),
		})
	}

	var totalViolations int64
	if progress, err := h.monitorService.GetTakerProgress(fetchCtx, exam.ID); err == nil {
		totalViolations = progress.TotalViolations
		for i, t := range takersSnapshot {
			tid, ok := t["taker_id"].(uuid.UUID)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[tid]; found {
				takersSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[tid]; found {
				takersSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"exam": map[string]interface{}{
				"id":               exam.ID,
				"title":            exam.Title,
				"duration_minutes": exam.DurationMinutes,
			},
			"stats": map[string]interface{}{
				"total_joined":     totalJoined,
				"total_in_progress": totalInProgress,
				"total_completed":  totalCompleted,
				"total_violations": totalViolations,
			},
			"takers": takersSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls the current per-taker counters and sends a compact
// refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetTakerProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch taker progress for refresh")
		return
	}

	// Single-pass merge: answered counts first, then violation-only takers.
	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for tid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"taker_id":        tid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[tid], // 0 if missing
		})
		delete(progress.ViolationCounts, tid)
	}

	for tid, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"taker_id":        tid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_violations": progress.TotalViolations,
		"takers":           progressData,
	})
	c.Writer.Flush()
}
