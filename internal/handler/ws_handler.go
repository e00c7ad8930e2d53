package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hallpass-labs/examhall-backend/internal/middleware"
	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/repository"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
	"github.com/hallpass-labs/examhall-backend/internal/session"
	ws "github.com/hallpass-labs/examhall-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live exam session over WebSocket, translating
// client actions into engine calls.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream
// Upgrades to WebSocket and binds the connection to the taker's live
// session engine. Starting and reconnecting share this path.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	takerID := claims.UserID
	wsLog := h.log.With().
		Str("taker_id", takerID.String()).
		Str("exam_id", examID.String()).
		Logger()

	engine, err := h.sessions.StartSession(c.Request.Context(), examID, takerID)
	if err != nil {
		ws.WriteTyped(conn, startErrorResponse(err))
		return
	}

	wsLog.Info().Str("submission_id", engine.SubmissionID().String()).Msg("Taker connected")

	// Initial state for the client to render.
	ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: engine.Snapshot()})

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionNavigate:
			h.handleNavigate(conn, engine, raw)
		case ws.ActionAnswer:
			h.handleAnswer(conn, engine, raw)
		case ws.ActionFullscreen:
			h.handleFullscreen(conn, engine, raw)
		case ws.ActionViolation:
			if h.handleViolation(c, conn, engine, raw) {
				return // threshold force-submitted the session
			}
		case ws.ActionSubmit:
			if h.handleSubmit(c, conn, wsLog, engine) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleNavigate(conn *websocket.Conn, engine *session.Engine, raw []byte) {
	var req ws.NavigateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "malformed navigate request")
		return
	}
	engine.NavigateTo(req.Index)
	ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: engine.Snapshot()})
}

func (h *WSHandler) handleAnswer(conn *websocket.Conn, engine *session.Engine, raw []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "malformed answer request")
		return
	}
	if req.QuestionID == uuid.Nil {
		ws.WriteError(conn, "question_id is required")
		return
	}

	var value model.AnswerValue
	if err := json.Unmarshal(req.Value, &value); err != nil {
		ws.WriteTyped(conn, ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrAnswerTypeMismatch),
			Error: "answer must be a string, bool or number",
		})
		return
	}

	switch err := engine.RecordAnswer(req.QuestionID, value); {
	case err == nil:
		ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: req.QuestionID})
	case errors.Is(err, session.ErrUnknownQuestion):
		ws.WriteTyped(conn, ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrUnknownQuestion),
			Error: "question does not belong to this exam",
		})
	case errors.Is(err, session.ErrAnswerTypeMismatch):
		ws.WriteTyped(conn, ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrAnswerTypeMismatch),
			Error: "answer type does not match question type",
		})
	default:
		ws.WriteTyped(conn, ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrSessionNotActive),
			Error: "session is not active",
		})
	}
}

func (h *WSHandler) handleFullscreen(conn *websocket.Conn, engine *session.Engine, raw []byte) {
	var req ws.FullscreenRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "malformed fullscreen request")
		return
	}
	engine.SetFullscreen(req.On)
}

// handleViolation returns true when the violation threshold ended the
// session.
func (h *WSHandler) handleViolation(c *gin.Context, conn *websocket.Conn, engine *session.Engine, raw []byte) bool {
	var req ws.ViolationRequest
	if err := json.Unmarshal(raw, &req); err != nil || !req.Kind.Valid() {
		ws.WriteError(conn, "malformed violation request")
		return false
	}

	count, err := engine.ReportViolation(c.Request.Context(), req.Kind)
	if err != nil {
		// Forced submit failed to persist; the session stays active.
		var pe *session.PersistError
		if errors.As(err, &pe) {
			ws.WriteTyped(conn, ws.ErrorResponse{
				Event: ws.EventError,
				Code:  string(response.ErrSubmissionNotPersist),
				Error: "submission could not be saved, please retry",
			})
			return false
		}
	}

	ws.WriteTyped(conn, ws.WarningResponse{
		Event:          ws.EventWarning,
		Kind:           req.Kind,
		ViolationCount: count,
	})

	if engine.State().Terminal() {
		h.sendSubmitted(conn, engine)
		return true
	}
	return false
}

// handleSubmit returns true when the session reached a terminal state.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, engine *session.Engine) bool {
	err := engine.Submit(c.Request.Context())
	if err == nil {
		wsLog.Info().Str("submission_id", engine.SubmissionID().String()).Msg("Exam submitted")
		h.sendSubmitted(conn, engine)
		return true
	}

	var pe *session.PersistError
	if errors.As(err, &pe) {
		wsLog.Error().Err(err).Msg("Submit persist failed")
		ws.WriteTyped(conn, ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrSubmissionNotPersist),
			Error: "submission could not be saved, please retry",
		})
		return false
	}

	// Already terminal: surface the final state and end the stream.
	if engine.State().Terminal() {
		h.sendSubmitted(conn, engine)
		return true
	}
	ws.WriteTyped(conn, ws.ErrorResponse{
		Event: ws.EventError,
		Code:  string(response.ErrSessionNotActive),
		Error: "session is not active",
	})
	return false
}

func (h *WSHandler) sendSubmitted(conn *websocket.Conn, engine *session.Engine) {
	sub := engine.Submission()
	if sub == nil {
		return
	}
	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:  ws.EventSubmitted,
		Status: sub.Status,
		Score:  sub.Score,
	})
}

func startErrorResponse(err error) ws.ErrorResponse {
	switch {
	case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, repository.ErrDuplicateAttempt):
		return ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrAlreadySubmitted),
			Error: "this exam attempt is already finished",
		}
	case errors.Is(err, service.ErrExamNotPublished):
		return ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrExamNotPublished),
			Error: "this exam has not been published",
		}
	case errors.Is(err, service.ErrExamLoad):
		return ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrExamLoadFailed),
			Error: "exam could not be loaded, please retry",
		}
	default:
		return ws.ErrorResponse{
			Event: ws.EventError,
			Code:  string(response.ErrInternal),
			Error: "could not start session",
		}
	}
}
