package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/middleware"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/service"
	"github.com/examo-id/examo-backend/internal/session"
	"github.com/examo-id/examo-backend/internal/shuffle"
	ws "github.com/examo-id/examo-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
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

// WSHandler hosts one server-side session Runner per exam connection.
type WSHandler struct {
	cfg            *config.Config
	examService    *service.ExamService
	attemptService *service.AttemptService
	shuffleEngine  *shuffle.Engine
	sink           session.PersistenceSink
	notifier       session.ViolationNotifier
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	cfg *config.Config,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	shuffleEngine *shuffle.Engine,
	sink session.PersistenceSink,
	notifier session.ViolationNotifier,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		examService:    examService,
		attemptService: attemptService,
		shuffleEngine:  shuffleEngine,
		sink:           sink,
		notifier:       notifier,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket and drives the attempt: countdown, autosave,
// focus-loss tracking, answer capture and submit.
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
	studentID := claims.UserID

	attempt, err := h.attemptService.VerifyActive(c.Request.Context(), examID, studentID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no active attempt for this exam"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	runner, order, err := h.buildRunner(c.Request.Context(), examID, studentID, attempt, conn, wsLog)
	if err != nil {
		wsLog.Error().Err(err).Msg("Failed to build session")
		conn.WriteError("failed to load exam session")
		return
	}

	// Ticker lifetime matches the connection. The attempt itself survives
	// a disconnect; its state lives in Redis and is rebuilt on reconnect.
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(runCtx)
	defer runner.Stop()

	h.pushState(conn, runner, order)
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, runner, &msg)
		case ws.ActionVisibility:
			runner.RecordVisibilityChange(runCtx, msg.Hidden)
		case ws.ActionNavigate:
			h.handleNavigate(conn, runner, &msg)
		case ws.ActionSubmit:
			runner.Submit(runCtx)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong, RemainingSeconds: runner.RemainingSeconds()})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// buildRunner assembles the session Runner from the cached exam, the
// student's session ordering and the autosaved resume state.
func (h *WSHandler) buildRunner(
	ctx context.Context,
	examID uuid.UUID,
	studentID int,
	attempt *model.Attempt,
	conn *ws.Conn,
	wsLog zerolog.Logger,
) (*session.Runner, []uuid.UUID, error) {
	exam, err := h.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	exam.Questions, err = h.examService.GetExamQuestions(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	ordered, err := h.shuffleEngine.SessionOrder(ctx, exam, studentID, false)
	if err != nil {
		return nil, nil, err
	}
	order := make([]uuid.UUID, len(ordered))
	for i := range ordered {
		order[i] = ordered[i].ID
	}
	h.attemptService.EnqueueQuestionOrder(ctx, examID, studentID, order)

	state, err := h.attemptService.GetState(ctx, examID, studentID)
	if err != nil {
		return nil, nil, err
	}

	runner, err := session.NewRunner(session.Config{
		Exam:             exam,
		Questions:        ordered,
		StudentID:        studentID,
		StartedAt:        attempt.StartedAt,
		Answers:          state.AutosavedAnswers,
		Logs:             state.Logs,
		MaxViolations:    h.cfg.MaxViolations,
		AutosaveInterval: h.cfg.AutosaveInterval,
		Sink:             h.sink,
		Notifier:         h.notifier,
		OnFinish: func(res session.Result) {
			conn.WriteTyped(ws.FinishedResponse{
				Event:               ws.EventFinished,
				Status:              string(res.Status),
				Score:               res.Summary.Score,
				PointsObtained:      res.Summary.PointsObtained,
				TotalPointsPossible: res.Summary.TotalPointsPossible,
				CorrectCount:        res.Summary.Stats.Correct,
				IncorrectCount:      res.Summary.Stats.Incorrect,
				UnansweredCount:     res.Summary.Stats.Unanswered,
				SubmittedAt:         res.SubmittedAt,
			})
		},
		OnWarning: func(count, max int) {
			conn.WriteTyped(ws.WarningResponse{
				Event:          ws.EventWarning,
				ViolationCount: count,
				MaxViolations:  max,
			})
		},
		Logger: wsLog,
	})
	if err != nil {
		return nil, nil, err
	}
	return runner, order, nil
}

func (h *WSHandler) pushState(conn *ws.Conn, runner *session.Runner, order []uuid.UUID) {
	state := runner.State()
	answers, err := state.AutosavedAnswers.MarshalJSON()
	if err != nil {
		answers = []byte("{}")
	}

	ids := make([]string, len(order))
	for i, id := range order {
		ids[i] = id.String()
	}

	conn.WriteTyped(ws.StateResponse{
		Event:            ws.EventState,
		RemainingSeconds: state.RemainingSeconds,
		QuestionOrder:    ids,
		CurrentIndex:     runner.Current(),
		AnsweredCount:    runner.AnsweredCount(),
		Answers:          answers,
		ViolationCount:   runner.Violations(),
	})
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, runner *session.Runner, msg *ws.RequestPayload) {
	qid, err := uuid.Parse(msg.QID)
	if err != nil {
		conn.WriteError("invalid q_id format")
		return
	}
	if len(msg.Answer) == 0 {
		conn.WriteError("ans is required")
		return
	}

	ans, err := model.UnmarshalAnswer(msg.Answer)
	if err != nil {
		conn.WriteError("malformed answer: " + err.Error())
		return
	}

	if err := runner.SetAnswer(qid, ans); err != nil {
		conn.WriteError(err.Error())
		return
	}

	conn.WriteTyped(ws.SavedResponse{
		Event:         ws.EventSaved,
		QID:           msg.QID,
		AnsweredCount: runner.AnsweredCount(),
	})
}

func (h *WSHandler) handleNavigate(conn *ws.Conn, runner *session.Runner, msg *ws.RequestPayload) {
	var index int
	switch msg.Target {
	case "next":
		index = runner.Next()
	case "prev":
		index = runner.Prev()
	default:
		index = runner.Jump(msg.Index)
	}

	conn.WriteTyped(ws.NavigateResponse{
		Event:        ws.EventState,
		CurrentIndex: index,
	})
}
