package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/middleware"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/response"
	"github.com/examo-id/examo-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live attempt activity to the exam author.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	attemptService *service.AttemptService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		attemptService: attemptService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:exam_id/monitor
// Server-sent events: an initial snapshot, then live violation/finish
// events forwarded from Redis Pub/Sub plus periodic progress refreshes.
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
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if exam.AuthorID != claims.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	questions, err := h.examService.GetExamQuestions(reqCtx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to load question count for monitor")
	}
	totalQuestions := len(questions)

	h.sendInitialSnapshot(c, reqCtx, examID, exam, totalQuestions)

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward the published JSON as-is.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, examID, totalQuestions)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers data and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(
	c *gin.Context,
	ctx context.Context,
	examID uuid.UUID,
	exam *model.Exam,
	totalQuestions int,
) {
	results, _, _ := h.attemptService.GetResults(ctx, examID, 1, 1000, nil)

	totalJoined := len(results)
	totalInProgress := 0
	totalFinished := 0

	studentsSnapshot := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		if res.Status == model.AttemptStatusInProgress {
			totalInProgress++
		} else {
			totalFinished++
		}

		var score float64
		if res.Score != nil {
			score = *res.Score
		}

		studentsSnapshot = append(studentsSnapshot, map[string]interface{}{
			"student_id":      res.StudentID,
			"name":            res.Name,
			"grade":           res.Grade,
			"status":          res.Status,
			"score":           score,
			"started_at":      res.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(res.ViolationCount),
			"total_questions": totalQuestions,
		})
	}

	var totalViolations int64
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, examID); err == nil {
		totalViolations = progress.TotalViolations
		for i, s := range studentsSnapshot {
			sid, ok := s["student_id"].(int)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[sid]; found {
				studentsSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[sid]; found {
				studentsSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"exam": map[string]interface{}{
				"id":              examID.String(),
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"total_questions": totalQuestions,
			},
			"stats": map[string]interface{}{
				"total_joined":      totalJoined,
				"total_in_progress": totalInProgress,
				"total_finished":    totalFinished,
				"total_violations":  totalViolations,
			},
			"students": studentsSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls DB+Redis for current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for sid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid], // 0 if missing
		})
		delete(progress.ViolationCounts, sid)
	}

	// Remaining violation-only students (already finished, not in-progress)
	for sid, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         progressData,
	})
	c.Writer.Flush()
}
