package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/session"
)

// MonitorEvent is published on the exam's Redis Pub/Sub channel and fanned
// out to teacher dashboards over SSE.
type MonitorEvent struct {
	Type      string    `json:"type"` // "violation" | "disqualified" | "finished"
	ExamID    string    `json:"exam_id"`
	StudentID int       `json:"student_id"`
	Count     int       `json:"count,omitempty"`
	Score     int       `json:"score,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressPayload is what the progress worker consumes from its queue.
type ProgressPayload struct {
	ExamID    string          `json:"exam_id"`
	StudentID int             `json:"student_id"`
	Answers   model.AnswerMap `json:"answers"`
	Logs      []model.ExamLog `json:"logs"`
}

// ResultPayload is what the result worker consumes from its queue.
type ResultPayload struct {
	ExamID              string              `json:"exam_id"`
	StudentID           int                 `json:"student_id"`
	Status              model.AttemptStatus `json:"status"`
	Score               float64             `json:"score"`
	PointsObtained      float64             `json:"points_obtained"`
	TotalPointsPossible float64             `json:"total_points_possible"`
	CorrectCount        int                 `json:"correct_count"`
	IncorrectCount      int                 `json:"incorrect_count"`
	UnansweredCount     int                 `json:"unanswered_count"`
	ViolationCount      int                 `json:"violation_count"`
	Answers             model.AnswerMap     `json:"answers"`
	Logs                []model.ExamLog     `json:"logs"`
	SubmittedAt         time.Time           `json:"submitted_at"`
}

// ViolationPayload is what the violation worker consumes from its queue.
type ViolationPayload struct {
	ExamID     string    `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RedisAttemptSink implements session.PersistenceSink on the Redis fast
// lane: state lands in cache keys immediately and a queue entry hands the
// durable write to a background worker.
type RedisAttemptSink struct {
	rdb *redis.Client
}

// NewRedisAttemptSink creates a RedisAttemptSink.
func NewRedisAttemptSink(rdb *redis.Client) *RedisAttemptSink {
	return &RedisAttemptSink{rdb: rdb}
}

// SaveProgress caches the snapshot and enqueues it for PostgreSQL.
func (s *RedisAttemptSink) SaveProgress(ctx context.Context, snap session.ProgressSnapshot) error {
	eid := snap.ExamID.String()

	answersJSON, err := json.Marshal(snap.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	logsJSON, err := json.Marshal(snap.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	queueItem, err := json.Marshal(ProgressPayload{
		ExamID:    eid,
		StudentID: snap.StudentID,
		Answers:   snap.Answers,
		Logs:      snap.Logs,
	})
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentAnswersKey(eid, snap.StudentID), answersJSON, 24*time.Hour)
	pipe.Set(ctx, config.CacheKey.StudentLogsKey(eid, snap.StudentID), logsJSON, 24*time.Hour)
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, queueItem)

	_, err = pipe.Exec(ctx)
	return err
}

// SaveFinalResult enqueues the terminal result and tells the monitor.
func (s *RedisAttemptSink) SaveFinalResult(ctx context.Context, res session.Result) error {
	violations := 0
	for _, l := range res.Logs {
		if l.Event == model.LogEventTabBlur {
			violations++
		}
	}

	payload := ResultPayload{
		ExamID:              res.ExamID.String(),
		StudentID:           res.StudentID,
		Status:              res.Status,
		Score:               float64(res.Summary.Score),
		PointsObtained:      res.Summary.PointsObtained,
		TotalPointsPossible: res.Summary.TotalPointsPossible,
		CorrectCount:        res.Summary.Stats.Correct,
		IncorrectCount:      res.Summary.Stats.Incorrect,
		UnansweredCount:     res.Summary.Stats.Unanswered,
		ViolationCount:      violations,
		Answers:             res.Answers,
		Logs:                res.Logs,
		SubmittedAt:         res.SubmittedAt,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal result payload: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue result: %w", err)
	}

	event, _ := json.Marshal(MonitorEvent{
		Type:      "finished",
		ExamID:    res.ExamID.String(),
		StudentID: res.StudentID,
		Score:     res.Summary.Score,
		Timestamp: time.Now(),
	})
	_ = s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(res.ExamID.String()), event).Err()
	return nil
}

// RedisViolationNotifier implements session.ViolationNotifier: each event
// is queued for durable storage and broadcast to the monitor channel.
type RedisViolationNotifier struct {
	rdb *redis.Client
}

// NewRedisViolationNotifier creates a RedisViolationNotifier.
func NewRedisViolationNotifier(rdb *redis.Client) *RedisViolationNotifier {
	return &RedisViolationNotifier{rdb: rdb}
}

func (n *RedisViolationNotifier) NotifyViolation(ctx context.Context, examID uuid.UUID, studentID int, count int, disqualified bool) error {
	raw, err := json.Marshal(ViolationPayload{
		ExamID:     examID.String(),
		StudentID:  studentID,
		Count:      count,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal violation payload: %w", err)
	}

	if err := n.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}

	eventType := "violation"
	if disqualified {
		eventType = "disqualified"
	}
	event, _ := json.Marshal(MonitorEvent{
		Type:      eventType,
		ExamID:    examID.String(),
		StudentID: studentID,
		Count:     count,
		Timestamp: time.Now(),
	})
	_ = n.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), event).Err()
	return nil
}
