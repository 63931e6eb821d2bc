package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/model"
	"github.com/examo-id/examo-backend/internal/repository"
)

// Attempt lifecycle errors.
var (
	ErrExamNotAvailable  = errors.New("exam is not available for joining")
	ErrInvalidEntryToken = errors.New("invalid entry token")
	ErrAttemptFinished   = errors.New("attempt is already finished")
)

// AttemptService handles the join/resume/result lifecycle of attempts.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	examRepo    *repository.ExamRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		examRepo:    examRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// LobbyStatus represents the concrete state of an exam in the lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming     LobbyStatus = "UPCOMING"
	LobbyStatusAvailable    LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress   LobbyStatus = "IN_PROGRESS"
	LobbyStatusFinished     LobbyStatus = "FINISHED"
	LobbyStatusDisqualified LobbyStatus = "DISQUALIFIED"
)

// LobbyExam represents an exam as displayed in the student lobby.
type LobbyExam struct {
	model.Exam
	LobbyStatus   LobbyStatus          `json:"lobby_status"`
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	FinalScore    *float64             `json:"final_score,omitempty"`
}

// GetLobby returns the published exams visible to a student, with their
// attempt state overlaid.
func (s *AttemptService) GetLobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptMap[attempts[i].ExamID] = &attempts[i]
	}

	var lobby []LobbyExam
	now := time.Now()

	for i := range exams {
		exam := exams[i]
		exam.EntryToken = "" // never leak to students
		entry := LobbyExam{Exam: exam}

		if att, ok := attemptMap[exam.ID]; ok {
			entry.AttemptStatus = &att.Status
			entry.FinalScore = att.Score
			switch att.Status {
			case model.AttemptStatusDisqualified:
				entry.LobbyStatus = LobbyStatusDisqualified
			case model.AttemptStatusCompleted:
				entry.LobbyStatus = LobbyStatusFinished
			default:
				entry.LobbyStatus = LobbyStatusInProgress
			}
			lobby = append(lobby, entry)
			continue
		}

		if exam.ScheduledEnd != nil && exam.ScheduledEnd.Before(now) {
			continue // window closed, never joined
		}
		if exam.ScheduledStart != nil && exam.ScheduledStart.After(now) {
			// Only surface upcoming exams scheduled for today.
			y1, m1, d1 := exam.ScheduledStart.Date()
			y2, m2, d2 := now.Date()
			if y1 == y2 && m1 == m2 && d1 == d2 {
				entry.LobbyStatus = LobbyStatusUpcoming
				lobby = append(lobby, entry)
			}
			continue
		}

		entry.LobbyStatus = LobbyStatusAvailable
		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// Join validates the entry token and creates the attempt. Joining twice is
// idempotent: the existing attempt is returned and its start time is
// re-cached so remaining-time math stays anchored to the first join.
func (s *AttemptService) Join(ctx context.Context, examID uuid.UUID, studentID int, entryToken string) (*model.Attempt, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}
	now := time.Now()
	if exam.ScheduledStart != nil && exam.ScheduledStart.After(now) {
		return nil, ErrExamNotAvailable
	}
	if exam.ScheduledEnd != nil && exam.ScheduledEnd.Before(now) {
		return nil, ErrExamNotAvailable
	}
	if exam.EntryToken != "" && exam.EntryToken != entryToken {
		return nil, ErrInvalidEntryToken
	}

	existing, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	if existing != nil {
		s.cacheStartTime(ctx, examID, studentID, existing.StartedAt)
		return existing, nil
	}

	attempt := &model.Attempt{
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.AttemptStatusInProgress,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent join: the other request won the insert.
			existing, fetchErr := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", fetchErr)
			}
			s.cacheStartTime(ctx, examID, studentID, existing.StartedAt)
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheStartTime(ctx, examID, studentID, attempt.StartedAt)
	return attempt, nil
}

func (s *AttemptService) cacheStartTime(ctx context.Context, examID uuid.UUID, studentID int, startedAt time.Time) {
	key := config.CacheKey.AttemptStartKey(examID.String(), studentID)
	if err := s.rdb.Set(ctx, key, startedAt.Unix(), 0).Err(); err != nil {
		// Non-fatal: GetState falls back to PostgreSQL and self-heals.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("failed to cache start time")
	}
}

type orderPersistPayload struct {
	ExamID    string   `json:"exam_id"`
	StudentID int      `json:"student_id"`
	Order     []string `json:"order"`
}

// EnqueueQuestionOrder hands the session ordering to the order worker for
// durable storage. Called once, when the paper is first served.
func (s *AttemptService) EnqueueQuestionOrder(ctx context.Context, examID uuid.UUID, studentID int, order []uuid.UUID) {
	ids := make([]string, len(order))
	for i, id := range order {
		ids[i] = id.String()
	}
	raw, _ := json.Marshal(orderPersistPayload{ExamID: examID.String(), StudentID: studentID, Order: ids})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to enqueue question order persist")
	}
}

// VerifyActive checks that a student has a live attempt for the exam.
func (s *AttemptService) VerifyActive(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	att, err := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("no active attempt: %w", err)
	}
	if att.Status.Terminal() {
		return nil, ErrAttemptFinished
	}
	return att, nil
}

// GetState builds the resume payload for a reconnecting client: autosaved
// answers, event log, and the wall-clock-anchored remaining time.
func (s *AttemptService) GetState(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	eid := examID.String()

	answers := make(model.AnswerMap)
	raw, err := s.rdb.Get(ctx, config.CacheKey.StudentAnswersKey(eid, studentID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}
	if err == nil {
		if jsonErr := json.Unmarshal(raw, &answers); jsonErr != nil {
			return nil, fmt.Errorf("decode autosaved answers: %w", jsonErr)
		}
	}

	var logs []model.ExamLog
	rawLogs, err := s.rdb.Get(ctx, config.CacheKey.StudentLogsKey(eid, studentID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get attempt logs: %w", err)
	}
	if err == nil {
		if jsonErr := json.Unmarshal(rawLogs, &logs); jsonErr != nil {
			return nil, fmt.Errorf("decode attempt logs: %w", jsonErr)
		}
	}

	durationStr, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(eid)).Result()
	if err != nil {
		return nil, fmt.Errorf("get exam duration: %w", err)
	}
	durationMinutes, err := strconv.Atoi(durationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid duration format in redis: %w", err)
	}

	startedAt, err := s.getStartTime(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	remaining := time.Until(startedAt.Add(time.Duration(durationMinutes) * time.Minute))
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		ExamID:           examID,
		StudentID:        studentID,
		AutosavedAnswers: answers,
		Logs:             logs,
		RemainingSeconds: int(remaining.Seconds()),
	}, nil
}

// getStartTime reads the attempt start from Redis, falling back to
// PostgreSQL on a cache miss and self-healing the cache entry.
func (s *AttemptService) getStartTime(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	key := config.CacheKey.AttemptStartKey(examID.String(), studentID)

	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		att, dbErr := s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
		if dbErr != nil {
			return time.Time{}, fmt.Errorf("attempt not found in cache or db: %w", dbErr)
		}
		_ = s.rdb.Set(ctx, key, att.StartedAt.Unix(), 0).Err()
		return att.StartedAt, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis error getting start time: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return time.Unix(unix, 0), nil
}

// GetResults retrieves paginated attempt results for an exam.
func (s *AttemptService) GetResults(ctx context.Context, examID uuid.UUID, page, perPage int, grade *string) ([]repository.AttemptResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}
	return s.attemptRepo.ListByExam(ctx, examID, page, perPage, grade)
}

// GetAttempt returns a single attempt with its stored answers and logs.
func (s *AttemptService) GetAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	return s.attemptRepo.GetByExamAndStudent(ctx, examID, studentID)
}
