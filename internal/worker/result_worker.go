package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/service"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes the results queue and writes terminal attempt
// rows. After a successful flush it clears the Redis autosave buffers for
// the finished attempts.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// Start runs the consume loop until the context is cancelled.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*service.ResultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
				time.Sleep(3 * time.Second)
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p service.ResultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*service.ResultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk result update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	// Terminal rows are durable; the autosave buffers are no longer needed.
	w.bulkClearAutosaveBuffers(ctx, batch)
}

func (w *ResultWorker) bulkUpdate(ctx context.Context, batch []*service.ResultPayload) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	statuses := make([]string, 0, n)
	scores := make([]float64, 0, n)
	obtained := make([]float64, 0, n)
	possible := make([]float64, 0, n)
	corrects := make([]int, 0, n)
	incorrects := make([]int, 0, n)
	unanswereds := make([]int, 0, n)
	violations := make([]int, 0, n)
	answers := make([][]byte, 0, n)
	logs := make([][]byte, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, p := range batch {
		eID, err := uuid.Parse(p.ExamID)
		if err != nil {
			return err
		}
		ab, err := json.Marshal(p.Answers)
		if err != nil {
			return err
		}
		lb, err := json.Marshal(p.Logs)
		if err != nil {
			return err
		}

		examIDs = append(examIDs, eID)
		students = append(students, p.StudentID)
		statuses = append(statuses, string(p.Status))
		scores = append(scores, p.Score)
		obtained = append(obtained, p.PointsObtained)
		possible = append(possible, p.TotalPointsPossible)
		corrects = append(corrects, p.CorrectCount)
		incorrects = append(incorrects, p.IncorrectCount)
		unanswereds = append(unanswereds, p.UnansweredCount)
		violations = append(violations, p.ViolationCount)
		answers = append(answers, ab)
		logs = append(logs, lb)
		submittedAts = append(submittedAts, p.SubmittedAt)
	}

	query := `
		UPDATE attempts AS a
		SET status = t.status,
		    score = t.score,
		    points_obtained = t.obtained,
		    total_points_possible = t.possible,
		    correct_count = t.correct,
		    incorrect_count = t.incorrect,
		    unanswered_count = t.unanswered,
		    violation_count = t.violations,
		    answers = t.answers,
		    logs = t.logs,
		    submitted_at = t.submitted_at,
		    updated_at = NOW()
		FROM (
			SELECT u.exam_id, u.student_id, u.status, u.score, u.obtained,
			       u.possible, u.correct, u.incorrect, u.unanswered,
			       u.violations, u.answers, u.logs, u.submitted_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::text[],
				$4::float8[],
				$5::float8[],
				$6::float8[],
				$7::int[],
				$8::int[],
				$9::int[],
				$10::int[],
				$11::jsonb[],
				$12::jsonb[],
				$13::timestamptz[]
			) AS u (exam_id, student_id, status, score, obtained, possible,
			        correct, incorrect, unanswered, violations, answers, logs, submitted_at)
		) AS t
		WHERE a.exam_id = t.exam_id
		  AND a.student_id = t.student_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query,
		examIDs, students, statuses, scores, obtained, possible,
		corrects, incorrects, unanswereds, violations, answers, logs, submittedAts)
	return err
}

func (w *ResultWorker) bulkClearAutosaveBuffers(ctx context.Context, batch []*service.ResultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(p.ExamID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.StudentLogsKey(p.ExamID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.AttemptStartKey(p.ExamID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.ShuffledQuestionsKey(p.ExamID, p.StudentID))
	}
	_, _ = pipe.Exec(ctx)
}

func (w *ResultWorker) persistSingle(ctx context.Context, p *service.ResultPayload) error {
	eID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return err
	}
	ab, err := json.Marshal(p.Answers)
	if err != nil {
		return err
	}
	lb, err := json.Marshal(p.Logs)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, points_obtained = $3, total_points_possible = $4,
		     correct_count = $5, incorrect_count = $6, unanswered_count = $7,
		     violation_count = $8, answers = $9, logs = $10,
		     submitted_at = $11, updated_at = NOW()
		 WHERE exam_id = $12 AND student_id = $13 AND status = 'IN_PROGRESS'`,
		p.Status, p.Score, p.PointsObtained, p.TotalPointsPossible,
		p.CorrectCount, p.IncorrectCount, p.UnansweredCount,
		p.ViolationCount, ab, lb, p.SubmittedAt, eID, p.StudentID,
	)
	return err
}
