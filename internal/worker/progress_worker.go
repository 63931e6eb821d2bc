// Package worker holds the queue consumers that move live attempt state
// from the Redis fast lane into PostgreSQL. Each worker batches with a
// size/time threshold, falls back to row-by-row writes when a bulk
// statement fails, and requeues what it cannot persist.
package worker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/service"
)

const (
	ProgressBatchSize    = 50
	ProgressBatchTimeout = 2 * time.Second
	ProgressPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProgressWorker consumes the progress queue and UPSERTs autosaved
// answers and logs into the attempts table.
type ProgressWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "progress_worker").Logger(),
	}
}

// Start runs the consume loop until the context is cancelled. Call in a
// goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProgressWorker started")

	batch := make([]*service.ProgressPayload, 0, ProgressBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ProgressBatchSize || time.Since(lastFlush) >= ProgressBatchTimeout) {
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
			item, err := w.rdb.BLPop(ctx, ProgressPollTimeout, config.WorkerKey.PersistProgressQueue).Result()
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

			var p service.ProgressPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ProgressWorker) flushSafe(ctx context.Context, batch []*service.ProgressPayload) {
	if len(batch) == 0 {
		return
	}

	// The queue may hold several snapshots of the same attempt. Only the
	// newest matters, the rest are stale.
	latest := make(map[string]*service.ProgressPayload, len(batch))
	for _, p := range batch {
		latest[p.ExamID+":"+strconv.Itoa(p.StudentID)] = p
	}
	deduped := make([]*service.ProgressPayload, 0, len(latest))
	for _, p := range latest {
		deduped = append(deduped, p)
	}

	if err := w.bulkUpdate(ctx, deduped); err != nil {
		w.log.Warn().Err(err).Int("count", len(deduped)).Msg("bulk progress update failed, using fallback")

		for _, p := range deduped {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistProgressQueue, raw)
			}
		}
	}
}

func (w *ProgressWorker) bulkUpdate(ctx context.Context, batch []*service.ProgressPayload) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	answers := make([][]byte, 0, n)
	logs := make([][]byte, 0, n)

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
		answers = append(answers, ab)
		logs = append(logs, lb)
	}

	query := `
		UPDATE attempts AS a
		SET answers = t.answers,
		    logs = t.logs,
		    updated_at = NOW()
		FROM (
			SELECT u.exam_id, u.student_id, u.answers, u.logs
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::jsonb[],
				$4::jsonb[]
			) AS u (exam_id, student_id, answers, logs)
		) AS t
		WHERE a.exam_id = t.exam_id
		  AND a.student_id = t.student_id
		  AND a.status = 'IN_PROGRESS'
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, answers, logs)
	return err
}

func (w *ProgressWorker) persistSingle(ctx context.Context, p *service.ProgressPayload) error {
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
		 SET answers = $1, logs = $2, updated_at = NOW()
		 WHERE exam_id = $3 AND student_id = $4 AND status = 'IN_PROGRESS'`,
		ab, lb, eID, p.StudentID,
	)
	return err
}
