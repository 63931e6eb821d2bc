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
)

const (
	OrderBatchSize    = 50
	OrderBatchTimeout = 2 * time.Second
	OrderPollTimeout  = 1 * time.Second
)

type orderPayload struct {
	ExamID    string   `json:"exam_id"`
	StudentID int      `json:"student_id"`
	Order     []string `json:"order"`
}

// OrderWorker consumes the question order queue and persists each
// student's served ordering so grading review can replay the paper as
// the student saw it.
type OrderWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewOrderWorker creates a new OrderWorker.
func NewOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *OrderWorker {
	return &OrderWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "order_worker").Logger(),
	}
}

// Start runs the consume loop until the context is cancelled.
func (w *OrderWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OrderWorker started")

	batch := make([]*orderPayload, 0, OrderBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OrderBatchSize || time.Since(lastFlush) >= OrderBatchTimeout) {
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
			item, err := w.rdb.BLPop(ctx, OrderPollTimeout, config.WorkerKey.PersistOrderQueue).Result()
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

			var p orderPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *OrderWorker) flushSafe(ctx context.Context, batch []*orderPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk order update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, raw)
			}
		}
	}
}

func (w *OrderWorker) bulkUpdate(ctx context.Context, batch []*orderPayload) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	orders := make([][]byte, 0, n)

	for _, p := range batch {
		eID, err := uuid.Parse(p.ExamID)
		if err != nil {
			return err
		}
		ob, err := json.Marshal(p.Order)
		if err != nil {
			return err
		}

		examIDs = append(examIDs, eID)
		students = append(students, p.StudentID)
		orders = append(orders, ob)
	}

	query := `
		UPDATE attempts AS a
		SET question_order = t.question_order,
		    updated_at = NOW()
		FROM (
			SELECT u.exam_id, u.student_id, u.question_order
			FROM UNNEST($1::uuid[], $2::int[], $3::jsonb[])
				AS u (exam_id, student_id, question_order)
		) AS t
		WHERE a.exam_id = t.exam_id
		  AND a.student_id = t.student_id
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, orders)
	return err
}

func (w *OrderWorker) persistSingle(ctx context.Context, p *orderPayload) error {
	eID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return err
	}
	ob, err := json.Marshal(p.Order)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts SET question_order = $1, updated_at = NOW()
		 WHERE exam_id = $2 AND student_id = $3`,
		ob, eID, p.StudentID,
	)
	return err
}
