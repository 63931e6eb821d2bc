// Package session drives one live exam attempt: the countdown anchored to
// the attempt's start time, the periodic autosave flush, the focus-loss
// integrity counter, and answer capture with bounded navigation. A Runner
// never sleeps to measure time; every deadline is recomputed from wall
// clock so reconnects and dropped ticks cannot stretch the exam.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/grading"
	"github.com/examo-id/examo-backend/internal/model"
)

var (
	ErrFinished        = errors.New("attempt already finished")
	ErrUnknownQuestion = errors.New("question not part of this attempt")
	ErrAnswerKind      = errors.New("answer kind does not match question type")
)

// Config assembles a Runner. Exam carries the canonical metadata; Questions
// is the session ordering served to this student, answer keys included.
type Config struct {
	Exam      *model.Exam
	Questions []model.Question
	StudentID int
	StartedAt time.Time
	Preview   bool

	// Resume state from a previous connection, both may be nil.
	Answers model.AnswerMap
	Logs    []model.ExamLog

	MaxViolations    int
	AutosaveInterval time.Duration

	Sink     PersistenceSink
	Notifier ViolationNotifier

	// OnFinish fires once when the attempt reaches a terminal state,
	// whatever the trigger (submit, timeout, disqualification).
	OnFinish func(Result)
	// OnWarning fires on each tolerated focus loss.
	OnWarning func(count, max int)

	// Now overrides the clock, used by tests. Defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// Runner holds one attempt's live state. All exported methods are safe
// for concurrent use.
type Runner struct {
	mu sync.Mutex

	exam      *model.Exam
	questions []model.Question
	byID      map[uuid.UUID]*model.Question
	studentID int
	preview   bool

	answers model.AnswerMap
	logs    []model.ExamLog
	current int

	startedAt    time.Time
	lastAutosave time.Time

	violations    int
	maxViolations int

	finished bool
	result   Result

	autosaveInterval time.Duration
	sink             PersistenceSink
	notifier         ViolationNotifier
	onFinish         func(Result)
	onWarning        func(count, max int)
	now              func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	log zerolog.Logger
}

// NewRunner builds a Runner from resumed or fresh state. It counts prior
// tab_blur log entries so a reconnect does not reset the violation budget.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Exam == nil {
		return nil, errors.New("session: exam is required")
	}
	if len(cfg.Questions) == 0 {
		return nil, errors.New("session: question list is empty")
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = 3
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = cfg.Now()
	}

	answers := cfg.Answers
	if answers == nil {
		answers = make(model.AnswerMap)
	}

	byID := make(map[uuid.UUID]*model.Question, len(cfg.Questions))
	for i := range cfg.Questions {
		byID[cfg.Questions[i].ID] = &cfg.Questions[i]
	}

	r := &Runner{
		exam:             cfg.Exam,
		questions:        cfg.Questions,
		byID:             byID,
		studentID:        cfg.StudentID,
		preview:          cfg.Preview,
		answers:          answers,
		logs:             cfg.Logs,
		startedAt:        cfg.StartedAt,
		lastAutosave:     cfg.Now(),
		maxViolations:    cfg.MaxViolations,
		autosaveInterval: cfg.AutosaveInterval,
		sink:             cfg.Sink,
		notifier:         cfg.Notifier,
		onFinish:         cfg.OnFinish,
		onWarning:        cfg.OnWarning,
		now:              cfg.Now,
		stopCh:           make(chan struct{}),
		log: cfg.Logger.With().
			Str("component", "session").
			Str("exam_id", cfg.Exam.ID.String()).
			Int("student_id", cfg.StudentID).
			Logger(),
	}

	for _, l := range r.logs {
		if l.Event == model.LogEventTabBlur {
			r.violations++
		}
	}

	if len(r.logs) == 0 {
		r.appendLog(model.LogEventStart, "")
	}
	return r, nil
}

// Start runs the one-second tick loop until the attempt finishes, Stop is
// called, or the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Tick(ctx, r.now())
			if r.Finished() {
				return
			}
		}
	}
}

// Stop ends the tick loop without finishing the attempt. The student can
// reconnect and resume; nothing terminal is recorded.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Tick advances the attempt to the given instant: it force-submits on
// expiry and flushes autosave when the interval has elapsed. Exposed so
// tests can drive virtual time.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}

	if r.remainingAtLocked(now) <= 0 {
		res := r.finishLocked(now, model.AttemptStatusCompleted, "time expired")
		r.mu.Unlock()
		r.deliverFinish(ctx, res)
		return
	}

	var snap *ProgressSnapshot
	if now.Sub(r.lastAutosave) >= r.autosaveInterval {
		r.lastAutosave = now
		s := r.snapshotLocked(now)
		snap = &s
	}
	r.mu.Unlock()

	if snap != nil {
		r.flushProgress(ctx, *snap)
	}
}

// RemainingSeconds reports the countdown as of the runner's clock.
func (r *Runner) RemainingSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remainingAtLocked(r.now())
}

// remainingAtLocked anchors the countdown to startedAt rather than to
// tick cadence, so missed ticks never extend the exam.
func (r *Runner) remainingAtLocked(now time.Time) int {
	total := r.exam.DurationMinutes * 60
	elapsed := int(now.Sub(r.startedAt).Seconds())
	remaining := total - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordVisibilityChange handles a tab focus transition. Losing focus
// consumes one violation; at the limit the attempt is disqualified with a
// zero score. Regaining focus only logs. Preview attempts are exempt.
func (r *Runner) RecordVisibilityChange(ctx context.Context, hidden bool) ViolationOutcome {
	r.mu.Lock()
	if r.finished || r.preview {
		r.mu.Unlock()
		return ViolationNone
	}

	if !hidden {
		r.appendLog(model.LogEventTabFocus, "")
		r.mu.Unlock()
		return ViolationNone
	}

	r.violations++
	count := r.violations
	r.appendLog(model.LogEventTabBlur, fmt.Sprintf("violation %d of %d", count, r.maxViolations))

	if count >= r.maxViolations {
		r.appendLog(model.LogEventDisqualified, fmt.Sprintf("focus lost %d times", count))
		res := r.finishLocked(r.now(), model.AttemptStatusDisqualified, "integrity violation limit")
		r.mu.Unlock()

		r.notify(ctx, count, true)
		r.deliverFinish(ctx, res)
		return ViolationDisqualified
	}
	r.mu.Unlock()

	r.log.Warn().Int("violations", count).Msg("focus loss recorded")
	r.notify(ctx, count, false)
	if r.onWarning != nil {
		r.onWarning(count, r.maxViolations)
	}
	return ViolationWarned
}

// SetAnswer records or replaces the student's answer for one question.
func (r *Runner) SetAnswer(questionID uuid.UUID, ans model.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return ErrFinished
	}
	q, ok := r.byID[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if ans != nil && ans.Kind() != model.ExpectedAnswerKind(q.Type) {
		return fmt.Errorf("%w: question %s wants %s, got %s",
			ErrAnswerKind, questionID, model.ExpectedAnswerKind(q.Type), ans.Kind())
	}

	r.answers[questionID] = ans
	r.appendLog(model.LogEventAutosave, fmt.Sprintf("answered question %s", questionID))
	return nil
}

// Answer returns the current answer for a question, nil if unanswered.
func (r *Runner) Answer(questionID uuid.UUID) model.Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers[questionID]
}

// AnsweredCount counts questions with a substantive answer. A nil entry or
// an empty text answer does not count.
func (r *Runner) AnsweredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ans := range r.answers {
		if ans == nil {
			continue
		}
		if t, ok := ans.(model.TextAnswer); ok && t.Text == "" {
			continue
		}
		n++
	}
	return n
}

// Violations reports how many focus losses have been recorded.
func (r *Runner) Violations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations
}

// Next moves forward one question, clamped at the last.
func (r *Runner) Next() int { return r.jump(+1, true) }

// Prev moves back one question, clamped at the first.
func (r *Runner) Prev() int { return r.jump(-1, true) }

// Jump moves directly to the given index. Out-of-range targets are
// rejected, the position is unchanged.
func (r *Runner) Jump(index int) int { return r.jump(index, false) }

func (r *Runner) jump(target int, relative bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if relative {
		target += r.current
	}
	if target < 0 || target >= len(r.questions) {
		return r.current
	}
	r.current = target
	return r.current
}

// Current returns the index of the question in view.
func (r *Runner) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Finished reports whether the attempt has reached a terminal state.
func (r *Runner) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Result returns the terminal result. Valid only after Finished.
func (r *Runner) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.finished
}

// Submit finishes the attempt and grades it. Calling it again, or racing
// it against the timer, returns the already-recorded result.
func (r *Runner) Submit(ctx context.Context) Result {
	r.mu.Lock()
	if r.finished {
		res := r.result
		r.mu.Unlock()
		return res
	}
	res := r.finishLocked(r.now(), model.AttemptStatusCompleted, "submitted")
	r.mu.Unlock()

	r.deliverFinish(ctx, res)
	return res
}

// State builds the resume payload handed to a reconnecting client.
func (r *Runner) State() model.AttemptState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return model.AttemptState{
		ExamID:           r.exam.ID,
		StudentID:        r.studentID,
		AutosavedAnswers: r.answers.Clone(),
		Logs:             append([]model.ExamLog(nil), r.logs...),
		RemainingSeconds: r.remainingAtLocked(r.now()),
	}
}

// finishLocked transitions to a terminal state exactly once. Disqualified
// attempts score zero regardless of recorded answers.
func (r *Runner) finishLocked(now time.Time, status model.AttemptStatus, reason string) Result {
	r.finished = true
	r.appendLog(model.LogEventSubmit, reason)

	var summary grading.Summary
	if status == model.AttemptStatusDisqualified {
		summary = grading.Summary{TotalPointsPossible: totalPoints(r.questions)}
		summary.Stats.Total = len(r.questions)
		summary.Stats.Unanswered = len(r.questions)
	} else {
		summary = grading.Grade(r.questions, r.answers)
	}

	r.result = Result{
		ExamID:      r.exam.ID,
		StudentID:   r.studentID,
		Status:      status,
		Summary:     summary,
		Answers:     r.answers.Clone(),
		Logs:        append([]model.ExamLog(nil), r.logs...),
		SubmittedAt: now,
	}
	return r.result
}

func (r *Runner) deliverFinish(ctx context.Context, res Result) {
	if !r.preview && r.sink != nil {
		if err := r.sink.SaveFinalResult(ctx, res); err != nil {
			r.log.Error().Err(err).Msg("failed to enqueue final result")
		}
	}
	if r.onFinish != nil {
		r.onFinish(res)
	}
	r.Stop()
}

func (r *Runner) flushProgress(ctx context.Context, snap ProgressSnapshot) {
	if r.preview || r.sink == nil {
		return
	}
	if err := r.sink.SaveProgress(ctx, snap); err != nil {
		// Autosave is best effort. The attempt keeps running and the
		// next interval retries with a fresh snapshot.
		r.log.Warn().Err(err).Msg("autosave flush failed")
	}
}

func (r *Runner) notify(ctx context.Context, count int, disqualified bool) {
	if r.preview || r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyViolation(ctx, r.exam.ID, r.studentID, count, disqualified); err != nil {
		r.log.Warn().Err(err).Msg("violation notify failed")
	}
}

func (r *Runner) snapshotLocked(now time.Time) ProgressSnapshot {
	return ProgressSnapshot{
		ExamID:    r.exam.ID,
		StudentID: r.studentID,
		Answers:   r.answers.Clone(),
		Logs:      append([]model.ExamLog(nil), r.logs...),
		SavedAt:   now,
	}
}

func (r *Runner) appendLog(event model.LogEvent, detail string) {
	r.logs = append(r.logs, model.ExamLog{
		Event:     event,
		Timestamp: r.now(),
		Detail:    detail,
	})
}

func totalPoints(questions []model.Question) float64 {
	var total float64
	for i := range questions {
		total += questions[i].Points
	}
	return total
}
