package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examo-id/examo-backend/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type fakeSink struct {
	mu          sync.Mutex
	progress    []ProgressSnapshot
	finals      []Result
	progressErr error
}

func (s *fakeSink) SaveProgress(_ context.Context, snap ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progressErr != nil {
		return s.progressErr
	}
	s.progress = append(s.progress, snap)
	return nil
}

func (s *fakeSink) SaveFinalResult(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, res)
	return nil
}

func (s *fakeSink) finalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finals)
}

func (s *fakeSink) progressCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.progress)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []int
	dq     bool
}

func (n *fakeNotifier) NotifyViolation(_ context.Context, _ uuid.UUID, _ int, count int, disqualified bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, count)
	if disqualified {
		n.dq = true
	}
	return nil
}

func intPtr(n int) *int { return &n }

func testExam() (*model.Exam, []model.Question) {
	questions := []model.Question{
		{
			ID:           uuid.New(),
			Type:         model.QuestionTypeMCQ,
			Text:         "pilih satu",
			Options:      []string{"a", "b", "c"},
			CorrectIndex: intPtr(1),
			Points:       10,
		},
		{
			ID:          uuid.New(),
			Type:        model.QuestionTypeEssay,
			Text:        "jelaskan",
			EssayAnswer: "hukum newton",
			Points:      10,
		},
		{
			ID:          uuid.New(),
			Type:        model.QuestionTypeShortAnswer,
			Text:        "ibu kota",
			ShortAnswer: "jakarta",
			Points:      10,
		},
	}
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Ujian Fisika",
		DurationMinutes: 20,
		Status:          model.ExamStatusPublished,
		Questions:       questions,
	}
	return exam, questions
}

func newTestRunner(t *testing.T, clk *fakeClock, mutate func(*Config)) (*Runner, *fakeSink, *fakeNotifier) {
	t.Helper()
	exam, questions := testExam()
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	cfg := Config{
		Exam:             exam,
		Questions:        questions,
		StudentID:        42,
		StartedAt:        clk.Now(),
		MaxViolations:    3,
		AutosaveInterval: 15 * time.Second,
		Sink:             sink,
		Notifier:         notifier,
		Now:              clk.Now,
		Logger:           zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, sink, notifier
}

func TestTimerAnchoredToStart(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	r, sink, _ := newTestRunner(t, clk, nil)
	ctx := context.Background()

	if got := r.RemainingSeconds(); got != 20*60 {
		t.Fatalf("fresh attempt remaining = %d, want %d", got, 20*60)
	}

	// Ticks may be dropped entirely; only wall clock matters.
	r.Tick(ctx, clk.Advance(19*time.Minute+59*time.Second))
	if r.Finished() {
		t.Fatal("finished with 1 second left")
	}
	if got := r.RemainingSeconds(); got != 1 {
		t.Fatalf("remaining = %d, want 1", got)
	}

	r.Tick(ctx, clk.Advance(time.Second))
	if !r.Finished() {
		t.Fatal("attempt must finish at expiry")
	}
	res, ok := r.Result()
	if !ok || res.Status != model.AttemptStatusCompleted {
		t.Fatalf("result status = %v, want COMPLETED", res.Status)
	}
	if sink.finalCount() != 1 {
		t.Fatalf("final persisted %d times, want 1", sink.finalCount())
	}
	if got := r.RemainingSeconds(); got != 0 {
		t.Fatalf("remaining after expiry = %d, want 0", got)
	}
}

func TestTimeoutGradesRecordedAnswers(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, _, _ := newTestRunner(t, clk, nil)
	ctx := context.Background()

	qid := r.questions[0].ID
	if err := r.SetAnswer(qid, model.ChoiceAnswer{Index: 1}); err != nil {
		t.Fatal(err)
	}

	r.Tick(ctx, clk.Advance(21*time.Minute))
	res, _ := r.Result()
	if res.Summary.PointsObtained != 10 {
		t.Fatalf("points = %v, want 10", res.Summary.PointsObtained)
	}
	if res.Summary.Stats.Unanswered != 2 {
		t.Fatalf("unanswered = %d, want 2", res.Summary.Stats.Unanswered)
	}
}

func TestAutosaveInterval(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, sink, _ := newTestRunner(t, clk, nil)
	ctx := context.Background()

	r.Tick(ctx, clk.Advance(14*time.Second))
	if sink.progressCount() != 0 {
		t.Fatal("flushed before the interval elapsed")
	}

	r.Tick(ctx, clk.Advance(time.Second))
	if sink.progressCount() != 1 {
		t.Fatalf("progress flushes = %d, want 1", sink.progressCount())
	}

	// Interval restarts from the flush, not from the first answer.
	r.Tick(ctx, clk.Advance(time.Second))
	if sink.progressCount() != 1 {
		t.Fatal("flushed again too early")
	}
	r.Tick(ctx, clk.Advance(15*time.Second))
	if sink.progressCount() != 2 {
		t.Fatalf("progress flushes = %d, want 2", sink.progressCount())
	}
}

func TestAutosaveFailureIsNonFatal(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, sink, _ := newTestRunner(t, clk, nil)
	sink.progressErr = errors.New("redis down")
	ctx := context.Background()

	r.Tick(ctx, clk.Advance(16*time.Second))
	if r.Finished() {
		t.Fatal("autosave failure must not end the attempt")
	}
	if err := r.SetAnswer(r.questions[0].ID, model.ChoiceAnswer{Index: 0}); err != nil {
		t.Fatalf("attempt unusable after autosave failure: %v", err)
	}

	// Next interval retries and succeeds.
	sink.progressErr = nil
	r.Tick(ctx, clk.Advance(16*time.Second))
	if sink.progressCount() != 1 {
		t.Fatalf("progress flushes = %d, want 1 after recovery", sink.progressCount())
	}
}

func TestViolationEscalation(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	var warnings []int
	r, sink, notifier := newTestRunner(t, clk, func(cfg *Config) {
		cfg.OnWarning = func(count, _ int) { warnings = append(warnings, count) }
	})
	ctx := context.Background()

	if out := r.RecordVisibilityChange(ctx, true); out != ViolationWarned {
		t.Fatalf("first blur outcome = %v, want warned", out)
	}
	if out := r.RecordVisibilityChange(ctx, false); out != ViolationNone {
		t.Fatalf("focus regain outcome = %v, want none", out)
	}
	if out := r.RecordVisibilityChange(ctx, true); out != ViolationWarned {
		t.Fatalf("second blur outcome = %v, want warned", out)
	}
	if out := r.RecordVisibilityChange(ctx, true); out != ViolationDisqualified {
		t.Fatalf("third blur outcome = %v, want disqualified", out)
	}
	// Past the limit nothing more is counted.
	if out := r.RecordVisibilityChange(ctx, true); out != ViolationNone {
		t.Fatalf("post-terminal blur outcome = %v, want none", out)
	}

	if len(warnings) != 2 || warnings[0] != 1 || warnings[1] != 2 {
		t.Fatalf("warnings = %v, want [1 2]", warnings)
	}
	if !notifier.dq {
		t.Fatal("disqualification not broadcast")
	}

	res, ok := r.Result()
	if !ok || res.Status != model.AttemptStatusDisqualified {
		t.Fatalf("status = %v, want DISQUALIFIED", res.Status)
	}
	if res.Summary.Score != 0 || res.Summary.PointsObtained != 0 {
		t.Fatalf("disqualified attempt scored %d (%v points)", res.Summary.Score, res.Summary.PointsObtained)
	}
	if sink.finalCount() != 1 {
		t.Fatalf("final persisted %d times, want 1", sink.finalCount())
	}

	var dqLogs int
	for _, l := range res.Logs {
		if l.Event == model.LogEventDisqualified {
			dqLogs++
		}
	}
	if dqLogs != 1 {
		t.Fatalf("disqualification logged %d times, want 1", dqLogs)
	}
}

func TestViolationsSurviveReconnect(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	prior := []model.ExamLog{
		{Event: model.LogEventStart, Timestamp: clk.Now()},
		{Event: model.LogEventTabBlur, Timestamp: clk.Now(), Detail: "violation 1 of 3"},
		{Event: model.LogEventTabFocus, Timestamp: clk.Now()},
		{Event: model.LogEventTabBlur, Timestamp: clk.Now(), Detail: "violation 2 of 3"},
	}
	r, _, _ := newTestRunner(t, clk, func(cfg *Config) {
		cfg.Logs = prior
	})

	if got := r.Violations(); got != 2 {
		t.Fatalf("resumed violations = %d, want 2", got)
	}
	if out := r.RecordVisibilityChange(context.Background(), true); out != ViolationDisqualified {
		t.Fatalf("outcome = %v, want disqualified on third total blur", out)
	}
}

func TestPreviewSkipsIntegrityAndPersistence(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, sink, notifier := newTestRunner(t, clk, func(cfg *Config) {
		cfg.Preview = true
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if out := r.RecordVisibilityChange(ctx, true); out != ViolationNone {
			t.Fatalf("preview blur outcome = %v, want none", out)
		}
	}
	if r.Finished() {
		t.Fatal("preview attempt disqualified")
	}

	r.Tick(ctx, clk.Advance(time.Minute))
	r.Submit(ctx)
	if sink.progressCount() != 0 || sink.finalCount() != 0 {
		t.Fatal("preview attempt must not persist anything")
	}
	if len(notifier.events) != 0 {
		t.Fatal("preview attempt must not broadcast violations")
	}
}

func TestSetAnswerValidation(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, _, _ := newTestRunner(t, clk, nil)
	qid := r.questions[0].ID

	if err := r.SetAnswer(uuid.New(), model.ChoiceAnswer{Index: 0}); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question error = %v", err)
	}
	if err := r.SetAnswer(qid, model.TextAnswer{Text: "b"}); !errors.Is(err, ErrAnswerKind) {
		t.Fatalf("kind mismatch error = %v", err)
	}

	if err := r.SetAnswer(qid, model.ChoiceAnswer{Index: 0}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetAnswer(qid, model.ChoiceAnswer{Index: 2}); err != nil {
		t.Fatal(err)
	}
	got := r.Answer(qid)
	if choice, ok := got.(model.ChoiceAnswer); !ok || choice.Index != 2 {
		t.Fatalf("answer = %#v, want replaced choice 2", got)
	}

	r.Submit(context.Background())
	if err := r.SetAnswer(qid, model.ChoiceAnswer{Index: 1}); !errors.Is(err, ErrFinished) {
		t.Fatalf("post-submit error = %v", err)
	}
}

func TestAnsweredCount(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, _, _ := newTestRunner(t, clk, nil)

	if got := r.AnsweredCount(); got != 0 {
		t.Fatalf("fresh count = %d", got)
	}
	_ = r.SetAnswer(r.questions[0].ID, model.ChoiceAnswer{Index: 0})
	_ = r.SetAnswer(r.questions[1].ID, model.TextAnswer{Text: ""})
	_ = r.SetAnswer(r.questions[2].ID, model.TextAnswer{Text: "jakarta"})

	// Cleared text does not count as answered.
	if got := r.AnsweredCount(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestNavigationBounds(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, _, _ := newTestRunner(t, clk, nil)

	if got := r.Prev(); got != 0 {
		t.Fatalf("Prev at start = %d", got)
	}
	if got := r.Next(); got != 1 {
		t.Fatalf("Next = %d, want 1", got)
	}
	if got := r.Jump(2); got != 2 {
		t.Fatalf("Jump = %d, want 2", got)
	}
	if got := r.Next(); got != 2 {
		t.Fatalf("Next at end = %d, want clamp to 2", got)
	}
	if got := r.Jump(99); got != 2 {
		t.Fatalf("out-of-range Jump moved to %d", got)
	}
	if got := r.Jump(-1); got != 2 {
		t.Fatalf("negative Jump moved to %d", got)
	}
}

func TestSubmitIdempotent(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	var finishes int
	r, sink, _ := newTestRunner(t, clk, func(cfg *Config) {
		cfg.OnFinish = func(Result) { finishes++ }
	})
	ctx := context.Background()

	first := r.Submit(ctx)
	clk.Advance(time.Minute)
	second := r.Submit(ctx)

	if !first.SubmittedAt.Equal(second.SubmittedAt) {
		t.Fatal("second submit produced a different result")
	}
	if finishes != 1 {
		t.Fatalf("OnFinish fired %d times, want 1", finishes)
	}
	if sink.finalCount() != 1 {
		t.Fatalf("final persisted %d times, want 1", sink.finalCount())
	}
}

func TestSubmitRacesTimerOnce(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, sink, _ := newTestRunner(t, clk, nil)
	ctx := context.Background()

	expiry := clk.Advance(21 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Submit(ctx)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Tick(ctx, expiry)
		}()
	}
	wg.Wait()

	if sink.finalCount() != 1 {
		t.Fatalf("final persisted %d times under race, want 1", sink.finalCount())
	}
	var submits int
	res, _ := r.Result()
	for _, l := range res.Logs {
		if l.Event == model.LogEventSubmit {
			submits++
		}
	}
	if submits != 1 {
		t.Fatalf("submit logged %d times, want 1", submits)
	}
}

func TestStateResumePayload(t *testing.T) {
	clk := newFakeClock(time.Unix(1_750_000_000, 0))
	r, _, _ := newTestRunner(t, clk, nil)

	qid := r.questions[2].ID
	_ = r.SetAnswer(qid, model.TextAnswer{Text: "jakarta"})
	clk.Advance(5 * time.Minute)

	state := r.State()
	if state.RemainingSeconds != 15*60 {
		t.Fatalf("remaining = %d, want %d", state.RemainingSeconds, 15*60)
	}
	if ans, ok := state.AutosavedAnswers[qid].(model.TextAnswer); !ok || ans.Text != "jakarta" {
		t.Fatalf("autosaved answer = %#v", state.AutosavedAnswers[qid])
	}
	if len(state.Logs) == 0 || state.Logs[0].Event != model.LogEventStart {
		t.Fatal("resume payload missing start log")
	}

	// The payload is a copy; mutating it must not touch the runner.
	state.AutosavedAnswers[qid] = model.TextAnswer{Text: "bandung"}
	if ans := r.Answer(qid).(model.TextAnswer); ans.Text != "jakarta" {
		t.Fatal("state payload aliases runner memory")
	}
}
