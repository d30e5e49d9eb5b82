package session

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func twentyQuestions() []QuestionRef {
	qs := make([]QuestionRef, 20)
	for i := range qs {
		qs[i] = QuestionRef{ID: qid(i + 1), OptionCount: 4}
	}
	return qs
}

func qid(n int) string {
	return string(rune('a'+n-1)) + "-question"
}

func TestSelectAnswerThenNavigate(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(30*time.Minute))

	if err := s.SelectAnswer(qid(5), 2); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := s.GoTo(1); err != nil {
		t.Fatalf("GoTo: %v", err)
	}

	if got, ok := s.Answer(qid(5)); !ok || got != 2 {
		t.Errorf("answer for q5 = (%d, %v), want (2, true)", got, ok)
	}
	if s.Current() != 1 {
		t.Errorf("current = %d, want 1", s.Current())
	}
	if c := s.Counts(); c.Answered != 1 || c.Total != 20 {
		t.Errorf("counts = %+v, want Answered=1 Total=20", c)
	}
}

func TestSelectAnswerIdempotent(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))

	for i := 0; i < 2; i++ {
		if err := s.SelectAnswer(qid(3), 1); err != nil {
			t.Fatalf("SelectAnswer #%d: %v", i+1, err)
		}
	}

	if got, _ := s.Answer(qid(3)); got != 1 {
		t.Errorf("answer = %d, want 1", got)
	}
	if c := s.Counts(); c.Answered != 1 {
		t.Errorf("answered count = %d, want 1 after duplicate select", c.Answered)
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))

	if err := s.SelectAnswer("nope", 0); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("unknown question error = %v, want ErrUnknownQuestion", err)
	}
	if err := s.SelectAnswer(qid(1), 4); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("out-of-range option error = %v, want ErrInvalidOption", err)
	}
	if err := s.SelectAnswer(qid(1), -1); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("negative option error = %v, want ErrInvalidOption", err)
	}
	if c := s.Counts(); c.Answered != 0 {
		t.Errorf("rejected selections must not record answers, got %d", c.Answered)
	}
}

func TestMarkAndAnswerIndependent(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))

	if err := s.SelectAnswer(qid(7), 3); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMarked(qid(7), true); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Answer(qid(7)); !ok || got != 3 {
		t.Errorf("marking changed the answer: (%d, %v)", got, ok)
	}

	// A question can be marked without being answered.
	if err := s.SetMarked(qid(8), true); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Answer(qid(8)); ok {
		t.Error("marking created an answer entry")
	}

	// Unmarking leaves the answer intact.
	if err := s.SetMarked(qid(7), false); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Answer(qid(7)); !ok || got != 3 {
		t.Errorf("unmarking changed the answer: (%d, %v)", got, ok)
	}
	if !reflect.DeepEqual(s.MarkedQuestions(), []string{qid(8)}) {
		t.Errorf("marked = %v, want [%s]", s.MarkedQuestions(), qid(8))
	}
}

func TestNavigationPurity(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))
	_ = s.SelectAnswer(qid(2), 1)
	_ = s.SetMarked(qid(4), true)

	before := s.Answers()
	markedBefore := s.MarkedQuestions()

	for _, n := range []int{20, 1, 10, 3} {
		if err := s.GoTo(n); err != nil {
			t.Fatalf("GoTo(%d): %v", n, err)
		}
		if s.Current() != n {
			t.Errorf("current = %d, want %d", s.Current(), n)
		}
	}

	if !reflect.DeepEqual(s.Answers(), before) {
		t.Error("navigation mutated answers")
	}
	if !reflect.DeepEqual(s.MarkedQuestions(), markedBefore) {
		t.Error("navigation mutated marked set")
	}

	if err := s.GoTo(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("GoTo(0) = %v, want ErrOutOfRange", err)
	}
	if err := s.GoTo(21); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("GoTo(21) = %v, want ErrOutOfRange", err)
	}
}

func TestHydrateResume(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))
	s.Hydrate(Resume{
		Answers: map[string]int{
			qid(1):    2,
			qid(3):    0,
			"unknown": 1,  // dropped: not in the question set
			qid(2):    99, // dropped: option out of range
		},
		LastQuestionIndex: 3,
		MarkedQuestions:   []string{qid(3), "unknown"},
	})

	want := map[string]int{qid(1): 2, qid(3): 0}
	if !reflect.DeepEqual(s.Answers(), want) {
		t.Errorf("answers = %v, want %v", s.Answers(), want)
	}
	if s.Current() != 3 {
		t.Errorf("current = %d, want 3", s.Current())
	}
	if !reflect.DeepEqual(s.MarkedQuestions(), []string{qid(3)}) {
		t.Errorf("marked = %v, want [%s]", s.MarkedQuestions(), qid(3))
	}
}

func TestHydrateClampsIndex(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))
	s.Hydrate(Resume{LastQuestionIndex: 99})
	if s.Current() != 1 {
		t.Errorf("current = %d, want 1 for out-of-range resume index", s.Current())
	}
}

func TestTimeLeftNeverNegative(t *testing.T) {
	deadline := time.Now()
	s := New(twentyQuestions(), deadline)

	if left := s.TimeLeft(deadline.Add(5 * time.Minute)); left != 0 {
		t.Errorf("TimeLeft past deadline = %v, want 0", left)
	}
	if left := s.TimeLeft(deadline.Add(-10 * time.Second)); left != 10*time.Second {
		t.Errorf("TimeLeft = %v, want 10s", left)
	}
	if !s.Expired(deadline.Add(time.Millisecond)) {
		t.Error("Expired = false past deadline")
	}
}

func TestSingleSubmitGuard(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))

	const triggers = 16 // explicit clicks racing timer expiry
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginSubmit() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("%d submit triggers won, want exactly 1", won)
	}

	// Once submitting, no answer save or navigation may race the submit.
	if err := s.SelectAnswer(qid(1), 0); !errors.Is(err, ErrTerminal) {
		t.Errorf("SelectAnswer while submitting = %v, want ErrTerminal", err)
	}
	if err := s.GoTo(2); !errors.Is(err, ErrTerminal) {
		t.Errorf("GoTo while submitting = %v, want ErrTerminal", err)
	}
	if err := s.SetMarked(qid(1), true); !errors.Is(err, ErrTerminal) {
		t.Errorf("SetMarked while submitting = %v, want ErrTerminal", err)
	}
}

func TestFailSubmitIsRecoverable(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))
	_ = s.SelectAnswer(qid(1), 1)

	if !s.BeginSubmit() {
		t.Fatal("BeginSubmit refused")
	}
	s.FailSubmit()

	if s.Phase() != PhaseInProgress {
		t.Fatalf("phase after failed submit = %s, want in_progress", s.Phase())
	}
	if got, _ := s.Answer(qid(1)); got != 1 {
		t.Error("failed submit lost answer data")
	}
	if !s.BeginSubmit() {
		t.Error("retry after failed submit refused")
	}
}

func TestConfirmFlow(t *testing.T) {
	s := New(twentyQuestions(), time.Now().Add(time.Hour))

	if err := s.BeginConfirm(); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseConfirming {
		t.Fatalf("phase = %s, want confirming", s.Phase())
	}
	s.CancelConfirm()
	if s.Phase() != PhaseInProgress {
		t.Fatalf("phase after cancel = %s, want in_progress", s.Phase())
	}

	// Expiry submits straight from in_progress, skipping confirmation.
	if !s.BeginSubmit() {
		t.Error("BeginSubmit from in_progress refused")
	}
	s.FinishSubmit()
	if s.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %s, want submitted", s.Phase())
	}
	if err := s.BeginConfirm(); !errors.Is(err, ErrTerminal) {
		t.Errorf("BeginConfirm after submit = %v, want ErrTerminal", err)
	}
}

func TestExtendDeadline(t *testing.T) {
	start := time.Now()
	s := New(twentyQuestions(), start.Add(time.Minute))

	// Heartbeat correction: server reports a later authoritative deadline.
	s.ExtendDeadline(start.Add(5 * time.Minute))
	if left := s.TimeLeft(start); left != 5*time.Minute {
		t.Errorf("TimeLeft after correction = %v, want 5m", left)
	}
}
