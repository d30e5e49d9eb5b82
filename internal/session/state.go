package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase tracks the submission state machine of an attempt:
// in_progress → confirming → submitting → submitted, with the timer-expiry
// path skipping confirmation entirely.
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseConfirming Phase = "confirming"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
)

// Errors returned by State operations. Validation failures are rejected
// here, before anything is persisted; they are never silently coerced.
var (
	ErrUnknownQuestion = errors.New("question does not belong to this session")
	ErrInvalidOption   = errors.New("option index out of range for question")
	ErrOutOfRange      = errors.New("question number out of range")
	ErrTerminal        = errors.New("session is submitting or submitted")
)

// QuestionRef is the minimal view of a question the state machine needs:
// its identity and how many options it has.
type QuestionRef struct {
	ID          string
	OptionCount int
}

// Resume carries previously persisted attempt state for rehydration after a
// reload. Entries referencing unknown questions or invalid option indexes
// are dropped during Hydrate; the index is clamped into range.
type Resume struct {
	Answers           map[string]int
	LastQuestionIndex int
	MarkedQuestions   []string
}

// Counts aggregates attempt progress for the submission confirmation dialog.
type Counts struct {
	Answered int
	Marked   int
	Total    int
}

// State is the in-memory representation of one exam attempt: current
// question, per-question answers, marked-for-review set and the submission
// phase. Remaining time is always derived from the absolute deadline, so a
// stalled ticker can never drift the attempt's clock.
//
// State is safe for concurrent use: handler goroutines and the countdown
// share it, and BeginSubmit is the single-entry gate that collapses
// concurrent submit triggers into one.
type State struct {
	mu        sync.Mutex
	questions map[string]int // id → option count
	order     []string       // 1-based question ordering
	current   int
	answers   map[string]int
	marked    map[string]struct{}
	deadline  time.Time
	phase     Phase
}

// New creates a State over an ordered question set with an absolute deadline.
func New(questions []QuestionRef, deadline time.Time) *State {
	s := &State{
		questions: make(map[string]int, len(questions)),
		order:     make([]string, 0, len(questions)),
		current:   1,
		answers:   make(map[string]int),
		marked:    make(map[string]struct{}),
		deadline:  deadline,
		phase:     PhaseInProgress,
	}
	for _, q := range questions {
		s.questions[q.ID] = q.OptionCount
		s.order = append(s.order, q.ID)
	}
	return s
}

// Hydrate replays a resume payload onto a fresh state. Invalid entries are
// dropped rather than failing the whole resume: a stale saved answer must
// not lock a student out of their attempt.
func (s *State) Hydrate(r Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for qid, opt := range r.Answers {
		if count, ok := s.questions[qid]; ok && opt >= 0 && opt < count {
			s.answers[qid] = opt
		}
	}
	for _, qid := range r.MarkedQuestions {
		if _, ok := s.questions[qid]; ok {
			s.marked[qid] = struct{}{}
		}
	}
	if r.LastQuestionIndex >= 1 && r.LastQuestionIndex <= len(s.order) {
		s.current = r.LastQuestionIndex
	}
}

// SelectAnswer records the selected option for a question. The question must
// belong to the session and the index must be valid for that question.
// Re-selecting the same option is idempotent.
func (s *State) SelectAnswer(questionID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseSubmitting || s.phase == PhaseSubmitted {
		return ErrTerminal
	}
	count, ok := s.questions[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if optionIndex < 0 || optionIndex >= count {
		return fmt.Errorf("%w: index %d, question has %d options", ErrInvalidOption, optionIndex, count)
	}
	s.answers[questionID] = optionIndex
	return nil
}

// SetMarked sets or clears the review flag on a question. Marking never
// touches the answer map.
func (s *State) SetMarked(questionID string, marked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseSubmitting || s.phase == PhaseSubmitted {
		return ErrTerminal
	}
	if _, ok := s.questions[questionID]; !ok {
		return ErrUnknownQuestion
	}
	if marked {
		s.marked[questionID] = struct{}{}
	} else {
		delete(s.marked, questionID)
	}
	return nil
}

// GoTo moves the current-question pointer. Navigation never creates or
// destroys answers.
func (s *State) GoTo(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseSubmitting || s.phase == PhaseSubmitted {
		return ErrTerminal
	}
	if n < 1 || n > len(s.order) {
		return fmt.Errorf("%w: %d not in [1,%d]", ErrOutOfRange, n, len(s.order))
	}
	s.current = n
	return nil
}

// Current returns the 1-based current question number.
func (s *State) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Answer reports the recorded option for a question, if any.
func (s *State) Answer(questionID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opt, ok := s.answers[questionID]
	return opt, ok
}

// IsMarked reports whether a question carries the review flag.
func (s *State) IsMarked(questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.marked[questionID]
	return ok
}

// Answers returns a copy of the answer map.
func (s *State) Answers() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// MarkedQuestions returns the marked set as a slice, in question order.
func (s *State) MarkedQuestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.marked))
	for _, qid := range s.order {
		if _, ok := s.marked[qid]; ok {
			out = append(out, qid)
		}
	}
	return out
}

// Counts reports answered/marked/total for the confirmation dialog.
func (s *State) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Answered: len(s.answers),
		Marked:   len(s.marked),
		Total:    len(s.order),
	}
}

// Deadline returns the absolute end of the exam window.
func (s *State) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// TimeLeft derives the remaining time from the absolute deadline, clamped
// at zero. It never goes negative.
func (s *State) TimeLeft(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the deadline has passed.
func (s *State) Expired(now time.Time) bool {
	return s.TimeLeft(now) == 0
}

// ExtendDeadline replaces the deadline after a resume-hydration or an
// authoritative heartbeat correction. This is the only path on which the
// displayed time may move backward.
func (s *State) ExtendDeadline(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadline = deadline
}

// Phase returns the submission phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// BeginConfirm opens the confirmation dialog. Only valid while in progress.
func (s *State) BeginConfirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInProgress {
		return ErrTerminal
	}
	s.phase = PhaseConfirming
	return nil
}

// CancelConfirm returns from the confirmation dialog to the attempt.
func (s *State) CancelConfirm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseConfirming {
		s.phase = PhaseInProgress
	}
}

// BeginSubmit transitions to submitting. It reports false when another
// trigger already won (user double-click racing timer expiry): the two
// collapse into a single network call by construction.
func (s *State) BeginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseSubmitting || s.phase == PhaseSubmitted {
		return false
	}
	s.phase = PhaseSubmitting
	return true
}

// FinishSubmit marks the attempt terminal.
func (s *State) FinishSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseSubmitted
}

// FailSubmit rolls submitting back to in_progress so the attempt can be
// retried. Losing exam data to a transient network failure is unacceptable.
func (s *State) FailSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseSubmitting {
		s.phase = PhaseInProgress
	}
}
