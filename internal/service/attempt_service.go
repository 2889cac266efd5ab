package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/anticheat"
	"github.com/stemsi/cbt-backend/internal/events"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"github.com/stemsi/cbt-backend/internal/scoring"
)

const maxReasonLength = 500

// ExamCatalog reads exams and their questions.
type ExamCatalog interface {
	GetDetail(ctx context.Context, examID int64) (*model.ExamDetail, error)
	// Questions returns the authoritative questions with correctness flags.
	Questions(ctx context.Context, examID int64) ([]model.Question, error)
	// Paper returns the student-facing paper with choices in a fresh random order.
	Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error)
	CountQuestions(ctx context.Context, examID int64) (int, error)
}

// AttemptStore persists attempts. Transition methods report whether this
// call performed the transition; when it did not, the stored row is returned.
type AttemptStore interface {
	Upsert(ctx context.Context, examID, userID int64) (*model.Attempt, error)
	GetByExamAndUser(ctx context.Context, examID, userID int64) (*model.Attempt, error)
	Start(ctx context.Context, examID, userID int64, now time.Time) (*model.Attempt, bool, error)
	Complete(ctx context.Context, examID, userID int64, choices model.AttemptChoices, now time.Time) (*model.Attempt, bool, error)
	Terminate(ctx context.Context, examID, userID int64, reason string, now time.Time) (*model.Attempt, bool, error)
	Delete(ctx context.Context, id int64) (*model.Attempt, error)
	ListByExam(ctx context.Context, examID int64) ([]repository.AttemptListing, error)
}

// DraftStore keeps selections captured during an attempt.
type DraftStore interface {
	Save(ctx context.Context, d model.AttemptDraft) error
	Get(ctx context.Context, examID, userID int64) (map[int64]int64, error)
	Clear(ctx context.Context, examID, userID int64) error
}

// ViolationStore counts and logs anti-cheat violations.
type ViolationStore interface {
	Counter(examID, userID int64) anticheat.Counter
	Enqueue(ctx context.Context, v model.AttemptViolation) error
	Reset(ctx context.Context, examID, userID int64) error
}

// Outcome describes what a lifecycle call did.
type Outcome string

const (
	OutcomeStarted    Outcome = "started"
	OutcomeCompleted  Outcome = "completed"
	OutcomeExpired    Outcome = "expired"
	OutcomeTerminated Outcome = "terminated"
	OutcomeUnchanged  Outcome = "unchanged"
)

// Transition is the result of a lifecycle call.
type Transition struct {
	Attempt *model.Attempt
	Outcome Outcome
}

// AttemptService runs the exam-attempt lifecycle:
//
//	not_started --start--> in_progress --submit|expiry--> completed
//	not_started|in_progress --terminate--> terminated
//
// completed and terminated are final. Expiry is evaluated lazily whenever an
// in-progress attempt is touched after its deadline.
type AttemptService struct {
	catalog       ExamCatalog
	attempts      AttemptStore
	drafts        DraftStore
	violations    ViolationStore
	publisher     events.Publisher
	defaultPolicy anticheat.Policy
	now           func() time.Time
	log           zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	catalog ExamCatalog,
	attempts AttemptStore,
	drafts DraftStore,
	violations ViolationStore,
	publisher events.Publisher,
	defaultPolicy anticheat.Policy,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		catalog:       catalog,
		attempts:      attempts,
		drafts:        drafts,
		violations:    violations,
		publisher:     publisher,
		defaultPolicy: defaultPolicy,
		now:           time.Now,
		log:           log.With().Str("component", "attempt_service").Logger(),
	}
}

// ─── Resolve / Start ────────────────────────────────────────────────────────

// Resolve returns the attempt of actor for examID, creating it in
// not_started on first access. Calling it repeatedly yields the same attempt.
// Availability (published, class group) is only checked before creation so
// that existing attempts stay reachable.
func (s *AttemptService) Resolve(ctx context.Context, actor Actor, examID int64) (*model.ExamDetail, *model.Attempt, error) {
	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	attempt, err := s.attempts.GetByExamAndUser(ctx, examID, actor.UserID)
	if err == nil {
		return exam, attempt, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}

	if err := checkAvailable(actor, exam); err != nil {
		return nil, nil, err
	}

	attempt, err = s.attempts.Upsert(ctx, examID, actor.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert attempt: %w", err)
	}
	return exam, attempt, nil
}

// Start moves the attempt to in_progress. Starting an attempt that is already
// started never touches time_started.
func (s *AttemptService) Start(ctx context.Context, actor Actor, examID int64) (*Transition, error) {
	exam, attempt, err := s.Resolve(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptNotStarted {
		return s.settle(ctx, exam, attempt)
	}

	attempt, changed, err := s.attempts.Start(ctx, examID, actor.UserID, s.now())
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	if !changed {
		return s.settle(ctx, exam, attempt)
	}

	s.log.Info().Int64("exam_id", examID).Int64("user_id", actor.UserID).Msg("Attempt started")
	s.emit(ctx, events.AttemptStarted, attempt, nil)
	return &Transition{Attempt: attempt, Outcome: OutcomeStarted}, nil
}

// settle applies a pending expiry and otherwise reports the attempt unchanged.
func (s *AttemptService) settle(ctx context.Context, exam *model.ExamDetail, attempt *model.Attempt) (*Transition, error) {
	if s.isExpired(exam, attempt) {
		return s.completeExpired(ctx, exam, attempt)
	}
	return &Transition{Attempt: attempt, Outcome: OutcomeUnchanged}, nil
}

// ─── Take (render or redirect) ──────────────────────────────────────────────

// ViewKind tags a TakeView.
type ViewKind string

const (
	ViewAcknowledgment ViewKind = "acknowledgment"
	ViewExam           ViewKind = "exam"
	ViewRedirect       ViewKind = "redirect"
)

// Reasons attached to redirect views.
const (
	RedirectCompleted  = "completed"
	RedirectTerminated = "terminated"
	RedirectExpired    = "expired"
)

// TakeView is what the take-exam entry point shows.
type TakeView struct {
	Kind             ViewKind          `json:"view"`
	Exam             *model.ExamDetail `json:"exam"`
	Attempt          *model.Attempt    `json:"attempt"`
	AntiCheat        anticheat.Policy  `json:"anti_cheat"`
	Paper            *model.ExamPaper  `json:"paper,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	RemainingSeconds int64             `json:"remaining_seconds,omitempty"`
	Drafts           map[int64]int64   `json:"drafts,omitempty"`
	RedirectReason   string            `json:"redirect_reason,omitempty"`
}

// Take resolves the attempt and decides what to show: the acknowledgment
// screen before the start, the paper while time remains, or a redirect to the
// score once the attempt is complete. An expired attempt is completed before
// anything is rendered.
func (s *AttemptService) Take(ctx context.Context, actor Actor, examID int64) (*TakeView, error) {
	exam, attempt, err := s.Resolve(ctx, actor, examID)
	if err != nil {
		return nil, err
	}

	view := &TakeView{Exam: exam, Attempt: attempt, AntiCheat: s.policyFor(&exam.Exam)}

	switch attempt.Status {
	case model.AttemptCompleted, model.AttemptTerminated:
		view.Kind = ViewRedirect
		view.RedirectReason = string(attempt.Status)
		return view, nil
	case model.AttemptNotStarted:
		view.Kind = ViewAcknowledgment
		return view, nil
	}

	if s.isExpired(exam, attempt) {
		t, err := s.completeExpired(ctx, exam, attempt)
		if err != nil {
			return nil, err
		}
		view.Kind = ViewRedirect
		view.Attempt = t.Attempt
		view.RedirectReason = RedirectExpired
		return view, nil
	}

	paper, err := s.catalog.Paper(ctx, &exam.Exam)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}
	drafts, err := s.drafts.Get(ctx, examID, actor.UserID)
	if err != nil {
		s.log.Warn().Err(err).Int64("exam_id", examID).Int64("user_id", actor.UserID).Msg("Drafts unavailable")
		drafts = nil
	}

	expiresAt, _ := attempt.ExpiresAt(exam.Duration())
	view.Kind = ViewExam
	view.Paper = paper
	view.ExpiresAt = &expiresAt
	view.RemainingSeconds = int64(math.Ceil(expiresAt.Sub(s.now()).Seconds()))
	view.Drafts = drafts
	return view, nil
}

// ─── Submit ─────────────────────────────────────────────────────────────────

// Submit grades answers (question id → choice id), laid over the autosaved
// drafts, against the authoritative choices and completes the attempt.
// Selections that do not match a question of the exam are skipped. A completed or terminated attempt is returned
// unchanged; a submission after the deadline is discarded in favour of the
// expiry path.
func (s *AttemptService) Submit(ctx context.Context, actor Actor, examID int64, answers map[int64]int64) (*Transition, error) {
	exam, attempt, err := s.Resolve(ctx, actor, examID)
	if err != nil {
		return nil, err
	}

	switch {
	case attempt.Status.IsTerminal():
		return &Transition{Attempt: attempt, Outcome: OutcomeUnchanged}, nil
	case attempt.Status == model.AttemptNotStarted:
		return nil, ErrAttemptNotStarted
	case s.isExpired(exam, attempt):
		return s.completeExpired(ctx, exam, attempt)
	}

	// Autosaved selections count unless the submission answers the same question.
	captured, err := s.drafts.Get(ctx, examID, attempt.UserID)
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}
	selected := make(map[int64]int64, len(captured)+len(answers))
	maps.Copy(selected, captured)
	maps.Copy(selected, answers)

	questions, err := s.catalog.Questions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	choices := scoring.Grade(questions, selected)

	return s.complete(ctx, exam, attempt, choices, OutcomeCompleted)
}

func (s *AttemptService) completeExpired(ctx context.Context, exam *model.ExamDetail, attempt *model.Attempt) (*Transition, error) {
	captured, err := s.drafts.Get(ctx, exam.ID, attempt.UserID)
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}

	var choices model.AttemptChoices
	if len(captured) > 0 {
		questions, err := s.catalog.Questions(ctx, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		choices = scoring.Grade(questions, captured)
	}

	return s.complete(ctx, exam, attempt, choices, OutcomeExpired)
}

func (s *AttemptService) complete(ctx context.Context, exam *model.ExamDetail, attempt *model.Attempt, choices model.AttemptChoices, outcome Outcome) (*Transition, error) {
	updated, changed, err := s.attempts.Complete(ctx, exam.ID, attempt.UserID, choices, s.now())
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}
	if !changed {
		return &Transition{Attempt: updated, Outcome: OutcomeUnchanged}, nil
	}

	s.clearDrafts(ctx, updated)

	total, err := s.catalog.CountQuestions(ctx, exam.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("exam_id", exam.ID).Msg("Count questions failed")
	}
	res := scoring.Summarize(updated.Choices, total)

	eventType := events.AttemptCompleted
	if outcome == OutcomeExpired {
		eventType = events.AttemptExpired
	}
	s.log.Info().
		Int64("exam_id", exam.ID).
		Int64("user_id", updated.UserID).
		Str("outcome", string(outcome)).
		Int("score", res.Score).
		Int("total", res.TotalQuestions).
		Msg("Attempt completed")
	s.emit(ctx, eventType, updated, func(e *events.AttemptEvent) {
		e.Score = &res.Score
		e.Percent = &res.Percent
	})

	return &Transition{Attempt: updated, Outcome: outcome}, nil
}

// ─── Terminate ──────────────────────────────────────────────────────────────

// Terminate ends the attempt with reason. The call is accepted as reported by
// the client; the server does not verify that a violation happened. Repeating
// it, or calling it on a completed attempt, changes nothing. An attempt past
// its deadline is completed through the expiry path instead.
func (s *AttemptService) Terminate(ctx context.Context, actor Actor, examID int64, reason string) (*Transition, error) {
	exam, attempt, err := s.Resolve(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	return s.terminate(ctx, exam, attempt, reason)
}

func (s *AttemptService) terminate(ctx context.Context, exam *model.ExamDetail, attempt *model.Attempt, reason string) (*Transition, error) {
	if attempt.Status.IsTerminal() {
		return &Transition{Attempt: attempt, Outcome: OutcomeUnchanged}, nil
	}
	if s.isExpired(exam, attempt) {
		return s.completeExpired(ctx, exam, attempt)
	}

	reason = normalizeReason(reason)
	updated, changed, err := s.attempts.Terminate(ctx, exam.ID, attempt.UserID, reason, s.now())
	if err != nil {
		return nil, fmt.Errorf("terminate attempt: %w", err)
	}
	if !changed {
		return &Transition{Attempt: updated, Outcome: OutcomeUnchanged}, nil
	}

	s.clearDrafts(ctx, updated)
	s.log.Warn().
		Int64("exam_id", exam.ID).
		Int64("user_id", updated.UserID).
		Str("reason", reason).
		Msg("Attempt terminated")
	s.emit(ctx, events.AttemptTerminated, updated, func(e *events.AttemptEvent) {
		e.Reason = reason
	})
	return &Transition{Attempt: updated, Outcome: OutcomeTerminated}, nil
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if r := []rune(reason); len(r) > maxReasonLength {
		reason = string(r[:maxReasonLength])
	}
	return reason
}

// ─── Drafts ─────────────────────────────────────────────────────────────────

// SaveDraft captures one selection of an in-progress attempt. The selection
// must name a choice of a question on the exam paper.
func (s *AttemptService) SaveDraft(ctx context.Context, actor Actor, examID, questionID, choiceID int64) error {
	exam, attempt, err := s.activeAttempt(ctx, actor, examID)
	if err != nil {
		return err
	}

	paper, err := s.catalog.Paper(ctx, &exam.Exam)
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}
	if !paperHasChoice(paper, questionID, choiceID) {
		return ErrInvalidSelection
	}

	if err := s.drafts.Save(ctx, model.AttemptDraft{
		ExamID:     examID,
		UserID:     actor.UserID,
		QuestionID: questionID,
		ChoiceID:   choiceID,
		SavedAt:    s.now(),
	}); err != nil {
		return err
	}

	s.emit(ctx, events.AttemptDraftSaved, attempt, nil)
	return nil
}

func paperHasChoice(paper *model.ExamPaper, questionID, choiceID int64) bool {
	for _, q := range paper.Questions {
		if q.ID != questionID {
			continue
		}
		for _, c := range q.Choices {
			if c.ID == choiceID {
				return true
			}
		}
		return false
	}
	return false
}

// activeAttempt returns an in-progress attempt that is still within its time.
// An expired attempt is completed on the way and ErrAttemptExpired returned.
func (s *AttemptService) activeAttempt(ctx context.Context, actor Actor, examID int64) (*model.ExamDetail, *model.Attempt, error) {
	exam, attempt, err := s.Resolve(ctx, actor, examID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return exam, attempt, ErrAttemptNotInProgress
	}
	if s.isExpired(exam, attempt) {
		if _, err := s.completeExpired(ctx, exam, attempt); err != nil {
			return nil, nil, err
		}
		return exam, attempt, ErrAttemptExpired
	}
	return exam, attempt, nil
}

// ─── Anti-cheat ─────────────────────────────────────────────────────────────

// ReportViolation feeds one client-observed signal to the exam's anti-cheat
// monitor. Signals reported for an attempt that already ended are ignored.
func (s *AttemptService) ReportViolation(ctx context.Context, actor Actor, examID int64, signal anticheat.Signal, detail string) (anticheat.Decision, error) {
	if !signal.Valid() {
		return anticheat.Decision{Action: anticheat.ActionIgnored}, ErrInvalidSignal
	}

	exam, attempt, err := s.activeAttempt(ctx, actor, examID)
	if err != nil {
		if errors.Is(err, ErrAttemptExpired) || (errors.Is(err, ErrAttemptNotInProgress) && attempt.Status.IsTerminal()) {
			return anticheat.Decision{Action: anticheat.ActionIgnored}, nil
		}
		return anticheat.Decision{}, err
	}

	monitor := anticheat.NewMonitor(
		s.policyFor(&exam.Exam),
		s.violations.Counter(examID, actor.UserID),
		anticheat.TerminatorFunc(func(ctx context.Context, reason string) error {
			_, err := s.terminate(ctx, exam, attempt, reason)
			return err
		}),
		s.log,
	)

	now := s.now()
	decision, err := monitor.Observe(ctx, anticheat.Violation{Signal: signal, Detail: detail, At: now})
	if err != nil {
		return decision, err
	}

	if err := s.violations.Enqueue(ctx, model.AttemptViolation{
		ExamID:     examID,
		UserID:     actor.UserID,
		Signal:     string(signal),
		Detail:     detail,
		Count:      decision.Count,
		RecordedAt: now,
	}); err != nil {
		s.log.Error().Err(err).Int64("exam_id", examID).Int64("user_id", actor.UserID).Msg("Violation not queued")
	}
	s.emit(ctx, events.AttemptViolation, attempt, func(e *events.AttemptEvent) {
		e.Signal = string(signal)
		e.Reason = decision.Reason
	})
	return decision, nil
}

// policyFor returns the anti-cheat policy that applies to exam.
func (s *AttemptService) policyFor(exam *model.Exam) anticheat.Policy {
	p, err := anticheat.ParsePolicy(exam.AntiCheat, s.defaultPolicy)
	if err != nil {
		s.log.Warn().Err(err).Int64("exam_id", exam.ID).Msg("Invalid anti-cheat policy, using default")
	}
	return p
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *AttemptService) getExam(ctx context.Context, examID int64) (*model.ExamDetail, error) {
	exam, err := s.catalog.GetDetail(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func checkAvailable(actor Actor, exam *model.ExamDetail) error {
	if !actor.IsStudent() {
		return nil
	}
	if !exam.Published {
		return ErrExamNotAvailable
	}
	if actor.StudentClassID == nil || *actor.StudentClassID != exam.ClassGroupID {
		return ErrExamNotAvailable
	}
	return nil
}

func (s *AttemptService) isExpired(exam *model.ExamDetail, attempt *model.Attempt) bool {
	return attempt.Status == model.AttemptInProgress && attempt.Expired(exam.Duration(), s.now())
}

func (s *AttemptService) clearDrafts(ctx context.Context, a *model.Attempt) {
	if err := s.drafts.Clear(ctx, a.ExamID, a.UserID); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", a.ExamID).Int64("user_id", a.UserID).Msg("Clear drafts failed")
	}
}

func (s *AttemptService) emit(ctx context.Context, t events.Type, a *model.Attempt, fill func(*events.AttemptEvent)) {
	if s.publisher == nil {
		return
	}
	e := events.New(t, a.ID, a.ExamID, a.UserID)
	e.Status = string(a.Status)
	if fill != nil {
		fill(e)
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("event_type", string(t)).Msg("Event not published")
	}
}
