package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/access"
	"github.com/stemsi/cbt-backend/internal/events"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"github.com/stemsi/cbt-backend/internal/scoring"
)

// ReviewChoice is one choice on the score-detail review.
type ReviewChoice struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
	Selected  bool   `json:"selected"`
}

// ReviewItem is one question on the score-detail review.
type ReviewItem struct {
	QuestionID int64          `json:"question_id"`
	Body       string         `json:"question"`
	Answered   bool           `json:"answered"`
	Correct    *bool          `json:"correct,omitempty"`
	Choices    []ReviewChoice `json:"choices"`
}

// ScoreView is the read-only result of one attempt.
type ScoreView struct {
	Exam    *model.ExamDetail `json:"exam"`
	Attempt *model.Attempt    `json:"attempt"`
	Result  *scoring.Result   `json:"result,omitempty"`
	Review  []ReviewItem      `json:"review,omitempty"`
}

// ScoreService serves score views and staff score management.
type ScoreService struct {
	lifecycle *AttemptService
	log       zerolog.Logger
}

// NewScoreService creates a new ScoreService.
func NewScoreService(lifecycle *AttemptService, log zerolog.Logger) *ScoreService {
	return &ScoreService{
		lifecycle: lifecycle,
		log:       log.With().Str("component", "score_service").Logger(),
	}
}

// Detail returns the result of user uid on examID. Students may only see their
// own attempt; the exam's show_result and show_feedback flags decide how much
// of it they see. Staff always see everything. Nothing is revealed while the
// attempt is still running.
func (s *ScoreService) Detail(ctx context.Context, actor Actor, examID, uid int64) (*ScoreView, error) {
	staff := access.Check(actor.Role, access.ViewScores) == access.Allow
	if uid != actor.UserID && !staff {
		return nil, ErrNotOwner
	}

	exam, err := s.lifecycle.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.lifecycle.attempts.GetByExamAndUser(ctx, examID, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	t, err := s.lifecycle.settle(ctx, exam, attempt)
	if err != nil {
		return nil, err
	}
	attempt = t.Attempt

	view := &ScoreView{Exam: exam, Attempt: attempt}
	if !attempt.Status.IsTerminal() && !staff {
		return view, nil
	}

	if staff || exam.ShowResult {
		total, err := s.lifecycle.catalog.CountQuestions(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("count questions: %w", err)
		}
		res := scoring.Summarize(attempt.Choices, total)
		view.Result = &res
	}

	if staff || exam.ShowFeedback {
		questions, err := s.lifecycle.catalog.Questions(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		view.Review = buildReview(questions, attempt.Choices)
	}
	return view, nil
}

func buildReview(questions []model.Question, choices model.AttemptChoices) []ReviewItem {
	items := make([]ReviewItem, 0, len(questions))
	for _, q := range questions {
		rec, answered := choices[q.ID]
		item := ReviewItem{
			QuestionID: q.ID,
			Body:       q.Body,
			Answered:   answered,
			Choices:    make([]ReviewChoice, len(q.Choices)),
		}
		if answered {
			correct := rec.IsCorrect
			item.Correct = &correct
		}
		for i, c := range q.Choices {
			isCorrect := c.IsCorrect
			item.Choices[i] = ReviewChoice{
				ID:        c.ID,
				Body:      c.Body,
				IsCorrect: &isCorrect,
				Selected:  answered && rec.ChoiceID == c.ID,
			}
		}
		items = append(items, item)
	}
	return items
}

// List returns every attempt of an exam with its score.
func (s *ScoreService) List(ctx context.Context, examID int64) (*model.ExamDetail, []model.ScoreRow, error) {
	exam, err := s.lifecycle.getExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	listings, err := s.lifecycle.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("list attempts: %w", err)
	}
	total, err := s.lifecycle.catalog.CountQuestions(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("count questions: %w", err)
	}

	rows := make([]model.ScoreRow, 0, len(listings))
	for _, l := range listings {
		a := l.Attempt
		u := model.User{Username: l.Username, FirstName: l.FirstName, LastName: l.LastName}
		res := scoring.Summarize(a.Choices, total)
		rows = append(rows, model.ScoreRow{
			AttemptID:         a.ID,
			UserID:            a.UserID,
			Username:          l.Username,
			FullName:          u.FullName(),
			Status:            a.Status,
			TimeStarted:       a.TimeStarted,
			TimeCompleted:     a.TimeCompleted,
			TerminationReason: a.TerminationReason,
			Score:             res.Score,
			Percent:           res.Percent,
		})
	}
	return exam, rows, nil
}

// Delete removes an attempt entirely, letting the student take the exam again.
func (s *ScoreService) Delete(ctx context.Context, actor Actor, attemptID int64) (*model.Attempt, error) {
	a, err := s.lifecycle.attempts.Delete(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("delete attempt: %w", err)
	}

	s.lifecycle.clearDrafts(ctx, a)
	if err := s.lifecycle.violations.Reset(ctx, a.ExamID, a.UserID); err != nil {
		s.log.Warn().Err(err).Int64("attempt_id", a.ID).Msg("Reset violation counter failed")
	}

	s.log.Info().
		Int64("attempt_id", a.ID).
		Int64("exam_id", a.ExamID).
		Int64("user_id", a.UserID).
		Int64("deleted_by", actor.UserID).
		Msg("Attempt deleted")
	s.lifecycle.emit(ctx, events.AttemptDeleted, a, nil)
	return a, nil
}
