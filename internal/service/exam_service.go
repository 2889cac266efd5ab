package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
	"github.com/stemsi/cbt-backend/internal/scoring"
)

// ExamService reads exams, caches student papers in Redis and builds the
// student lobby. It implements ExamCatalog.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	attemptRepo  *repository.AttemptRepository
	rdb          *redis.Client
	paperTTL     time.Duration
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	paperTTL time.Duration,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rdb:          rdb,
		paperTTL:     paperTTL,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetDetail retrieves an exam with its academic taxonomy.
func (s *ExamService) GetDetail(ctx context.Context, examID int64) (*model.ExamDetail, error) {
	return s.examRepo.GetDetail(ctx, examID)
}

// Questions returns the authoritative questions of an exam. Grading always
// reads them from PostgreSQL.
func (s *ExamService) Questions(ctx context.Context, examID int64) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// CountQuestions returns the current number of questions on an exam.
func (s *ExamService) CountQuestions(ctx context.Context, examID int64) (int, error) {
	return s.examRepo.CountQuestions(ctx, examID)
}

// Paper returns the student paper of exam with its choices shuffled. The
// unshuffled paper is cached in Redis for paperTTL.
func (s *ExamService) Paper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(exam.ID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return shuffleChoices(&paper), nil
		}
		s.log.Warn().Int64("exam_id", exam.ID).Msg("Discarding corrupt cached paper")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Int64("exam_id", exam.ID).Msg("Paper cache unavailable")
	}

	paper, err := s.WarmPaper(ctx, exam)
	if err != nil {
		return nil, err
	}
	return shuffleChoices(paper), nil
}

// WarmPaper builds the paper from PostgreSQL and stores it in Redis.
func (s *ExamService) WarmPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	paper := model.NewExamPaper(exam, questions)

	payload, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID), payload, s.paperTTL).Err(); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", exam.ID).Msg("Paper not cached")
	}

	s.log.Debug().
		Int64("exam_id", exam.ID).
		Int("questions", len(questions)).
		Msg("Paper warmed")
	return paper, nil
}

// PrewarmPapers caches the papers of every published exam, typically at startup.
func (s *ExamService) PrewarmPapers(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx, nil)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	warmed := 0
	for i := range exams {
		if _, err := s.WarmPaper(ctx, &exams[i].Exam); err != nil {
			s.log.Warn().Err(err).Int64("exam_id", exams[i].ID).Msg("Failed to warm paper, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

// shuffleChoices returns a copy of paper whose choice order is randomized.
func shuffleChoices(paper *model.ExamPaper) *model.ExamPaper {
	out := *paper
	out.Questions = make([]model.PaperQuestion, len(paper.Questions))
	for i, q := range paper.Questions {
		choices := append([]model.PaperChoice(nil), q.Choices...)
		rand.Shuffle(len(choices), func(a, b int) { choices[a], choices[b] = choices[b], choices[a] })
		q.Choices = choices
		out.Questions[i] = q
	}
	return &out
}

// ─── Lobby ──────────────────────────────────────────────────────────────────

// LobbyExam is an exam as listed on the student's "my exams" page.
type LobbyExam struct {
	model.ExamDetail
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score         *int                 `json:"score,omitempty"`
	Percent       *float64             `json:"percent,omitempty"`
}

// Lobby lists the published exams of the actor's class with their attempt
// state. Actors without a class (staff) see every published exam.
func (s *ExamService) Lobby(ctx context.Context, actor Actor) ([]LobbyExam, error) {
	if actor.IsStudent() && actor.StudentClassID == nil {
		return []LobbyExam{}, nil
	}

	exams, err := s.examRepo.ListPublished(ctx, actor.StudentClassID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	attempts, err := s.attemptRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	byExam := make(map[int64]*model.Attempt, len(attempts))
	for i := range attempts {
		byExam[attempts[i].ExamID] = &attempts[i]
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for _, e := range exams {
		entry := LobbyExam{ExamDetail: e}
		if a, ok := byExam[e.ID]; ok {
			status := a.Status
			entry.AttemptStatus = &status
			if a.Status.IsTerminal() && e.ShowResult {
				total, err := s.examRepo.CountQuestions(ctx, e.ID)
				if err != nil {
					return nil, fmt.Errorf("count questions: %w", err)
				}
				res := scoring.Summarize(a.Choices, total)
				entry.Score = &res.Score
				entry.Percent = &res.Percent
			}
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}
