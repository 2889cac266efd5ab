package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/repository"
)

// MonitorStats aggregates the attempts of one exam.
type MonitorStats struct {
	TotalJoined     int   `json:"total_joined"`
	TotalNotStarted int   `json:"total_not_started"`
	TotalInProgress int   `json:"total_in_progress"`
	TotalCompleted  int   `json:"total_completed"`
	TotalTerminated int   `json:"total_terminated"`
	TotalViolations int64 `json:"total_violations"`
}

// MonitorSnapshot is the live state of one exam.
type MonitorSnapshot struct {
	ExamID         int64                   `json:"exam_id"`
	Title          string                  `json:"title"`
	Duration       int                     `json:"duration"`
	TotalQuestions int                     `json:"total_questions"`
	Stats          MonitorStats            `json:"stats"`
	Students       []repository.MonitorRow `json:"students"`
}

// MonitorService builds snapshots for the staff live monitor.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	catalog     ExamCatalog
	rdb         *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, catalog ExamCatalog, rdb *redis.Client) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo, catalog: catalog, rdb: rdb}
}

// Snapshot returns the current state of every attempt of examID. Persisted
// counts are overlaid with the live Redis counters of running attempts.
func (s *MonitorService) Snapshot(ctx context.Context, examID int64) (*MonitorSnapshot, error) {
	var (
		exam     *model.ExamDetail
		total    int
		rows     []repository.MonitorRow
		examErr  error
		countErr error
		rowsErr  error
		wg       sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		exam, examErr = s.catalog.GetDetail(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		total, countErr = s.catalog.CountQuestions(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		rows, rowsErr = s.monitorRepo.ListAttempts(ctx, examID)
	}()
	wg.Wait()

	if examErr != nil {
		if errors.Is(examErr, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, examErr
	}
	if err := errors.Join(countErr, rowsErr); err != nil {
		return nil, err
	}

	s.overlayLive(ctx, examID, rows)

	snap := &MonitorSnapshot{
		ExamID:         exam.ID,
		Title:          exam.Title,
		Duration:       exam.DurationMinutes,
		TotalQuestions: total,
		Students:       rows,
	}
	if snap.Students == nil {
		snap.Students = []repository.MonitorRow{}
	}
	for _, r := range rows {
		snap.Stats.TotalJoined++
		snap.Stats.TotalViolations += r.ViolationCount
		switch r.Status {
		case model.AttemptNotStarted:
			snap.Stats.TotalNotStarted++
		case model.AttemptInProgress:
			snap.Stats.TotalInProgress++
		case model.AttemptCompleted:
			snap.Stats.TotalCompleted++
		case model.AttemptTerminated:
			snap.Stats.TotalTerminated++
		}
	}
	return snap, nil
}

// overlayLive replaces persisted counts of in-progress attempts with the live
// Redis values when those are larger. Redis failures leave rows untouched.
func (s *MonitorService) overlayLive(ctx context.Context, examID int64, rows []repository.MonitorRow) {
	if s.rdb == nil {
		return
	}

	type live struct {
		drafts     *redis.IntCmd
		violations *redis.StringCmd
	}
	cmds := make(map[int]live)
	pipe := s.rdb.Pipeline()
	for i, r := range rows {
		if r.Status != model.AttemptInProgress {
			continue
		}
		cmds[i] = live{
			drafts:     pipe.HLen(ctx, config.CacheKey.AttemptDraftKey(examID, r.UserID)),
			violations: pipe.Get(ctx, config.CacheKey.AttemptViolationCountKey(examID, r.UserID)),
		}
	}
	if len(cmds) == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return
	}

	for i, c := range cmds {
		if n, err := c.drafts.Result(); err == nil && n > rows[i].AnsweredCount {
			rows[i].AnsweredCount = n
		}
		if n, err := c.violations.Int64(); err == nil && n > rows[i].ViolationCount {
			rows[i].ViolationCount = n
		}
	}
}

// Violations returns the persisted violation log of one attempt.
func (s *MonitorService) Violations(ctx context.Context, examID, userID int64) ([]model.AttemptViolation, error) {
	v, err := s.monitorRepo.ListViolations(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return v, nil
}
