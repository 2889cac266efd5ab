package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stemsi/cbt-backend/internal/events"
	"github.com/stemsi/cbt-backend/internal/model"
)

func newScoreFixture(t *testing.T) (*fixture, *ScoreService) {
	t.Helper()
	f := newFixture(t)
	return f, NewScoreService(f.svc, zerolog.Nop())
}

func setFlags(f *fixture, showResult, showFeedback bool) {
	f.catalog.Update(examID, func(e *model.Exam) {
		e.ShowResult = showResult
		e.ShowFeedback = showFeedback
	})
}

func TestScoreDetail_OwnCompletedAttempt(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	f.start(t)
	_, err := f.svc.Submit(ctx, f.student, examID, map[int64]int64{101: 12, 102: 22})
	require.NoError(t, err)

	view, err := scores.Detail(ctx, f.student, examID, f.student.UserID)
	require.NoError(t, err)

	require.NotNil(t, view.Result)
	assert.Equal(t, 1, view.Result.Score)
	assert.Equal(t, 2, view.Result.TotalQuestions)
	assert.Equal(t, 50.0, view.Result.Percent)

	require.Len(t, view.Review, 2)
	assert.True(t, *view.Review[0].Correct)
	assert.False(t, *view.Review[1].Correct)
	assert.True(t, view.Review[1].Choices[1].Selected)
}

func TestScoreDetail_HonoursVisibilityFlags(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	setFlags(f, false, false)
	f.start(t)
	_, err := f.svc.Submit(ctx, f.student, examID, map[int64]int64{101: 12})
	require.NoError(t, err)

	view, err := scores.Detail(ctx, f.student, examID, f.student.UserID)
	require.NoError(t, err)
	assert.Nil(t, view.Result)
	assert.Empty(t, view.Review)
	assert.Equal(t, model.AttemptCompleted, view.Attempt.Status)

	staff := Actor{UserID: 7, Role: model.RoleStaff}
	view, err = scores.Detail(ctx, staff, examID, f.student.UserID)
	require.NoError(t, err)
	require.NotNil(t, view.Result)
	assert.Len(t, view.Review, 2)
}

func TestScoreDetail_HidesRunningAttempt(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	f.start(t)
	require.NoError(t, f.svc.SaveDraft(ctx, f.student, examID, 101, 12))

	view, err := scores.Detail(ctx, f.student, examID, f.student.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, view.Attempt.Status)
	assert.Nil(t, view.Result)
}

func TestScoreDetail_SettlesExpiredAttempt(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	f.start(t)
	require.NoError(t, f.svc.SaveDraft(ctx, f.student, examID, 101, 12))

	f.clock.Set(t0.Add(2 * time.Hour))
	view, err := scores.Detail(ctx, f.student, examID, f.student.UserID)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptCompleted, view.Attempt.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, 1, view.Result.Score)
}

func TestScoreDetail_OwnershipAndMissing(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()

	_, err := scores.Detail(ctx, f.student, examID, 99)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = scores.Detail(ctx, f.student, examID, f.student.UserID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	_, err = scores.Detail(ctx, f.student, 404, f.student.UserID)
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestScoreList(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	f.attempts.AddUser(model.User{ID: 42, Username: "ada", FirstName: "Ada", LastName: "Obi"})
	f.start(t)
	_, err := f.svc.Submit(ctx, f.student, examID, map[int64]int64{101: 12, 102: 21})
	require.NoError(t, err)

	exam, rows, err := scores.List(ctx, examID)
	require.NoError(t, err)

	assert.Equal(t, examID, exam.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "ada", rows[0].Username)
	assert.Equal(t, "Ada Obi", rows[0].FullName)
	assert.Equal(t, 2, rows[0].Score)
	assert.Equal(t, 100.0, rows[0].Percent)
}

func TestScoreDelete_AllowsRetake(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	first := f.start(t)
	_, err := f.svc.Terminate(ctx, f.student, examID, "tab switch")
	require.NoError(t, err)

	staff := Actor{UserID: 7, Role: model.RoleAdmin}
	deleted, err := scores.Delete(ctx, staff, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, deleted.ID)
	assert.Contains(t, f.events.Types(), events.AttemptDeleted)

	_, err = scores.Delete(ctx, staff, first.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	_, fresh, err := f.svc.Resolve(ctx, f.student, examID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
	assert.Equal(t, model.AttemptNotStarted, fresh.Status)
}

func TestScoreExport_WritesWorkbook(t *testing.T) {
	f, scores := newScoreFixture(t)
	ctx := context.Background()
	f.attempts.AddUser(model.User{ID: 42, Username: "ada", FirstName: "Ada", LastName: "Obi"})
	f.start(t)
	_, err := f.svc.Submit(ctx, f.student, examID, map[int64]int64{101: 12})
	require.NoError(t, err)

	exam, buf, err := scores.Export(ctx, examID)
	require.NoError(t, err)
	assert.Equal(t, examID, exam.ID)

	wb, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Scores")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Username", rows[0][2])
	assert.Equal(t, "ada", rows[1][2])
	assert.Equal(t, "Ada Obi", rows[1][3])
	assert.Equal(t, "completed", rows[1][4])
	assert.Equal(t, "1", rows[1][8])
	assert.Equal(t, "50", rows[1][9])
}

func TestScoreExport_UnknownExam(t *testing.T) {
	_, scores := newScoreFixture(t)
	_, _, err := scores.Export(context.Background(), 404)
	assert.ErrorIs(t, err, ErrExamNotFound)
}
