package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/cbt-backend/internal/model"
)

func sampleQuestions() []model.Question {
	return []model.Question{
		{ID: 1, Choices: []model.Choice{{ID: 11, QuestionID: 1}, {ID: 12, QuestionID: 1, IsCorrect: true}}},
		{ID: 2, Choices: []model.Choice{{ID: 21, QuestionID: 2, IsCorrect: true}, {ID: 22, QuestionID: 2}}},
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(nil))
	assert.Equal(t, 0, Score(model.AttemptChoices{}))
	assert.Equal(t, 1, Score(model.AttemptChoices{
		1: {ChoiceID: 12, IsCorrect: true},
		2: {ChoiceID: 22, IsCorrect: false},
	}))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(3, 0))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 66.7, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(10, 10))
	assert.Equal(t, 6.2, Percent(1, 16), "ties round to even")
	assert.Equal(t, 1.2, Percent(1, 80), "ties round to even")
	assert.Equal(t, 18.8, Percent(3, 16))
	assert.Equal(t, 100.0, Percent(5, 4), "clamped when questions were removed")
}

func TestGrade_UsesAuthoritativeCorrectness(t *testing.T) {
	got := Grade(sampleQuestions(), map[int64]int64{1: 12, 2: 22})

	require.Len(t, got, 2)
	assert.Equal(t, model.ChoiceRecord{ChoiceID: 12, IsCorrect: true}, got[1])
	assert.Equal(t, model.ChoiceRecord{ChoiceID: 22, IsCorrect: false}, got[2])
	assert.Equal(t, 1, Score(got))
}

func TestGrade_SkipsForeignAndUnknown(t *testing.T) {
	got := Grade(sampleQuestions(), map[int64]int64{
		1:  21, // choice of question 2
		2:  21,
		99: 11, // not on the paper
	})

	assert.Len(t, got, 1)
	assert.True(t, got[2].IsCorrect)
}

func TestParseAnswers_SkipsMalformed(t *testing.T) {
	got := ParseAnswers(map[string]string{
		"1":   "12",
		" 2 ": "21",
		"abc": "11",
		"3":   "x",
		"-4":  "5",
		"5":   "0",
	})

	assert.Equal(t, map[int64]int64{1: 12, 2: 21}, got)
}

func TestSummarize(t *testing.T) {
	res := Summarize(model.AttemptChoices{1: {ChoiceID: 12, IsCorrect: true}}, 2)
	assert.Equal(t, Result{Score: 1, TotalQuestions: 2, Percent: 50}, res)
}
