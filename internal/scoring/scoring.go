// Package scoring grades attempts against the authoritative choice store.
package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/stemsi/cbt-backend/internal/model"
)

// Result is a graded attempt summary.
type Result struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	Percent        float64 `json:"percent"`
}

// Score counts records whose correctness flag is true.
func Score(choices model.AttemptChoices) int {
	n := 0
	for _, rec := range choices {
		if rec.IsCorrect {
			n++
		}
	}
	return n
}

// Percent returns score/total as a percentage rounded to one decimal place,
// ties to even (1/16 is 6.2, not 6.3). A zero total yields 0. The result is clamped to [0, 100] because total is
// read at scoring time and questions may have been removed since the attempt.
func Percent(score, totalQuestions int) float64 {
	if totalQuestions <= 0 {
		return 0
	}
	p := math.RoundToEven(float64(score)/float64(totalQuestions)*100*10) / 10
	return math.Max(0, math.Min(100, p))
}

// Summarize scores choices against totalQuestions.
func Summarize(choices model.AttemptChoices, totalQuestions int) Result {
	s := Score(choices)
	return Result{Score: s, TotalQuestions: totalQuestions, Percent: Percent(s, totalQuestions)}
}

// Grade builds the choices map for submitted question → choice selections.
// Selections naming an unknown question, or a choice that does not belong to
// its question, are skipped. Correctness always comes from questions.
func Grade(questions []model.Question, submitted map[int64]int64) model.AttemptChoices {
	byID := make(map[int64]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	out := make(model.AttemptChoices, len(submitted))
	for qID, cID := range submitted {
		q, ok := byID[qID]
		if !ok {
			continue
		}
		c, ok := q.FindChoice(cID)
		if !ok {
			continue
		}
		out[qID] = model.ChoiceRecord{ChoiceID: c.ID, IsCorrect: c.IsCorrect}
	}
	return out
}

// ParseAnswers converts raw question id → choice id pairs, dropping any pair
// in which either side is not a positive integer.
func ParseAnswers(raw map[string]string) map[int64]int64 {
	out := make(map[int64]int64, len(raw))
	for k, v := range raw {
		qID, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil || qID <= 0 {
			continue
		}
		cID, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || cID <= 0 {
			continue
		}
		out[qID] = cID
	}
	return out
}
