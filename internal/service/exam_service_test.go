package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestShuffleChoices_KeepsSetAndOriginal(t *testing.T) {
	paper := &model.ExamPaper{
		ExamID: 1,
		Questions: []model.PaperQuestion{{
			ID: 1,
			Choices: []model.PaperChoice{
				{ID: 11}, {ID: 12}, {ID: 13}, {ID: 14}, {ID: 15}, {ID: 16},
			},
		}},
	}

	got := shuffleChoices(paper)

	ids := func(cs []model.PaperChoice) []int64 {
		out := make([]int64, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}
	assert.ElementsMatch(t, []int64{11, 12, 13, 14, 15, 16}, ids(got.Questions[0].Choices))
	assert.Equal(t, []int64{11, 12, 13, 14, 15, 16}, ids(paper.Questions[0].Choices), "cached paper must not be mutated")
}
