package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/cbt-backend/internal/model"
)

func TestStruct_SignalTag(t *testing.T) {
	Setup()

	assert.Nil(t, Struct(&model.ViolationRequest{Signal: "focus_lost"}))

	fields := Struct(&model.ViolationRequest{Signal: "screenshot"})
	assert.Equal(t, "signal must be a known anti-cheat signal", fields["signal"])
}

func TestStruct_UsesJSONFieldNames(t *testing.T) {
	Setup()

	fields := Struct(&model.DraftRequest{QuestionID: 0, ChoiceID: 3})
	assert.Contains(t, fields, "q_id")
	assert.NotContains(t, fields, "choice_id")
}
