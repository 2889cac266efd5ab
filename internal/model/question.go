package model

// Question belongs to one subject and one class group and owns its choices.
type Question struct {
	ID           int64    `json:"id"`
	SubjectID    int64    `json:"subject_id"`
	ClassGroupID int64    `json:"class_group_id"`
	Body         string   `json:"question"`
	AuthorID     *int64   `json:"author_id,omitempty"`
	Choices      []Choice `json:"choices"`
}

// Choice is one option of a question. IsCorrect is authoritative and never
// leaves the server while an attempt is in progress.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Body       string `json:"body"`
	IsCorrect  bool   `json:"is_correct"`
}

// FindChoice returns the choice with the given id if it belongs to q.
func (q *Question) FindChoice(choiceID int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return c, true
		}
	}
	return Choice{}, false
}
