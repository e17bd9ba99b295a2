package scoring

import (
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Tally counts correct, incorrect and unanswered questions of an answer set.
// Answers are compared trimmed and case-insensitively; a blank answer counts
// as unanswered; when a question is answered more than once the last answer
// wins. Every answer must reference a question of the bank.
func Tally(quizID uuid.UUID, answers []model.SubmittedAnswer, bank []model.QuestionKey) (model.AnswerCounts, error) {
	correctByID := make(map[uuid.UUID]string, len(bank))
	for _, q := range bank {
		correctByID[q.ID] = normalizeAnswer(q.CorrectAnswer)
	}

	latest := make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		if _, ok := correctByID[a.QuestionID]; !ok {
			return model.AnswerCounts{}, &IntegrityError{QuizID: quizID, QuestionID: a.QuestionID}
		}
		latest[a.QuestionID] = normalizeAnswer(a.Answer)
	}

	counts := model.AnswerCounts{Total: len(correctByID)}
	answered := 0
	for qID, given := range latest {
		if given == "" {
			continue
		}
		answered++
		if given == correctByID[qID] {
			counts.Correct++
		} else {
			counts.Incorrect++
		}
	}
	counts.Unanswered = counts.Total - answered
	return counts, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
