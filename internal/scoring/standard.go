package scoring

import (
	"math"

	"github.com/stemsi/exstem-session/internal/model"
)

// SecondsPerQuestion is the per-question time budget used for the time bonus
// when the caller does not supply one.
const SecondsPerQuestion = 60

// Standard scores counts under weighted/multiplier rules.
//
// budget overrides the totalQuestions*SecondsPerQuestion time budget when
// non-nil. quizPassing applies unless the policy carries its own passing
// score.
func Standard(p model.StandardParams, c model.AnswerCounts, timeSpent int, budget *int, quizPassing float64) model.ScoreResult {
	b := &model.ScoreBreakdown{
		CorrectPoints:     float64(c.Correct) * p.PointsPerCorrect,
		IncorrectPenalty:  float64(c.Incorrect) * p.PenaltyPerIncorrect,
		UnansweredPenalty: float64(c.Unanswered) * p.PenaltyPerUnanswered,
		FlatBonus:         p.FlatBonus,
		TimeBonusEnabled:  p.TimeBonusEnabled,
		TimeSpentSeconds:  timeSpent,
		Multiplier:        p.Multiplier,
		MinScore:          p.MinScore,
		MaxScore:          p.MaxScore,
	}
	b.BasePoints = b.CorrectPoints - b.IncorrectPenalty - b.UnansweredPenalty + b.FlatBonus

	b.TimeBudgetSeconds = c.Total * SecondsPerQuestion
	if budget != nil {
		b.TimeBudgetSeconds = *budget
	}
	if p.TimeBonusEnabled {
		if saved := b.TimeBudgetSeconds - timeSpent; saved > 0 {
			b.SecondsSaved = saved
		}
		b.TimeBonus = float64(b.SecondsSaved) * p.BonusPerSecondSaved
	}

	b.UnclampedScore = (b.BasePoints + b.TimeBonus) * p.Multiplier
	final := b.UnclampedScore
	if p.MinScore != nil && final < *p.MinScore {
		final = *p.MinScore
	}
	if p.MaxScore != nil && final > *p.MaxScore {
		final = *p.MaxScore
	}
	final = math.Max(final, 0)
	b.Clamped = final != b.UnclampedScore

	maxPossible := float64(c.Total) * p.PointsPerCorrect * p.Multiplier
	if p.MaxScore != nil {
		maxPossible = *p.MaxScore
	}

	var percentage float64
	if maxPossible > 0 {
		percentage = final / maxPossible * 100
	}

	b.PassingScore = quizPassing
	if p.PassingScore != nil {
		b.PassingScore = *p.PassingScore
		b.PassingOverride = true
	}

	return model.ScoreResult{
		Mode:             model.ScoringModeStandard,
		Score:            final,
		Percentage:       percentage,
		Passed:           final >= b.PassingScore,
		MaxPossibleScore: maxPossible,
		Counts:           c,
		Breakdown:        b,
	}
}
