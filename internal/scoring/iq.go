package scoring

import (
	"sort"

	"github.com/stemsi/exstem-session/internal/model"
)

// Category returns the fixed IQ band for score.
func Category(score float64) model.IQCategory {
	switch {
	case score >= 130:
		return model.IQCategoryGifted
	case score >= 120:
		return model.IQCategorySuperior
	case score >= 110:
		return model.IQCategoryHighAverage
	case score >= 90:
		return model.IQCategoryAverage
	case score >= 80:
		return model.IQCategoryLowAverage
	default:
		return model.IQCategoryBorderline
	}
}

// IQ scores counts by looking up the correct-answer count in the policy
// table. Borderline always fails; no passing score applies in this mode.
func IQ(p model.IQParams, c model.AnswerCounts) (model.ScoreResult, error) {
	entry, fallback, err := lookup(p.Table, c.Correct)
	if err != nil {
		return model.ScoreResult{}, err
	}

	category := Category(entry.Score)
	maxPossible := entry.Score
	for _, e := range p.Table {
		if e.Score > maxPossible {
			maxPossible = e.Score
		}
	}

	var percentage float64
	if c.Total > 0 {
		percentage = float64(c.Correct) / float64(c.Total) * 100
	}

	return model.ScoreResult{
		Mode:             model.ScoringModeIQ,
		Score:            entry.Score,
		Percentage:       percentage,
		Passed:           category != model.IQCategoryBorderline,
		MaxPossibleScore: maxPossible,
		Counts:           c,
		IQ: &model.IQOutcome{
			CorrectCount: c.Correct,
			LookupCount:  entry.CorrectCount,
			RawScore:     entry.Score,
			Category:     category,
			FallbackUsed: fallback,
		},
	}, nil
}

// lookup finds the entry for correct. Counts above the table use the highest
// entry, counts below it the lowest, and gaps the nearest lower entry.
func lookup(table []model.IQTableEntry, correct int) (model.IQTableEntry, bool, error) {
	if len(table) == 0 {
		return model.IQTableEntry{}, false, ErrInvalidPolicy
	}

	sorted := make([]model.IQTableEntry, len(table))
	copy(sorted, table)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CorrectCount < sorted[j].CorrectCount })

	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].CorrectCount > correct }) - 1
	if idx < 0 {
		return sorted[0], true, nil
	}
	return sorted[idx], sorted[idx].CorrectCount != correct, nil
}
