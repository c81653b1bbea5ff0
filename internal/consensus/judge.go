package consensus

import (
	"math"
	"sort"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// JudgeDecision is the outcome of evaluating one judge round.
type JudgeDecision struct {
	Reached       bool
	PositionID    string  // plurality winner, informational even when not reached
	Confidence    float64 // zero unless the winner met the vote requirement
	RequiredVotes int
	WinnerVotes   int
	Dissents      []string // judge IDs that voted for another position
	EligibleCount int

	// WinnerMeanConfidence is always the mean confidence of the winner's
	// voters, even when the decision was not reached. Deadlock verdicts
	// report it.
	WinnerMeanConfidence float64
}

// EvaluateJudgeRound applies the plurality + confidence rule. Positions are
// scanned in lexicographic order so the winner is deterministic; count ties
// break on the higher mean confidence of the tied position's voters, with
// lexicographic order as the final fallback.
func EvaluateJudgeRound(evals []core.JudgeEvaluation, majorityThreshold, minConfidence float64) JudgeDecision {
	var d JudgeDecision

	votes := make(map[string][]core.JudgeEvaluation)
	for _, e := range evals {
		if !e.Eligible() {
			continue
		}
		d.EligibleCount++
		votes[e.SelectedPositionID] = append(votes[e.SelectedPositionID], e)
	}
	if d.EligibleCount == 0 {
		return d
	}

	d.RequiredVotes = int(math.Ceil(float64(d.EligibleCount) * majorityThreshold))

	ids := make([]string, 0, len(votes))
	for id := range votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	winner := ""
	winnerCount := 0
	winnerMean := 0.0
	for _, id := range ids {
		count := len(votes[id])
		mean := meanConfidence(votes[id])
		switch {
		case count > winnerCount:
		case count == winnerCount && mean > winnerMean:
		default:
			continue
		}
		winner = id
		winnerCount = count
		winnerMean = mean
	}

	d.PositionID = winner
	d.WinnerVotes = winnerCount
	d.WinnerMeanConfidence = winnerMean
	for _, e := range evals {
		if e.Eligible() && e.SelectedPositionID != winner {
			d.Dissents = append(d.Dissents, e.JudgeID)
		}
	}

	if winnerCount < d.RequiredVotes {
		// Not reached; winner reported for information with zero confidence.
		d.Confidence = 0
		return d
	}

	d.Confidence = winnerMean
	if winnerMean < minConfidence {
		return d
	}

	d.Reached = true
	return d
}

func meanConfidence(evals []core.JudgeEvaluation) float64 {
	if len(evals) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range evals {
		sum += e.Confidence
	}
	return sum / float64(len(evals))
}
