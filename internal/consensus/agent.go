// Package consensus implements the vote tally, candidate selection and
// judge majority rules. All aggregation is deterministic: sort-based
// selections tie-break on lexicographic position ID so the outcome is
// invariant to response arrival order.
package consensus

import (
	"math"
	"sort"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// AgentDecision is the outcome of evaluating one agent round.
type AgentDecision struct {
	Tally             core.VoteTally
	Reached           bool
	Method            core.ConsensusMethod
	PositionID        string
	PositionText      string
	MeanYesConfidence float64
}

// EvaluateAgentRound applies the supermajority rule to a round's responses.
// Yes votes count only when the response targets the round's candidate; a
// yes aimed elsewhere is treated as an abstention, as are error responses.
// A nil candidate or an all-abstain round can never reach consensus.
func EvaluateAgentRound(responses []core.AgentResponse, candidateID string, threshold float64) AgentDecision {
	var d AgentDecision

	yesConfidenceSum := 0.0
	positionText := ""
	for _, r := range responses {
		d.Tally.Total++
		if !r.Eligible() {
			d.Tally.Abstain++
			continue
		}
		d.Tally.Eligible++
		switch {
		case r.Vote == core.VoteYes && candidateID != "" && r.PositionID == candidateID:
			d.Tally.Yes++
			yesConfidenceSum += r.Confidence
			if positionText == "" {
				positionText = r.PositionText
			}
		case r.Vote == core.VoteNo:
			d.Tally.No++
		default:
			d.Tally.Abstain++
		}
	}

	d.Tally.VotingTotal = d.Tally.Yes + d.Tally.No
	if candidateID == "" || d.Tally.VotingTotal == 0 {
		return d
	}

	d.Tally.SupermajorityThreshold = int(math.Ceil(float64(d.Tally.VotingTotal) * threshold))
	if d.Tally.Yes < d.Tally.SupermajorityThreshold {
		return d
	}

	d.Tally.SupermajorityReached = true
	d.Reached = true
	d.PositionID = candidateID
	d.PositionText = positionText
	d.MeanYesConfidence = yesConfidenceSum / float64(d.Tally.Yes)
	if d.Tally.Yes == d.Tally.VotingTotal {
		d.Method = core.MethodUnanimous
	} else {
		d.Method = core.MethodSupermajority
	}
	return d
}

// Candidate is a position proposed for the next round's vote.
type Candidate struct {
	ID             string
	Text           string
	SupportScore   float64
	SupporterCount int
}

// SelectCandidate picks the next round's candidate from eligible
// position-carrying responses: highest summed confidence, then supporter
// count, then ascending position ID. Opening-round abstentions carry the
// initial positions and therefore participate; error responses and
// positionless abstentions do not. Returns nil when nothing qualifies; the
// orchestrator then runs the next round candidate-less, like round 1.
func SelectCandidate(responses []core.AgentResponse) *Candidate {
	byID := make(map[string]*Candidate)
	for _, r := range responses {
		if !r.Eligible() || r.PositionID == "" {
			continue
		}
		c, ok := byID[r.PositionID]
		if !ok {
			c = &Candidate{ID: r.PositionID, Text: r.PositionText}
			byID[r.PositionID] = c
		}
		c.SupportScore += r.Confidence
		c.SupporterCount++
	}
	if len(byID) == 0 {
		return nil
	}

	candidates := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SupportScore != candidates[j].SupportScore {
			return candidates[i].SupportScore > candidates[j].SupportScore
		}
		if candidates[i].SupporterCount != candidates[j].SupporterCount {
			return candidates[i].SupporterCount > candidates[j].SupporterCount
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}
