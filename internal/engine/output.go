package engine

import (
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// DebateOutput is the primary output document: the structured, auditable
// record of the whole session.
type DebateOutput struct {
	Version      string             `json:"version"`
	Session      OutputSession      `json:"session"`
	AgentDebate  OutputAgentDebate  `json:"agentDebate"`
	JudgePanel   OutputJudgePanel   `json:"judgePanel"`
	FinalVerdict *core.FinalVerdict `json:"finalVerdict"`
}

// OutputSession summarizes the session header and counters.
type OutputSession struct {
	ID            string  `json:"id"`
	Topic         string  `json:"topic"`
	InitialQuery  *string `json:"initialQuery"`
	Phase         string  `json:"phase"`
	StartedAt     string  `json:"startedAt"`
	CompletedAt   *string `json:"completedAt"`
	TotalTokens   int     `json:"totalTokens"`
	TotalCostUsd  float64 `json:"totalCostUsd"`
	PricingKnown  bool    `json:"pricingKnown"`
	EngineVersion string  `json:"engineVersion"`
	TotalRetries  int     `json:"totalRetries"`
	TotalErrors   int     `json:"totalErrors"`
}

// OutputAgentDebate carries the agent rounds and the converged position if
// any.
type OutputAgentDebate struct {
	Rounds            []core.RoundResult `json:"rounds"`
	FinalPositionID   *string            `json:"finalPositionId"`
	FinalPositionText *string            `json:"finalPositionText"`
}

// OutputJudgePanel carries the judge rounds and the panel's final call.
type OutputJudgePanel struct {
	Enabled bool                    `json:"enabled"`
	Rounds  []core.JudgeRoundResult `json:"rounds"`
	Final   *OutputJudgeFinal       `json:"final"`
}

// OutputJudgeFinal is the panel's consensus summary.
type OutputJudgeFinal struct {
	ConsensusPositionID   string   `json:"consensusPositionId"`
	ConsensusPositionText string   `json:"consensusPositionText"`
	ConsensusConfidence   float64  `json:"consensusConfidence"`
	Dissents              []string `json:"dissents"`
}

// timeLayout is RFC 3339 with millisecond precision in UTC.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// BuildOutput assembles the output document from a finished session.
func BuildOutput(session *core.DebateSession, judgePanelEnabled bool) *DebateOutput {
	out := &DebateOutput{
		Version: core.SpecVersion,
		Session: OutputSession{
			ID:            session.ID,
			Topic:         session.Topic,
			Phase:         session.Phase.String(),
			StartedAt:     session.Metadata.StartedAt.UTC().Format(timeLayout),
			TotalTokens:   session.Metadata.TotalTokens,
			TotalCostUsd:  session.Metadata.TotalCostUsd,
			PricingKnown:  session.Metadata.PricingKnown,
			EngineVersion: session.Metadata.EngineVersion,
			TotalRetries:  session.Metadata.TotalRetries,
			TotalErrors:   session.Metadata.TotalErrors,
		},
		AgentDebate: OutputAgentDebate{Rounds: session.AgentRounds},
		JudgePanel:  OutputJudgePanel{Enabled: judgePanelEnabled, Rounds: session.JudgeRounds},
	}

	if session.InitialQuery != "" {
		q := session.InitialQuery
		out.Session.InitialQuery = &q
	}
	if session.Metadata.CompletedAt != nil {
		ts := session.Metadata.CompletedAt.UTC().Format(timeLayout)
		out.Session.CompletedAt = &ts
	}

	for _, round := range session.AgentRounds {
		if round.ConsensusReached {
			id, text := round.ConsensusPositionID, round.ConsensusPositionText
			out.AgentDebate.FinalPositionID = &id
			out.AgentDebate.FinalPositionText = &text
		}
	}

	for _, round := range session.JudgeRounds {
		if round.ConsensusReached {
			out.JudgePanel.Final = &OutputJudgeFinal{
				ConsensusPositionID:   round.ConsensusPositionID,
				ConsensusPositionText: round.ConsensusPositionText,
				ConsensusConfidence:   round.ConsensusConfidence,
				Dissents:              round.Dissents,
			}
		}
	}

	out.FinalVerdict = session.FinalVerdict
	return out
}
