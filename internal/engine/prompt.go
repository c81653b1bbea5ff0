package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/consensus"
	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

// truncationMarker replaces the elided middle of an oversized history.
const truncationMarker = "\n[...truncated...]\n"

// PromptBuilder renders system and user prompts for agents and judges.
type PromptBuilder struct {
	Topic           string
	InitialQuery    string
	Topology        core.ContextTopology
	MaxContextChars int // maxContextTokens * 4, the character approximation
}

const agentSchemaContract = `Respond with a single JSON object and nothing else:
{
  "vote": "yes" | "no" | "abstain",
  "targetPositionId": "<candidate position id, required for yes>",
  "newPositionText": "<your position text, required for no and for opening statements>",
  "reasoning": "<why, 1-8000 characters>",
  "confidence": <number between 0 and 1>
}`

const judgeSchemaContract = `Respond with a single JSON object and nothing else:
{
  "selectedPositionId": "<id of the position you endorse>",
  "scores": { "<positionId>": <integer 0-100>, ... every position listed },
  "reasoning": "<why, 1-8000 characters>",
  "confidence": <number between 0 and 1>
}`

// AgentSystemPrompt renders the fixed per-agent system prompt.
func (b *PromptBuilder) AgentSystemPrompt(agentID, custom string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are debate participant %q.\n", agentID)
	fmt.Fprintf(&sb, "Topic: %s\n", b.Topic)
	if b.InitialQuery != "" {
		fmt.Fprintf(&sb, "Initial query: %s\n", b.InitialQuery)
	}
	sb.WriteString("You argue for the position you find most defensible, vote on candidate positions, and concede when a better position convinces you.\n")
	if custom != "" {
		sb.WriteString(custom)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(agentSchemaContract)
	return sb.String()
}

// AgentUserPrompt renders the per-round user prompt. Round 1 solicits an
// opening abstention with a fresh position; later rounds put the candidate
// up for a vote with a history view.
func (b *PromptBuilder) AgentUserPrompt(round int, candidate *consensus.Candidate, history []core.RoundResult, selfID string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Round %d.\n", round)

	if round == 1 || candidate == nil {
		sb.WriteString("This is an opening round: set \"vote\" to \"abstain\", state your initial position in \"newPositionText\", and explain it in \"reasoning\" with a confidence.\n")
	} else {
		fmt.Fprintf(&sb, "Candidate position %s:\n%s\n\n", candidate.ID, candidate.Text)
		sb.WriteString("Vote \"yes\" with \"targetPositionId\" set to the candidate id above to support it, or \"no\" with a \"newPositionText\" counter-position, or \"abstain\".\n")
	}

	if rendered := b.renderHistory(history, selfID); rendered != "" {
		sb.WriteString("\nDebate so far:\n")
		sb.WriteString(rendered)
	}
	return sb.String()
}

// JudgeSystemPrompt renders the fixed per-judge system prompt.
func (b *PromptBuilder) JudgeSystemPrompt(judgeID string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are debate judge %q.\n", judgeID)
	fmt.Fprintf(&sb, "Topic: %s\n", b.Topic)
	if b.InitialQuery != "" {
		fmt.Fprintf(&sb, "Initial query: %s\n", b.InitialQuery)
	}
	sb.WriteString("The debating agents failed to converge. Score every surviving position and select the strongest.\n\n")
	sb.WriteString(judgeSchemaContract)
	return sb.String()
}

// JudgeUserPrompt renders the positions set for a judge round. Positions
// are listed in ascending ID order so every judge sees the same document.
func (b *PromptBuilder) JudgeUserPrompt(round int, positions []core.PositionRef) string {
	ordered := make([]core.PositionRef, len(positions))
	copy(ordered, positions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Judge round %d. Positions under evaluation:\n\n", round)
	for _, p := range ordered {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", p.ID, p.Text)
	}
	sb.WriteString("Score every position 0-100 and select the one you endorse.\n")
	return sb.String()
}

// renderHistory renders prior rounds according to the context topology and
// elides the middle when the character budget is exceeded.
func (b *PromptBuilder) renderHistory(history []core.RoundResult, selfID string) string {
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	switch b.Topology {
	case core.TopologyFullHistory:
		for _, round := range history {
			renderRound(&sb, round, nil)
		}
	case core.TopologyLastRound:
		renderRound(&sb, history[len(history)-1], nil)
	default: // last_round_with_self
		last := len(history) - 1
		for i, round := range history {
			if i == last {
				// The previous round contributes only non-self responses.
				renderRound(&sb, round, func(r core.AgentResponse) bool { return r.AgentID != selfID })
				continue
			}
			// Earlier rounds contribute only this agent's own responses.
			renderRound(&sb, round, func(r core.AgentResponse) bool { return r.AgentID == selfID })
		}
	}

	return truncateMiddle(sb.String(), b.MaxContextChars)
}

// renderRound writes one round; filter nil renders every response.
func renderRound(sb *strings.Builder, round core.RoundResult, filter func(core.AgentResponse) bool) {
	header := false
	for _, resp := range round.Responses {
		if filter != nil && !filter(resp) {
			continue
		}
		if !header {
			if round.CandidatePositionID != "" {
				fmt.Fprintf(sb, "Round %d (candidate %s):\n", round.RoundNumber, round.CandidatePositionID)
			} else {
				fmt.Fprintf(sb, "Round %d:\n", round.RoundNumber)
			}
			header = true
		}
		if resp.Status == core.StatusError {
			fmt.Fprintf(sb, "- %s: no response (error)\n", resp.AgentID)
			continue
		}
		fmt.Fprintf(sb, "- %s voted %s", resp.AgentID, resp.Vote)
		if resp.PositionID != "" {
			fmt.Fprintf(sb, " on position %s: %s", resp.PositionID, resp.PositionText)
		}
		fmt.Fprintf(sb, " (confidence %.2f)", resp.Confidence)
		if resp.Reasoning != "" {
			fmt.Fprintf(sb, ": %s", resp.Reasoning)
		}
		sb.WriteString("\n")
	}
}

// truncateMiddle elides the middle of an oversized rendering, preserving
// head and tail around the marker.
func truncateMiddle(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	keep := max - len(truncationMarker)
	if keep <= 1 {
		return s[:max]
	}
	head := keep / 2
	tail := keep - head
	return s[:head] + truncationMarker + s[len(s)-tail:]
}
