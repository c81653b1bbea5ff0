package core

import "fmt"

// Phase represents a stage in the debate lifecycle.
type Phase string

const (
	// PhaseInit is the state of a freshly created session before any round runs.
	PhaseInit Phase = "init"

	// PhaseAgentDebate is the main loop where agents argue positions
	// across bounded rounds.
	PhaseAgentDebate Phase = "agent_debate"

	// PhaseJudgeEvaluation is entered when agents fail to converge and a
	// judge panel votes on the surviving positions.
	PhaseJudgeEvaluation Phase = "judge_evaluation"

	// PhaseConsensusReached is the terminal state after either phase
	// produced a consensus verdict.
	PhaseConsensusReached Phase = "consensus_reached"

	// PhaseDeadlock is the terminal state when the round budgets were
	// exhausted without consensus. Deadlock is a legitimate outcome, not
	// an error.
	PhaseDeadlock Phase = "deadlock"
)

// legalTransitions is the complete phase DAG. Any edge not listed here is a
// programmer error and must abort the process.
var legalTransitions = map[Phase][]Phase{
	PhaseInit:            {PhaseAgentDebate},
	PhaseAgentDebate:     {PhaseConsensusReached, PhaseJudgeEvaluation, PhaseDeadlock},
	PhaseJudgeEvaluation: {PhaseConsensusReached, PhaseDeadlock},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Phase) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase is a terminal state.
func (p Phase) Terminal() bool {
	return p == PhaseConsensusReached || p == PhaseDeadlock
}

// ValidPhase checks if a phase string is valid.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseInit, PhaseAgentDebate, PhaseJudgeEvaluation, PhaseConsensusReached, PhaseDeadlock:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Description returns a human-readable description of the phase.
func (p Phase) Description() string {
	switch p {
	case PhaseInit:
		return "Session created, no round executed yet"
	case PhaseAgentDebate:
		return "Agents argue positions across bounded rounds"
	case PhaseJudgeEvaluation:
		return "Judge panel evaluates surviving positions"
	case PhaseConsensusReached:
		return "A consensus verdict was produced"
	case PhaseDeadlock:
		return "Round budgets exhausted without consensus"
	default:
		return "Unknown phase"
	}
}
