package core

// ContextTopology selects how much debate history each participant sees.
type ContextTopology string

const (
	// TopologyFullHistory renders every prior round.
	TopologyFullHistory ContextTopology = "full_history"

	// TopologyLastRound renders only the previous round.
	TopologyLastRound ContextTopology = "last_round"

	// TopologyLastRoundWithSelf is the default: the previous round's
	// non-self responses plus every prior response by this same agent.
	TopologyLastRoundWithSelf ContextTopology = "last_round_with_self"

	// TopologySummary is recognized but rejected at config validation:
	// summary generation is not implemented, and silently degrading to
	// last_round would misrepresent the configuration.
	TopologySummary ContextTopology = "summary"
)

// ValidTopology reports whether the topology is one a round can run with.
func ValidTopology(t ContextTopology) bool {
	switch t {
	case TopologyFullHistory, TopologyLastRound, TopologyLastRoundWithSelf:
		return true
	default:
		return false
	}
}
