package consensus

import (
	"math"
	"math/rand"
	"testing"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func okResponse(agent, text string, vote core.Vote, confidence float64) core.AgentResponse {
	return core.AgentResponse{
		AgentID:      agent,
		PositionID:   core.NewPositionID(text),
		PositionText: text,
		Vote:         vote,
		Confidence:   confidence,
		Status:       core.StatusOK,
	}
}

func TestEvaluateAgentRound_Supermajority(t *testing.T) {
	candidate := core.NewPositionID("use a queue")
	responses := []core.AgentResponse{
		okResponse("a1", "use a queue", core.VoteYes, 0.9),
		okResponse("a2", "use a queue", core.VoteYes, 0.8),
		okResponse("a3", "use a stack", core.VoteNo, 0.7),
	}

	d := EvaluateAgentRound(responses, candidate, 0.5)
	if !d.Reached {
		t.Fatal("expected consensus at threshold 0.5")
	}
	if d.Method != core.MethodSupermajority {
		t.Errorf("method = %s, want supermajority", d.Method)
	}
	if d.Tally.Yes != 2 || d.Tally.No != 1 || d.Tally.VotingTotal != 3 {
		t.Errorf("tally = %+v", d.Tally)
	}
	if d.PositionID != candidate || d.PositionText != "use a queue" {
		t.Errorf("position = %q %q", d.PositionID, d.PositionText)
	}
	if want := (0.9 + 0.8) / 2; math.Abs(d.MeanYesConfidence-want) > 1e-12 {
		t.Errorf("mean yes confidence = %v, want %v", d.MeanYesConfidence, want)
	}
}

func TestEvaluateAgentRound_ThresholdNotMet(t *testing.T) {
	// Scenario A round 2: yes=2, no=1, threshold 0.67 → need ceil(3*0.67)=3.
	candidate := core.NewPositionID("p1")
	responses := []core.AgentResponse{
		okResponse("a1", "p1", core.VoteYes, 0.8),
		okResponse("a2", "p1", core.VoteYes, 0.7),
		okResponse("a3", "p3-prime", core.VoteNo, 0.6),
	}

	d := EvaluateAgentRound(responses, candidate, 0.67)
	if d.Reached {
		t.Fatal("2/3 must not reach at threshold 0.67")
	}
	if d.Tally.SupermajorityThreshold != 3 {
		t.Errorf("threshold = %d, want 3", d.Tally.SupermajorityThreshold)
	}
}

func TestEvaluateAgentRound_Unanimous(t *testing.T) {
	candidate := core.NewPositionID("p1")
	responses := []core.AgentResponse{
		okResponse("a1", "p1", core.VoteYes, 0.8),
		okResponse("a2", "p1", core.VoteYes, 0.7),
		okResponse("a3", "p1", core.VoteYes, 0.6),
	}

	d := EvaluateAgentRound(responses, candidate, 0.67)
	if !d.Reached || d.Method != core.MethodUnanimous {
		t.Fatalf("expected unanimous consensus, got %+v", d)
	}
}

func TestEvaluateAgentRound_UnanimityThreshold(t *testing.T) {
	// threshold 1.0 requires yes == votingTotal.
	candidate := core.NewPositionID("p")
	responses := []core.AgentResponse{
		okResponse("a1", "p", core.VoteYes, 0.9),
		okResponse("a2", "p", core.VoteYes, 0.9),
		okResponse("a3", "q", core.VoteNo, 0.9),
	}
	if d := EvaluateAgentRound(responses, candidate, 1.0); d.Reached {
		t.Fatal("2/3 yes must not satisfy unanimity")
	}

	responses[2] = okResponse("a3", "p", core.VoteYes, 0.9)
	if d := EvaluateAgentRound(responses, candidate, 1.0); !d.Reached || d.Method != core.MethodUnanimous {
		t.Fatal("3/3 yes must satisfy unanimity")
	}
}

func TestEvaluateAgentRound_NoCandidate(t *testing.T) {
	responses := []core.AgentResponse{
		okResponse("a1", "p", core.VoteYes, 0.9),
	}
	if d := EvaluateAgentRound(responses, "", 0.5); d.Reached {
		t.Fatal("no candidate can never reach consensus")
	}
}

func TestEvaluateAgentRound_AllAbstain(t *testing.T) {
	responses := []core.AgentResponse{
		okResponse("a1", "p", core.VoteAbstain, 0.9),
		okResponse("a2", "q", core.VoteAbstain, 0.8),
	}
	d := EvaluateAgentRound(responses, core.NewPositionID("p"), 0.5)
	if d.Reached {
		t.Fatal("votingTotal = 0 must never reach")
	}
	if d.Tally.VotingTotal != 0 || d.Tally.Abstain != 2 {
		t.Errorf("tally = %+v", d.Tally)
	}
}

func TestEvaluateAgentRound_ErrorsCountAsAbstain(t *testing.T) {
	candidate := core.NewPositionID("p")
	responses := []core.AgentResponse{
		okResponse("a1", "p", core.VoteYes, 0.9),
		okResponse("a2", "p", core.VoteYes, 0.9),
		core.NewErrorResponse("a3", 2, nil),
	}
	d := EvaluateAgentRound(responses, candidate, 0.67)
	if d.Tally.Abstain != 1 || d.Tally.Eligible != 2 || d.Tally.Total != 3 {
		t.Errorf("tally = %+v", d.Tally)
	}
	if d.Tally.VotingTotal != 2 {
		t.Errorf("votingTotal = %d, want 2", d.Tally.VotingTotal)
	}
	if !d.Reached {
		t.Error("2/2 at 0.67 should reach")
	}
}

func TestEvaluateAgentRound_TallyInvariants(t *testing.T) {
	candidate := core.NewPositionID("p")
	responses := []core.AgentResponse{
		okResponse("a1", "p", core.VoteYes, 0.9),
		okResponse("a2", "q", core.VoteNo, 0.4),
		okResponse("a3", "r", core.VoteAbstain, 0.2),
		core.NewErrorResponse("a4", 2, nil),
	}
	d := EvaluateAgentRound(responses, candidate, 0.67)
	if d.Tally.Total != d.Tally.Yes+d.Tally.No+d.Tally.Abstain {
		t.Errorf("total != yes+no+abstain: %+v", d.Tally)
	}
	if d.Tally.VotingTotal > d.Tally.Eligible {
		t.Errorf("votingTotal > eligible: %+v", d.Tally)
	}
}

func TestSelectCandidate_HighestSupportScore(t *testing.T) {
	// Scenario A round 1: positions with confidences 0.8/0.7/0.6; head is P1.
	responses := []core.AgentResponse{
		okResponse("a1", "P1", core.VoteAbstain, 0.8),
		okResponse("a2", "P2", core.VoteAbstain, 0.7),
		okResponse("a3", "P3", core.VoteAbstain, 0.6),
	}
	c := SelectCandidate(responses)
	if c == nil {
		t.Fatal("expected a candidate")
	}
	if c.ID != core.NewPositionID("P1") {
		t.Errorf("candidate = %s, want ID(P1)", c.ID)
	}
	if c.SupportScore != 0.8 || c.SupporterCount != 1 {
		t.Errorf("candidate = %+v", c)
	}
}

func TestSelectCandidate_SupporterCountTieBreak(t *testing.T) {
	responses := []core.AgentResponse{
		okResponse("a1", "alpha", core.VoteAbstain, 0.5),
		okResponse("a2", "alpha", core.VoteAbstain, 0.5),
		okResponse("a3", "beta", core.VoteAbstain, 1.0),
	}
	c := SelectCandidate(responses)
	if c == nil {
		t.Fatal("expected a candidate")
	}
	// Equal score 1.0; alpha has two supporters.
	if c.ID != core.NewPositionID("alpha") {
		t.Errorf("candidate = %s, want alpha", c.ID)
	}
}

func TestSelectCandidate_LexTieBreak(t *testing.T) {
	texts := []string{"one", "two", "three"}
	responses := make([]core.AgentResponse, 0, len(texts))
	for i, text := range texts {
		responses = append(responses, okResponse(string(rune('a'+i)), text, core.VoteAbstain, 0.5))
	}
	c := SelectCandidate(responses)
	if c == nil {
		t.Fatal("expected a candidate")
	}
	// All tied on score and count; lowest position ID wins.
	lowest := responses[0].PositionID
	for _, r := range responses[1:] {
		if r.PositionID < lowest {
			lowest = r.PositionID
		}
	}
	if c.ID != lowest {
		t.Errorf("candidate = %s, want lexicographically lowest %s", c.ID, lowest)
	}
}

func TestSelectCandidate_OrderIndependent(t *testing.T) {
	responses := []core.AgentResponse{
		okResponse("a1", "x", core.VoteAbstain, 0.4),
		okResponse("a2", "y", core.VoteAbstain, 0.4),
		okResponse("a3", "z", core.VoteAbstain, 0.4),
		okResponse("a4", "y", core.VoteAbstain, 0.1),
	}
	want := SelectCandidate(responses)
	if want == nil {
		t.Fatal("expected a candidate")
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]core.AgentResponse, len(responses))
		copy(shuffled, responses)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := SelectCandidate(shuffled)
		if got == nil || got.ID != want.ID || got.Text != want.Text {
			t.Fatalf("shuffle %d changed selection: %+v vs %+v", i, got, want)
		}
	}
}

func TestSelectCandidate_NoEligible(t *testing.T) {
	responses := []core.AgentResponse{
		core.NewErrorResponse("a1", 1, nil),
		core.NewErrorResponse("a2", 1, nil),
	}
	if c := SelectCandidate(responses); c != nil {
		t.Errorf("expected nil candidate, got %+v", c)
	}
	if c := SelectCandidate(nil); c != nil {
		t.Errorf("expected nil candidate for empty input, got %+v", c)
	}
}
