package consensus

import (
	"math"
	"testing"

	"github.com/hugo-lorenzo-mato/agora-ai/internal/core"
)

func eval(judge, position string, confidence float64) core.JudgeEvaluation {
	return core.JudgeEvaluation{
		JudgeID:            judge,
		SelectedPositionID: position,
		Confidence:         confidence,
		Status:             core.StatusOK,
	}
}

func TestEvaluateJudgeRound_Reached(t *testing.T) {
	// Scenario B: votes A,A,B with confidences 0.9/0.8/0.7, threshold 0.6,
	// minConfidence 0.7 → winner A, 2 >= ceil(3*0.6)=2, mean 0.85 → reached.
	evals := []core.JudgeEvaluation{
		eval("j1", "aaa", 0.9),
		eval("j2", "aaa", 0.8),
		eval("j3", "bbb", 0.7),
	}
	d := EvaluateJudgeRound(evals, 0.6, 0.7)
	if !d.Reached {
		t.Fatalf("expected consensus, got %+v", d)
	}
	if d.PositionID != "aaa" || d.WinnerVotes != 2 || d.RequiredVotes != 2 {
		t.Errorf("decision = %+v", d)
	}
	if math.Abs(d.Confidence-0.85) > 1e-12 {
		t.Errorf("confidence = %v, want 0.85", d.Confidence)
	}
	if len(d.Dissents) != 1 || d.Dissents[0] != "j3" {
		t.Errorf("dissents = %v", d.Dissents)
	}
}

func TestEvaluateJudgeRound_LowConfidence(t *testing.T) {
	// Scenario C: A,B,A with confidences 0.6/0.6/0.5 → mean(A)=0.55 < 0.7.
	evals := []core.JudgeEvaluation{
		eval("j1", "aaa", 0.6),
		eval("j2", "bbb", 0.6),
		eval("j3", "aaa", 0.5),
	}
	d := EvaluateJudgeRound(evals, 0.6, 0.7)
	if d.Reached {
		t.Fatal("mean confidence below floor must not reach")
	}
	if d.PositionID != "aaa" {
		t.Errorf("winner = %s, want aaa", d.PositionID)
	}
	if math.Abs(d.Confidence-0.55) > 1e-12 {
		t.Errorf("confidence = %v, want computed 0.55", d.Confidence)
	}
}

func TestEvaluateJudgeRound_BelowRequiredVotes(t *testing.T) {
	evals := []core.JudgeEvaluation{
		eval("j1", "aaa", 0.9),
		eval("j2", "bbb", 0.9),
		eval("j3", "ccc", 0.9),
	}
	d := EvaluateJudgeRound(evals, 0.6, 0.5)
	if d.Reached {
		t.Fatal("1 vote each cannot meet required 2")
	}
	if d.Confidence != 0 {
		t.Errorf("informational winner must carry zero confidence, got %v", d.Confidence)
	}
	if d.PositionID != "aaa" {
		// All tied at one vote and equal confidence: lexicographic winner.
		t.Errorf("winner = %s, want aaa", d.PositionID)
	}
	if len(d.Dissents) != 2 {
		t.Errorf("dissents = %v", d.Dissents)
	}
}

func TestEvaluateJudgeRound_CountTieBreaksOnConfidence(t *testing.T) {
	evals := []core.JudgeEvaluation{
		eval("j1", "aaa", 0.5),
		eval("j2", "aaa", 0.5),
		eval("j3", "zzz", 0.9),
		eval("j4", "zzz", 0.9),
	}
	d := EvaluateJudgeRound(evals, 0.5, 0.0)
	if d.PositionID != "zzz" {
		t.Errorf("winner = %s, want zzz (higher mean confidence)", d.PositionID)
	}
}

func TestEvaluateJudgeRound_FullTieFallsBackToLex(t *testing.T) {
	evals := []core.JudgeEvaluation{
		eval("j1", "bbb", 0.5),
		eval("j2", "aaa", 0.5),
	}
	d := EvaluateJudgeRound(evals, 0.5, 0.0)
	if d.PositionID != "aaa" {
		t.Errorf("winner = %s, want aaa (lex fallback)", d.PositionID)
	}
}

func TestEvaluateJudgeRound_IgnoresErrorsAndUnselected(t *testing.T) {
	evals := []core.JudgeEvaluation{
		eval("j1", "aaa", 0.9),
		eval("j2", "aaa", 0.9),
		core.NewErrorEvaluation("j3", 1, nil),
		{JudgeID: "j4", Status: core.StatusOK}, // no selection
	}
	d := EvaluateJudgeRound(evals, 0.6, 0.5)
	if d.EligibleCount != 2 {
		t.Errorf("eligible = %d, want 2", d.EligibleCount)
	}
	if !d.Reached {
		t.Error("2/2 should reach at 0.6")
	}
}

func TestEvaluateJudgeRound_NoEligible(t *testing.T) {
	d := EvaluateJudgeRound([]core.JudgeEvaluation{
		core.NewErrorEvaluation("j1", 1, nil),
	}, 0.6, 0.5)
	if d.Reached || d.PositionID != "" {
		t.Errorf("expected empty decision, got %+v", d)
	}
}
