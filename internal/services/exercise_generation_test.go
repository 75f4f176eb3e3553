package services

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/studyos-backend/internal/types"
)

type fixedAI struct {
	response string
	err      error
}

func (f *fixedAI) Chat(context.Context, []AIMessage, *AIOptions) (string, error) {
	return f.response, f.err
}

func testConcept() *types.ConceptNode {
	formula := "F = ma"
	return &types.ConceptNode{
		ID:          "ch1_node_1",
		Title:       "Newton's Second Law",
		Description: "Force equals mass times acceleration.",
		Formula:     &formula,
		Variables:   []types.Variable{{Symbol: "F", Meaning: "Net force", Unit: "N"}},
		KeyPoints:   []string{"Force is a vector"},
	}
}

func TestGenerateForConcept(t *testing.T) {
	ai := &fixedAI{response: `{"exercises":[
		{"question":"A 2kg mass accelerates at 3 m/s2. What is the net force?","type":"numeric","answer":"6","tolerance":0.1,"hint":"Use F = ma","solution":"F = 2 * 3 = 6 N","difficulty":2},
		{"question":"Which quantity is a vector?","type":"multiple_choice","answer":"Force","options":["Mass","Force","Time","Temperature"],"difficulty":1},
		{"question":"Acceleration is always parallel to net force.","type":"true_false","answer":"True","difficulty":3}
	]}`}
	svc := NewExerciseGenerationService(testLogger(t), ai)

	exercises, err := svc.GenerateForConcept(context.Background(), testConcept())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exercises) != 3 {
		t.Fatalf("expected 3 exercises, got %d", len(exercises))
	}

	numeric := exercises[0]
	if numeric.Type != "numeric" || numeric.Tolerance == nil || *numeric.Tolerance != 0.1 {
		t.Fatalf("numeric exercise wrong: %+v", numeric)
	}
	if numeric.ID == "" {
		t.Fatalf("exercise id missing")
	}

	mc := exercises[1]
	if mc.Type != "multiple_choice" || len(mc.Options) != 4 {
		t.Fatalf("multiple choice wrong: %+v", mc)
	}
	if mc.Tolerance != nil {
		t.Fatalf("tolerance must be numeric-only")
	}
	if mc.Hint != "Review the concept description and try again." {
		t.Fatalf("missing hint not defaulted: %q", mc.Hint)
	}

	tf := exercises[2]
	if tf.Type != "true_false" || tf.Answer != "true" {
		t.Fatalf("true/false answer not normalized: %+v", tf)
	}
}

func TestGenerateForConceptDropsMalformed(t *testing.T) {
	ai := &fixedAI{response: `{"exercises":[
		{"question":"","type":"numeric","answer":"6"},
		{"question":"Pick one","type":"multiple_choice","answer":"A","options":["A"]},
		{"question":"Is it?","type":"true_false","answer":"maybe"},
		{"question":"Unknown kind becomes numeric","type":"essay","answer":"42","difficulty":9}
	]}`}
	svc := NewExerciseGenerationService(testLogger(t), ai)

	exercises, err := svc.GenerateForConcept(context.Background(), testConcept())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exercises) != 1 {
		t.Fatalf("expected only the salvageable exercise, got %d", len(exercises))
	}
	if exercises[0].Type != "numeric" || exercises[0].Difficulty != 5 {
		t.Fatalf("type fallback or difficulty clamp wrong: %+v", exercises[0])
	}
}

func TestGenerateForConceptAllMalformed(t *testing.T) {
	ai := &fixedAI{response: `{"exercises":[{"question":"","answer":""}]}`}
	svc := NewExerciseGenerationService(testLogger(t), ai)

	_, err := svc.GenerateForConcept(context.Background(), testConcept())
	if !errors.Is(err, ErrUnparsableOutput) {
		t.Fatalf("expected ErrUnparsableOutput, got %v", err)
	}
}

func TestGenerateForConceptNilConcept(t *testing.T) {
	svc := NewExerciseGenerationService(testLogger(t), &fixedAI{})
	if _, err := svc.GenerateForConcept(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
