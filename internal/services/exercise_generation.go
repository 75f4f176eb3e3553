package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/types"
	"github.com/yungbote/studyos-backend/internal/utils"
)

const exercisePrompt = `You are an expert tutor creating practice exercises for a single concept from a knowledge graph.

Generate EXACTLY 3 exercises for the concept described by the user. Vary the difficulty: one easy, one medium, one hard.

Allowed exercise types:
- "numeric": a calculation with a single numeric answer. Include "tolerance" (acceptable absolute error).
- "multiple_choice": 4 options, exactly one correct. "answer" is the correct option text.
- "true_false": a statement to judge. "answer" is "true" or "false".

Return ONLY valid JSON in this exact shape:
{
  "exercises": [
    {
      "question": "...",
      "type": "numeric|multiple_choice|true_false",
      "answer": "...",
      "tolerance": 0.01,
      "options": ["...", "...", "...", "..."],
      "hint": "...",
      "solution": "step-by-step worked solution",
      "difficulty": 1
    }
  ]
}

Rules:
- "difficulty" is an integer from 1 to 5.
- "tolerance" only for numeric exercises, "options" only for multiple_choice.
- Exercises must be solvable from the concept description and formula alone.
- Write in the same language as the concept material.`

var exerciseTypes = map[string]bool{
	"numeric":         true,
	"multiple_choice": true,
	"true_false":      true,
}

type ExerciseGenerationService interface {
	GenerateForConcept(ctx context.Context, concept *types.ConceptNode) ([]types.Exercise, error)
}

type exerciseGenerationService struct {
	log             *logger.Logger
	ai              AIClient
	temperature     float64
	maxOutputTokens int
}

func NewExerciseGenerationService(baseLog *logger.Logger, ai AIClient) ExerciseGenerationService {
	log := baseLog.With("service", "ExerciseGenerationService")
	return &exerciseGenerationService{
		log:             log,
		ai:              ai,
		temperature:     utils.GetEnvAsFloat("EXERCISE_TEMPERATURE", 0.7, log),
		maxOutputTokens: utils.GetEnvAsInt("EXERCISE_MAX_OUTPUT_TOKENS", 3072, log),
	}
}

func (s *exerciseGenerationService) GenerateForConcept(ctx context.Context, concept *types.ConceptNode) ([]types.Exercise, error) {
	if concept == nil || concept.Title == "" {
		return nil, fmt.Errorf("%w: concept has no title", ErrInvalidInput)
	}

	messages := []AIMessage{
		TextMessage("system", exercisePrompt),
		TextMessage("user", buildConceptContext(concept)),
	}
	content, err := s.ai.Chat(ctx, messages, &AIOptions{
		Temperature: s.temperature,
		MaxTokens:   s.maxOutputTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}
	parsed, err := ParseModelJSON(content)
	if err != nil {
		return nil, err
	}

	raw := edgeMaps(parsed["exercises"])
	exercises := make([]types.Exercise, 0, len(raw))
	for _, item := range raw {
		ex, ok := normalizeExercise(item)
		if !ok {
			s.log.Warn("Dropping malformed exercise", "concept", concept.ID)
			continue
		}
		exercises = append(exercises, ex)
	}
	if len(exercises) == 0 {
		return nil, fmt.Errorf("model returned no usable exercises: %w", ErrUnparsableOutput)
	}
	s.log.Info("Exercises generated", "concept", concept.ID, "count", len(exercises))
	return exercises, nil
}

// buildConceptContext flattens the concept into the user turn. Everything
// the model may rely on must be in here; the graph itself is not sent.
func buildConceptContext(c *types.ConceptNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Concept: %s\n", c.Title)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Formula != nil {
		fmt.Fprintf(&b, "Formula: %s\n", *c.Formula)
	}
	for _, v := range c.Variables {
		fmt.Fprintf(&b, "Variable %s: %s", v.Symbol, v.Meaning)
		if v.Unit != "" {
			fmt.Fprintf(&b, " (%s)", v.Unit)
		}
		b.WriteString("\n")
	}
	if len(c.KeyPoints) > 0 {
		fmt.Fprintf(&b, "Key points: %s\n", strings.Join(c.KeyPoints, "; "))
	}
	if len(c.CommonMistakes) > 0 {
		fmt.Fprintf(&b, "Common mistakes: %s\n", strings.Join(c.CommonMistakes, "; "))
	}
	switch {
	case c.Mastery < 0.3:
		b.WriteString("Student mastery: beginner. Lean toward easier exercises.\n")
	case c.Mastery > 0.7:
		b.WriteString("Student mastery: advanced. Lean toward harder exercises.\n")
	}
	return b.String()
}

func normalizeExercise(raw map[string]any) (types.Exercise, bool) {
	question := strings.TrimSpace(stringFromAny(raw["question"]))
	answer := strings.TrimSpace(stringFromAny(raw["answer"]))
	if question == "" || answer == "" {
		return types.Exercise{}, false
	}

	exType := strings.ToLower(strings.TrimSpace(stringFromAny(raw["type"])))
	if !exerciseTypes[exType] {
		exType = "numeric"
	}

	ex := types.Exercise{
		ID:         uuid.NewString(),
		Question:   question,
		Type:       exType,
		Answer:     answer,
		Hint:       strings.TrimSpace(stringFromAny(raw["hint"])),
		Solution:   strings.TrimSpace(stringFromAny(raw["solution"])),
		Difficulty: int(clampFloat(numberOrDefault(raw["difficulty"], 2), 1, 5)),
	}
	if ex.Hint == "" {
		ex.Hint = "Review the concept description and try again."
	}

	if exType == "numeric" && raw["tolerance"] != nil {
		if t := numberOrDefault(raw["tolerance"], -1); t >= 0 {
			ex.Tolerance = &t
		}
	}
	if exType == "multiple_choice" {
		ex.Options = stringSliceFromAny(raw["options"])
		if len(ex.Options) < 2 {
			return types.Exercise{}, false
		}
	}
	if exType == "true_false" {
		lower := strings.ToLower(answer)
		if lower != "true" && lower != "false" {
			return types.Exercise{}, false
		}
		ex.Answer = lower
	}
	return ex, true
}
