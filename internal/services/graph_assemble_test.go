package services

import (
	"errors"
	"testing"
)

func conceptData(id, title string, level any) map[string]any {
	return map[string]any{"id": id, "title": title, "level": level}
}

func TestAssembleGraphLayoutBounds(t *testing.T) {
	concepts := []taggedConcept{
		{data: conceptData("ch1_node_1", "Limits", 1), chapterTitle: "Limits", chapterIndex: 0},
		{data: conceptData("ch1_node_2", "Continuity", 2), chapterTitle: "Limits", chapterIndex: 0},
		{data: conceptData("ch2_node_1", "Derivatives", 99), chapterTitle: "Derivatives", chapterIndex: 1},
		{data: conceptData("ch2_node_2", "Chain Rule", -3), chapterTitle: "Derivatives", chapterIndex: 1},
	}

	result := assembleGraph("Calculus", concepts, nil, nil, 2)
	if result.SubjectName != "Calculus" {
		t.Fatalf("subject name: got %q", result.SubjectName)
	}
	if len(result.Concepts) != 4 {
		t.Fatalf("expected 4 concepts, got %d", len(result.Concepts))
	}
	for _, c := range result.Concepts {
		if c.Level < 1 || c.Level > 5 {
			t.Errorf("level out of range for %s: %d", c.ID, c.Level)
		}
		if c.X < layoutMinX || c.X > layoutMaxX {
			t.Errorf("x out of bounds for %s: %f", c.ID, c.X)
		}
		if c.Y < layoutMinY || c.Y > layoutMaxY {
			t.Errorf("y out of bounds for %s: %f", c.ID, c.Y)
		}
		if c.Mastery != 0 {
			t.Errorf("mastery should start at zero for %s", c.ID)
		}
		if c.Exercises == nil {
			t.Errorf("exercises should be an empty slice for %s", c.ID)
		}
	}
}

func TestAssembleGraphDuplicateIDs(t *testing.T) {
	concepts := []taggedConcept{
		{data: conceptData("node_1", "A", 1)},
		{data: conceptData("node_1", "B", 1)},
		{data: conceptData("node_1", "C", 1)},
		{data: conceptData("", "", 1)},
	}

	result := assembleGraph("S", concepts, nil, nil, 1)
	seen := map[string]bool{}
	for _, c := range result.Concepts {
		if c.ID == "" {
			t.Fatalf("empty id survived")
		}
		if seen[c.ID] {
			t.Fatalf("duplicate id %q in output", c.ID)
		}
		seen[c.ID] = true
	}
	if !seen["node_1"] || !seen["node_1_2"] || !seen["node_1_3"] {
		t.Fatalf("expected suffixed duplicates, got %v", seen)
	}
	if result.Concepts[3].Title != "Concept 4" {
		t.Fatalf("expected fallback title, got %q", result.Concepts[3].Title)
	}
}

func TestAssembleGraphEdgeIntegrity(t *testing.T) {
	concepts := []taggedConcept{
		{data: conceptData("a", "A", 1)},
		{data: conceptData("b", "B", 2)},
	}
	internal := []map[string]any{
		{"from": "a", "to": "b", "strength": 0.9},
		{"from": "a", "to": "b", "strength": 0.1}, // duplicate, first wins
		{"from": "a", "to": "a"},                  // self loop
		{"from": "a", "to": "ghost"},              // unknown endpoint
		{"from": "", "to": "b"},                   // empty endpoint
	}
	cross := []map[string]any{
		{"from": "b", "to": "a", "strength": 7.0}, // clamped to 1
		{"from": "a", "to": "b", "strength": 0.5}, // duplicate of internal
	}

	result := assembleGraph("S", concepts, internal, cross, 1)
	if len(result.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d: %+v", len(result.Edges), result.Edges)
	}
	if result.Edges[0].From != "a" || result.Edges[0].To != "b" || result.Edges[0].Strength != 0.9 {
		t.Fatalf("first edge wrong: %+v", result.Edges[0])
	}
	if result.Edges[1].Strength != 1 {
		t.Fatalf("strength not clamped: %+v", result.Edges[1])
	}
}

func TestAssembleGraphEdgeStrengthDefault(t *testing.T) {
	concepts := []taggedConcept{
		{data: conceptData("a", "A", 1)},
		{data: conceptData("b", "B", 1)},
	}
	edges := []map[string]any{{"from": "a", "to": "b", "strength": "not a number"}}

	result := assembleGraph("S", concepts, edges, nil, 1)
	if len(result.Edges) != 1 || result.Edges[0].Strength != 0.5 {
		t.Fatalf("expected default strength 0.5, got %+v", result.Edges)
	}
}

func TestAssembleGraphFormulaNullWords(t *testing.T) {
	concepts := []taggedConcept{
		{data: map[string]any{"id": "a", "title": "A", "level": 1, "formula": "null"}},
		{data: map[string]any{"id": "b", "title": "B", "level": 1, "formula": "None"}},
		{data: map[string]any{"id": "c", "title": "C", "level": 1, "formula": "E = mc^2"}},
	}

	result := assembleGraph("S", concepts, nil, nil, 1)
	if result.Concepts[0].Formula != nil || result.Concepts[1].Formula != nil {
		t.Fatalf("null-word formulas should become nil")
	}
	if result.Concepts[2].Formula == nil || *result.Concepts[2].Formula != "E = mc^2" {
		t.Fatalf("real formula lost")
	}
}

func TestNormalizeSinglePass(t *testing.T) {
	parsed := map[string]any{
		"subject_name": "Physics",
		"concepts": []any{
			map[string]any{"id": "n1", "title": "Kinematics", "level": 1.0, "x": 5000.0, "y": -10.0},
			map[string]any{"id": "n2", "title": "Dynamics", "level": 2.0},
		},
		"dependencies": []any{
			map[string]any{"from": "n1", "to": "n2", "strength": 0.8},
		},
	}

	result, err := normalizeSinglePass(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SubjectName != "Physics" {
		t.Fatalf("subject name: %q", result.SubjectName)
	}
	if result.Concepts[0].X != layoutMaxX || result.Concepts[0].Y != layoutMinY {
		t.Fatalf("positions not clamped: %+v", result.Concepts[0])
	}
	if len(result.Edges) != 1 || result.Edges[0].Strength != 0.8 {
		t.Fatalf("edges wrong: %+v", result.Edges)
	}
}

func TestNormalizeSinglePassNoConcepts(t *testing.T) {
	for _, parsed := range []map[string]any{
		{},
		{"concepts": []any{}},
		{"concepts": "nope"},
	} {
		if _, err := normalizeSinglePass(parsed); !errors.Is(err, ErrNoConcepts) {
			t.Fatalf("expected ErrNoConcepts for %v, got %v", parsed, err)
		}
	}
}
