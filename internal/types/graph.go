package types

import "time"

// Variable is one symbol referenced by a concept's formula.
type Variable struct {
	Symbol  string `json:"symbol"`
	Meaning string `json:"meaning"`
	Unit    string `json:"unit,omitempty"`
}

// Exercise is a practice item generated on demand for one concept. The graph
// pipeline always leaves the list empty; the exercise service fills it later.
type Exercise struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Type       string   `json:"type"` // numeric | multiple_choice | true_false
	Answer     string   `json:"answer"`
	Tolerance  *float64 `json:"tolerance,omitempty"`
	Options    []string `json:"options,omitempty"`
	Hint       string   `json:"hint"`
	Solution   string   `json:"solution"`
	Difficulty int      `json:"difficulty"`
}

// ConceptNode is a single learnable unit in a subject's knowledge graph.
// Positions and mastery are owned by the backend: positions come from the
// assembler's layout, mastery starts at 0 and is only moved by the mastery
// service.
type ConceptNode struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Level          int        `json:"level"` // 1 = foundational, 5 = advanced
	X              float64    `json:"x"`
	Y              float64    `json:"y"`
	Mastery        float64    `json:"mastery"`
	Description    string     `json:"description"`
	Intuition      string     `json:"intuition"`
	Formula        *string    `json:"formula"`
	Variables      []Variable `json:"variables"`
	KeyPoints      []string   `json:"keyPoints"`
	CommonMistakes []string   `json:"commonMistakes"`
	Exercises      []Exercise `json:"exercises"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`
}

// DependencyEdge is a directed prerequisite relation between two concepts.
type DependencyEdge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Strength float64 `json:"strength"`
}

// Chapter is pipeline-internal structure produced by the first pass and
// consumed by the chapter and cross-reference passes. Never persisted.
type Chapter struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Topics []string `json:"topics"`
}

// GenerationResult is the output of one graph generation request. The caller
// persists it wholesale, replacing any prior graph for the subject.
type GenerationResult struct {
	SubjectName string           `json:"subjectName"`
	Concepts    []ConceptNode    `json:"concepts"`
	Edges       []DependencyEdge `json:"edges"`
}

// ProgressEvent is an ephemeral pass-boundary notification. Emission is
// synchronous and best-effort; it never affects control flow.
type ProgressEvent struct {
	Step    string `json:"step"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Detail  string `json:"detail,omitempty"`
}
