package services

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/yungbote/studyos-backend/internal/types"
)

// ErrNoConcepts means a single-pass response contained no usable concepts.
// Single-pass is the last line of defense, so this one does reach the caller.
var ErrNoConcepts = errors.New("the model extracted no concepts, send more content or try other material")

// Canvas bounds shared with the frontend graph widget.
const (
	layoutMinX = 100.0
	layoutMaxX = 900.0
	layoutMinY = 80.0
	layoutMaxY = 780.0
)

// taggedConcept is a raw model concept plus its chapter provenance. The tag
// only drives layout; it is discarded after assembly.
type taggedConcept struct {
	data         map[string]any
	chapterTitle string
	chapterIndex int
}

// assembleGraph merges the output of all multi-pass stages into one
// consistent graph. Pure and total: whatever partial data it is given, it
// produces a best-effort result and never fails.
func assembleGraph(subjectName string, concepts []taggedConcept, internalEdges, crossEdges []map[string]any, chapterCount int) *types.GenerationResult {
	if chapterCount < 1 {
		chapterCount = 1
	}

	// Bucket sizes per (chapter, level) drive the horizontal spread.
	type bucket struct{ chapter, level int }
	bucketCount := map[bucket]int{}
	bucketIndex := map[bucket]int{}
	levels := make([]int, len(concepts))
	for i, c := range concepts {
		levels[i] = clampLevel(numberFromAny(c.data["level"], 1))
		bucketCount[bucket{c.chapterIndex, levels[i]}]++
	}

	usedIDs := map[string]bool{}
	nodes := make([]types.ConceptNode, 0, len(concepts))
	for i, c := range concepts {
		level := levels[i]
		b := bucket{c.chapterIndex, level}
		localIndex := bucketIndex[b]
		bucketIndex[b]++

		x := layoutMinX + float64(localIndex)/float64(max(1, bucketCount[b]))*(layoutMaxX-layoutMinX) + jitter(20)
		baseY := layoutMinY + float64(level-1)/4*(layoutMaxY-layoutMinY)
		chapterOffset := float64(c.chapterIndex)/float64(chapterCount)*30 - 15
		y := baseY + chapterOffset + jitter(10)

		node := normalizeConcept(c.data, i, usedIDs)
		node.Level = level
		node.X = clampFloat(math.Round(x), layoutMinX, layoutMaxX)
		node.Y = clampFloat(math.Round(y), layoutMinY, layoutMaxY)
		nodes = append(nodes, node)
	}

	return &types.GenerationResult{
		SubjectName: subjectName,
		Concepts:    nodes,
		Edges:       finalizeEdges(nodes, internalEdges, crossEdges),
	}
}

// normalizeSinglePass maps a one-shot model response onto the strict graph
// shape. Unlike assembleGraph it can fail: an empty concept list here means
// the whole job produced nothing.
func normalizeSinglePass(parsed map[string]any) (*types.GenerationResult, error) {
	rawConcepts, ok := parsed["concepts"].([]any)
	if !ok || len(rawConcepts) == 0 {
		return nil, ErrNoConcepts
	}

	usedIDs := map[string]bool{}
	nodes := make([]types.ConceptNode, 0, len(rawConcepts))
	for i, raw := range rawConcepts {
		data, _ := raw.(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		node := normalizeConcept(data, i, usedIDs)
		node.Level = clampLevel(numberFromAny(data["level"], 1))
		// Model-suggested positions are accepted here but still clamped;
		// missing ones fall back to a simple grid.
		node.X = clampFloat(numberOrDefault(data["x"], layoutMinX+float64(i%5)*180), layoutMinX, layoutMaxX)
		node.Y = clampFloat(numberOrDefault(data["y"], layoutMinY+float64(i/5)*150), layoutMinY, layoutMaxY)
		nodes = append(nodes, node)
	}

	edges := finalizeEdges(nodes, edgeMaps(parsed["dependencies"]), nil)
	return &types.GenerationResult{
		SubjectName: stringFromAny(parsed["subject_name"]),
		Concepts:    nodes,
		Edges:       edges,
	}, nil
}

func normalizeConcept(data map[string]any, globalIndex int, usedIDs map[string]bool) types.ConceptNode {
	id := strings.TrimSpace(stringFromAny(data["id"]))
	if id == "" {
		id = fmt.Sprintf("node_%d", globalIndex+1)
	}
	// Duplicate ids from the model are ambiguous: suffix later occurrences.
	if usedIDs[id] {
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", id, n)
			if !usedIDs[candidate] {
				id = candidate
				break
			}
		}
	}
	usedIDs[id] = true

	title := strings.TrimSpace(stringFromAny(data["title"]))
	if title == "" {
		title = fmt.Sprintf("Concept %d", globalIndex+1)
	}

	return types.ConceptNode{
		ID:             id,
		Title:          title,
		Mastery:        0,
		Description:    stringFromAny(data["description"]),
		Intuition:      stringFromAny(data["intuition"]),
		Formula:        normalizeFormula(data["formula"]),
		Variables:      variablesFromAny(data["variables"]),
		KeyPoints:      stringSliceFromAny(data["keyPoints"]),
		CommonMistakes: stringSliceFromAny(data["commonMistakes"]),
		Exercises:      []types.Exercise{},
	}
}

// finalizeEdges concatenates edge lists, drops edges with unknown endpoints
// or self-loops, dedupes by (from,to) keeping the first occurrence, and
// clamps strength with a 0.5 default.
func finalizeEdges(nodes []types.ConceptNode, lists ...[]map[string]any) []types.DependencyEdge {
	nodeIDs := map[string]bool{}
	for _, n := range nodes {
		nodeIDs[n.ID] = true
	}

	seen := map[string]bool{}
	out := []types.DependencyEdge{}
	for _, list := range lists {
		for _, e := range list {
			from := strings.TrimSpace(stringFromAny(e["from"]))
			to := strings.TrimSpace(stringFromAny(e["to"]))
			if from == "" || to == "" || from == to {
				continue
			}
			if !nodeIDs[from] || !nodeIDs[to] {
				continue
			}
			key := from + "->" + to
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, types.DependencyEdge{
				From:     from,
				To:       to,
				Strength: clampFloat(numberOrDefault(e["strength"], 0.5), 0, 1),
			})
		}
	}
	return out
}

// ---- weak-typed coercion helpers ----

func stringFromAny(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}

func numberFromAny(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f
		}
	}
	return def
}

func numberOrDefault(v any, def float64) float64 {
	if v == nil {
		return def
	}
	f := numberFromAny(v, math.NaN())
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func clampLevel(v float64) int {
	level := int(math.Round(v))
	if level < 1 {
		level = 1
	}
	if level > 5 {
		level = 5
	}
	return level
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func jitter(span float64) float64 {
	return rand.Float64()*2*span - span
}

// normalizeFormula treats the literal strings "null" and "None" as leakage
// from the model and converts them to absent.
func normalizeFormula(v any) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(stringFromAny(v))
	if s == "" || s == "null" || s == "None" {
		return nil
	}
	return &s
}

func variablesFromAny(v any) []types.Variable {
	list, ok := v.([]any)
	if !ok {
		return []types.Variable{}
	}
	out := make([]types.Variable, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, types.Variable{
			Symbol:  stringFromAny(m["symbol"]),
			Meaning: stringFromAny(m["meaning"]),
			Unit:    stringFromAny(m["unit"]),
		})
	}
	return out
}

func stringSliceFromAny(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		s := stringFromAny(item)
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// edgeMaps coerces a weakly-typed edge list into []map[string]any, dropping
// anything that is not an object.
func edgeMaps(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
