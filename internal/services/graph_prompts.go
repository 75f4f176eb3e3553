package services

import (
	"fmt"
	"strings"

	"github.com/yungbote/studyos-backend/internal/types"
)

const baseRolePrompt = `You are the StudyOS AI, an expert university professor, researcher and instructional designer.

CONTEXT: Students frequently receive poor study material: lectures that skip steps, incomplete handouts, problem sets with no solutions. Your job is to COMPENSATE for those gaps.`

const structurePrompt = baseRolePrompt + `

# TASK
Analyze the academic material and extract its STRUCTURE of chapters/sections/topics.

# RULES
- Identify ALL chapters, sections or major themes in the material
- If there are no explicit chapters, split by logical themes
- List the main topics of each chapter
- Return ONLY valid JSON

# OUTPUT (JSON)
{
  "subject_name": "Name of the Subject/Course",
  "chapters": [
    {
      "id": "ch_1",
      "title": "Chapter/Section Name",
      "topics": ["Topic 1", "Topic 2", "Topic 3"]
    }
  ]
}

Extract between 3 and 12 chapters. If the material is short, extract at least 2-3 thematic sections.`

func buildChapterPrompt(chapter types.Chapter, chapterIndex, totalChapters int) string {
	return fmt.Sprintf(`%s

# TASK
Extract DEEP concepts from the chapter %q (chapter %d of %d).
Topics in this chapter: %s

# GUARDRAILS
G1. FIDELITY: Never invent information that contradicts the material
G2. SUPPLEMENTATION: When the material is insufficient, supplement with encyclopedic knowledge
G3. PRECISION: Formulas and definitions MUST be technically correct
G4. PURE JSON: Return ONLY valid JSON
G5. VOLUME: Extract between 5 and 15 concepts from this chapter — DEPTH over quantity
G6. COMPLETENESS: Every concept MUST have ALL fields filled substantially
G7. SELF-CONTAINED: Each description complete enough to understand WITHOUT consulting other material
G8. NO SHALLOWNESS: One-line descriptions are FORBIDDEN. Minimum 3 sentences per description

# CHAIN OF REASONING
1. List the chapter's concepts (including implicit prerequisites)
2. Order them by learning sequence (level 1=foundations, 5=advanced)
3. For each: how would an EXCELLENT teacher explain it?
4. For each: which real mistakes do students make on exams?
5. For each: what would show up in an assessment?

# OUTPUT (JSON)
{
  "concepts": [
    {
      "id": "ch%d_node_1",
      "title": "Concept Name",
      "level": 1,
      "description": "Complete, deep, didactic explanation. Minimum 3 sentences. Include definition, meaning and importance.",
      "intuition": "A powerful everyday analogy the student will NEVER forget.",
      "formula": "F = ma (or null if none)",
      "variables": [
        { "symbol": "F", "meaning": "Net force", "unit": "N" }
      ],
      "keyPoints": [
        "A point that would show up on the exam — be specific",
        "The detail that separates a pass from a perfect score"
      ],
      "commonMistakes": [
        "A real, specific mistake students make"
      ]
    }
  ],
  "internal_dependencies": [
    { "from": "ch%d_node_1", "to": "ch%d_node_3", "strength": 0.9 }
  ]
}`, baseRolePrompt, chapter.Title, chapterIndex+1, totalChapters, strings.Join(chapter.Topics, ", "), chapterIndex+1, chapterIndex+1, chapterIndex+1)
}

// ConceptSummary is the compact {id,title,chapter} triple sent to the
// cross-reference pass. Full node bodies never leave the chapter pass.
type ConceptSummary struct {
	ID      string
	Title   string
	Chapter string
}

func buildConnectionsPrompt(summaries []ConceptSummary) string {
	var list strings.Builder
	for _, s := range summaries {
		list.WriteString(fmt.Sprintf("- %s: %q (%s)\n", s.ID, s.Title, s.Chapter))
	}
	return fmt.Sprintf(`%s

# TASK
Analyze the concepts below (extracted from different chapters) and identify CROSS-CHAPTER DEPENDENCIES.

# CONCEPTS
%s
# RULES
- Identify ONLY dependencies BETWEEN different chapters (cross-chapter)
- If concept B from chapter 3 requires concept A from chapter 1, create edge A→B
- Strength: 0.9 = essential, 0.5 = useful to know, 0.3 = tangential
- Return ONLY valid JSON

# OUTPUT (JSON)
{
  "cross_dependencies": [
    { "from": "ch1_node_2", "to": "ch3_node_1", "strength": 0.8 }
  ]
}`, baseRolePrompt, list.String())
}

const singlePassPrompt = baseRolePrompt + `

# TASK
Transform the academic material into a complete, deep pedagogical knowledge graph.

# GUARDRAILS
G1. FIDELITY: Never invent information that CONTRADICTS the source material
G2. SUPPLEMENTATION: When insufficient, supplement with encyclopedic knowledge
G3. PEDAGOGICAL ORDER: Concepts ordered by dependency — level 1 = foundations, level 5 = advanced
G4. PRECISION: Technically correct formulas and definitions
G5. PURE JSON: Return ONLY valid JSON
G6. VOLUME: Extract between 12 and 25 concepts — DEPTH over quantity
G7. COMPLETENESS: Every concept with ALL fields filled substantially
G8. SELF-CONTAINED: Complete descriptions without consulting other material
G9. NO SHALLOWNESS: Minimum 3 sentences per description and 2 per intuition

# CHAIN OF REASONING
1. Identify the subject and field of knowledge
2. List ALL the concepts (including implicit prerequisites)
3. Organize the dependency tree
4. For each: how would an EXCELLENT teacher explain it?
5. For each: REAL exam mistakes?
6. For each: assessment points?

# HANDLING POOR MATERIAL
- Topic list → Develop each topic in depth
- Badly formatted text → Identify concepts and reconstruct
- Very short → Use the topics as a seed and expand
- Book references → Develop the expected content
- Bullet-point slides → Build a coherent pedagogical narrative

# OUTPUT (JSON)
{
  "subject_name": "Subject Name",
  "concepts": [
    {
      "id": "node_1",
      "title": "Concept Name",
      "level": 1,
      "x": 200, "y": 100,
      "description": "Complete, deep explanation. Minimum 3 sentences.",
      "intuition": "A memorable everyday analogy.",
      "formula": "F = ma (or null)",
      "variables": [{ "symbol": "F", "meaning": "Net force", "unit": "N" }],
      "keyPoints": ["What would show up on the exam"],
      "commonMistakes": ["A real student mistake"]
    }
  ],
  "dependencies": [
    { "from": "node_1", "to": "node_3", "strength": 0.9 }
  ]
}

LAYOUT: x between 100-900, y between 80-780. Level 1 at the top (low y), level 5 at the bottom.`
