package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/types"
	"github.com/yungbote/studyos-backend/internal/utils"
)

var (
	// ErrInvalidInput covers everything rejected before any network call:
	// too-short text, unsupported extension, oversized file.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled is the terminal state for a caller-cancelled generation.
	// Distinct from failure: handlers render it as a neutral notice.
	ErrCancelled = fmt.Errorf("generation cancelled: %w", context.Canceled)
)

// ProgressSink receives pass-boundary progress events synchronously. A nil
// sink is valid; emission is best-effort and never affects control flow.
type ProgressSink interface {
	Publish(ev types.ProgressEvent)
}

type ProgressFunc func(ev types.ProgressEvent)

func (f ProgressFunc) Publish(ev types.ProgressEvent) {
	if f != nil {
		f(ev)
	}
}

// GenerateGraphInput carries either an uploaded file or raw text.
type GenerateGraphInput struct {
	File *GraphFileInput
	Text string
}

type GraphGenerationService interface {
	// Validate runs the cheap input checks synchronously so callers can
	// reject bad requests before a background run is created.
	Validate(input GenerateGraphInput) error
	Generate(ctx context.Context, input GenerateGraphInput, sink ProgressSink) (*types.GenerationResult, error)
}

type graphGenConfig struct {
	minInputChars           int
	maxInputChars           int
	maxFileSizeMB           int
	multiPassThresholdChars int
	multiPassThresholdMB    float64
	maxChapters             int
	temperature             float64
	maxOutputTokens         int
	structureOutputTokens   int
	chapterOutputTokens     int
}

type graphGenerationService struct {
	log *logger.Logger
	ai  AIClient
	cfg graphGenConfig
}

func NewGraphGenerationService(baseLog *logger.Logger, ai AIClient) GraphGenerationService {
	log := baseLog.With("service", "GraphGenerationService")
	cfg := graphGenConfig{
		minInputChars:           utils.GetEnvAsInt("GRAPHGEN_MIN_INPUT_CHARS", 80, log),
		maxInputChars:           utils.GetEnvAsInt("GRAPHGEN_MAX_INPUT_CHARS", 50000, log),
		maxFileSizeMB:           utils.GetEnvAsInt("GRAPHGEN_MAX_FILE_SIZE_MB", 20, log),
		multiPassThresholdChars: utils.GetEnvAsInt("GRAPHGEN_MULTIPASS_THRESHOLD_CHARS", 20000, log),
		multiPassThresholdMB:    utils.GetEnvAsFloat("GRAPHGEN_MULTIPASS_THRESHOLD_MB", 0.5, log),
		maxChapters:             utils.GetEnvAsInt("GRAPHGEN_MAX_CHAPTERS", 12, log),
		temperature:             utils.GetEnvAsFloat("GRAPHGEN_TEMPERATURE", 0.7, log),
		maxOutputTokens:         utils.GetEnvAsInt("GRAPHGEN_MAX_OUTPUT_TOKENS", 8192, log),
		structureOutputTokens:   utils.GetEnvAsInt("GRAPHGEN_STRUCTURE_OUTPUT_TOKENS", 2048, log),
		chapterOutputTokens:     utils.GetEnvAsInt("GRAPHGEN_CHAPTER_OUTPUT_TOKENS", 6144, log),
	}
	return &graphGenerationService{log: log, ai: ai, cfg: cfg}
}

func (s *graphGenerationService) Validate(input GenerateGraphInput) error {
	if input.File != nil {
		return validateGraphFile(*input.File, s.cfg.maxFileSizeMB)
	}
	if input.Text != "" {
		_, err := prepareText(input.Text, s.cfg.minInputChars, s.cfg.maxInputChars)
		return err
	}
	return fmt.Errorf("%w: no file or text provided", ErrInvalidInput)
}

func (s *graphGenerationService) Generate(ctx context.Context, input GenerateGraphInput, sink ProgressSink) (*types.GenerationResult, error) {
	if input.File != nil {
		return s.generateFromFile(ctx, *input.File, sink)
	}
	if input.Text != "" {
		return s.generateFromText(ctx, input.Text, sink)
	}
	return nil, fmt.Errorf("%w: no file or text provided", ErrInvalidInput)
}

func (s *graphGenerationService) generateFromFile(ctx context.Context, file GraphFileInput, sink ProgressSink) (*types.GenerationResult, error) {
	if err := validateGraphFile(file, s.cfg.maxFileSizeMB); err != nil {
		return nil, err
	}
	sizeMB := float64(len(file.Data)) / (1024 * 1024)
	s.log.Info("Processing file", "filename", file.Filename, "size_mb", fmt.Sprintf("%.1f", sizeMB))

	switch fileExtension(file.Filename) {
	case "txt", "md":
		return s.generateFromText(ctx, string(file.Data), sink)
	case "pdf":
		src := &filePassSource{file: file, dataURL: fileToDataURL(file)}
		if sizeMB > s.cfg.multiPassThresholdMB {
			s.log.Info("Large PDF, using multi-pass deep extraction", "size_mb", fmt.Sprintf("%.1f", sizeMB))
			return s.multiPass(ctx, src, sink)
		}
		return s.singlePass(ctx, src, sink)
	default:
		// doc/docx have no local extractor; accept them only when the bytes
		// happen to decode as text.
		if utf8.Valid(file.Data) {
			return s.generateFromText(ctx, string(file.Data), sink)
		}
		return nil, fmt.Errorf("%w: could not read this format, paste the text instead", ErrInvalidInput)
	}
}

func (s *graphGenerationService) generateFromText(ctx context.Context, text string, sink ProgressSink) (*types.GenerationResult, error) {
	prepared, err := prepareText(text, s.cfg.minInputChars, s.cfg.maxInputChars)
	if err != nil {
		return nil, err
	}
	src := &textPassSource{text: prepared}
	if len(prepared) > s.cfg.multiPassThresholdChars {
		s.log.Info("Large text, using multi-pass", "chars", len(prepared))
		return s.multiPass(ctx, src, sink)
	}
	return s.singlePass(ctx, src, sink)
}

// ---- pass sources ----

// passSource builds the user turn for each pass so the pipeline itself does
// not care whether the document travels as a file payload or inline text.
type passSource interface {
	structureMessage() AIMessage
	chapterMessage(chapter types.Chapter, index, total int) AIMessage
	singlePassMessage() AIMessage
	detail() string
}

type filePassSource struct {
	file    GraphFileInput
	dataURL string
}

func (f *filePassSource) structureMessage() AIMessage {
	return FileMessage("user", f.file.Filename, f.dataURL,
		"Analyze the full structure of this academic material. Identify every chapter, section and topic.")
}

func (f *filePassSource) chapterMessage(chapter types.Chapter, index, total int) AIMessage {
	return FileMessage("user", f.file.Filename, f.dataURL,
		fmt.Sprintf("Focus EXCLUSIVELY on the chapter %q of this material. Topics to cover: %s. Extract deep concepts with complete explanations, formulas, key points and common mistakes.",
			chapter.Title, strings.Join(chapter.Topics, ", ")))
}

func (f *filePassSource) singlePassMessage() AIMessage {
	return FileMessage("user", f.file.Filename, f.dataURL,
		"Analyze the academic document above and generate the complete pedagogical knowledge graph. Extract as much value as possible from this material.")
}

func (f *filePassSource) detail() string { return f.file.Filename }

type textPassSource struct {
	text string
}

func (t *textPassSource) structureMessage() AIMessage {
	excerpt := t.text
	if len(excerpt) > 30000 {
		excerpt = excerpt[:30000]
	}
	return TextMessage("user", fmt.Sprintf("Analyze the structure of this academic material:\n\n---\n%s\n---", excerpt))
}

func (t *textPassSource) chapterMessage(chapter types.Chapter, index, total int) AIMessage {
	// Naive equal-length split with overlap; chapter boundaries in plain
	// text are estimated, not located.
	chunkSize := int(math.Ceil(float64(len(t.text)) / float64(max(1, total))))
	start := max(0, index*chunkSize-500)
	end := min(len(t.text), (index+1)*chunkSize+500)
	return TextMessage("user", fmt.Sprintf("Focus on the chapter %q. Relevant text:\n\n---\n%s\n---", chapter.Title, t.text[start:end]))
}

func (t *textPassSource) singlePassMessage() AIMessage {
	return TextMessage("user", fmt.Sprintf("Analyze the academic content below and generate the complete pedagogical knowledge graph:\n\n---\n%s\n---", t.text))
}

func (t *textPassSource) detail() string { return fmt.Sprintf("%d characters", len(t.text)) }

// ---- pipeline ----

func (s *graphGenerationService) multiPass(ctx context.Context, src passSource, sink ProgressSink) (*types.GenerationResult, error) {
	// Pass 1: structure.
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	emit(sink, "Analyzing material structure...", 1, 4, "Identifying chapters and topics")

	subjectName, chapters, err := s.extractStructure(ctx, src)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		s.log.Warn("Structure pass failed, falling back to single pass", "error", err)
		return s.singlePass(ctx, src, sink)
	}
	if len(chapters) == 0 {
		s.log.Warn("No chapters detected, falling back to single pass")
		return s.singlePass(ctx, src, sink)
	}
	if len(chapters) > s.cfg.maxChapters {
		s.log.Warn("Chapter list truncated", "detected", len(chapters), "max", s.cfg.maxChapters)
		chapters = chapters[:s.cfg.maxChapters]
	}
	s.log.Info("Structure extracted", "chapters", len(chapters), "subject", subjectName)

	// Pass 2: one extraction per chapter, strictly sequential. A failed
	// chapter is logged and skipped; the fold keeps going.
	totalSteps := len(chapters) + 3
	var allConcepts []taggedConcept
	var internalEdges []map[string]any
	failed := 0

	for i, chapter := range chapters {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		emit(sink, fmt.Sprintf("Processing chapter %d of %d", i+1, len(chapters)), i+2, totalSteps, chapter.Title)

		concepts, edges, err := s.extractChapter(ctx, src, chapter, i, len(chapters))
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return nil, err
			}
			failed++
			s.log.Warn("Chapter extraction failed, skipping", "chapter", chapter.Title, "index", i+1, "error", err)
			continue
		}
		allConcepts = append(allConcepts, concepts...)
		internalEdges = append(internalEdges, edges...)
		s.log.Info("Chapter extracted", "chapter", chapter.Title, "concepts", len(concepts))
	}
	if failed > 0 {
		s.log.Warn("Some chapters failed", "failed", failed, "total", len(chapters))
	}
	if len(allConcepts) == 0 {
		s.log.Warn("No concepts extracted from any chapter, falling back to single pass")
		return s.singlePass(ctx, src, sink)
	}

	// Pass 3: cross-chapter edges. Enrichment only; never fatal.
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	emit(sink, "Connecting concepts across chapters...", len(chapters)+2, totalSteps, fmt.Sprintf("%d concepts found", len(allConcepts)))

	var crossEdges []map[string]any
	if len(allConcepts) >= 4 {
		crossEdges, err = s.extractCrossEdges(ctx, allConcepts)
		if err != nil {
			s.log.Warn("Cross-chapter connection pass failed, continuing without", "error", err)
			crossEdges = nil
		}
	}

	// Pass 4: assembly.
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	emit(sink, "Assembling final graph...", totalSteps, totalSteps, fmt.Sprintf("%d concepts, %d connections", len(allConcepts), len(internalEdges)+len(crossEdges)))

	result := assembleGraph(subjectName, allConcepts, internalEdges, crossEdges, len(chapters))
	s.log.Info("Graph assembled", "concepts", len(result.Concepts), "edges", len(result.Edges))
	return result, nil
}

func (s *graphGenerationService) singlePass(ctx context.Context, src passSource, sink ProgressSink) (*types.GenerationResult, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	emit(sink, "Analyzing material...", 1, 2, src.detail())

	messages := []AIMessage{
		TextMessage("system", singlePassPrompt),
		src.singlePassMessage(),
	}
	parsed, err := s.callModel(ctx, messages, s.cfg.maxOutputTokens)
	if err != nil {
		return nil, err
	}

	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	emit(sink, "Assembling graph...", 2, 2, "")

	result, err := normalizeSinglePass(parsed)
	if err != nil {
		return nil, err
	}
	s.log.Info("Graph assembled (single pass)", "concepts", len(result.Concepts), "edges", len(result.Edges))
	return result, nil
}

func (s *graphGenerationService) extractStructure(ctx context.Context, src passSource) (string, []types.Chapter, error) {
	messages := []AIMessage{
		TextMessage("system", structurePrompt),
		src.structureMessage(),
	}
	parsed, err := s.callModel(ctx, messages, s.cfg.structureOutputTokens)
	if err != nil {
		return "", nil, err
	}

	subjectName := stringFromAny(parsed["subject_name"])
	var chapters []types.Chapter
	for _, raw := range edgeMaps(parsed["chapters"]) {
		title := stringFromAny(raw["title"])
		if title == "" {
			continue
		}
		chapters = append(chapters, types.Chapter{
			ID:     stringFromAny(raw["id"]),
			Title:  title,
			Topics: stringSliceFromAny(raw["topics"]),
		})
	}
	return subjectName, chapters, nil
}

func (s *graphGenerationService) extractChapter(ctx context.Context, src passSource, chapter types.Chapter, index, total int) ([]taggedConcept, []map[string]any, error) {
	messages := []AIMessage{
		TextMessage("system", buildChapterPrompt(chapter, index, total)),
		src.chapterMessage(chapter, index, total),
	}
	parsed, err := s.callModel(ctx, messages, s.cfg.chapterOutputTokens)
	if err != nil {
		return nil, nil, err
	}

	raw := edgeMaps(parsed["concepts"])
	concepts := make([]taggedConcept, 0, len(raw))
	for _, c := range raw {
		concepts = append(concepts, taggedConcept{
			data:         c,
			chapterTitle: chapter.Title,
			chapterIndex: index,
		})
	}
	return concepts, edgeMaps(parsed["internal_dependencies"]), nil
}

func (s *graphGenerationService) extractCrossEdges(ctx context.Context, concepts []taggedConcept) ([]map[string]any, error) {
	summaries := make([]ConceptSummary, 0, len(concepts))
	for _, c := range concepts {
		summaries = append(summaries, ConceptSummary{
			ID:      stringFromAny(c.data["id"]),
			Title:   stringFromAny(c.data["title"]),
			Chapter: c.chapterTitle,
		})
	}
	messages := []AIMessage{
		TextMessage("system", buildConnectionsPrompt(summaries)),
		TextMessage("user", "Identify the dependencies between concepts from DIFFERENT chapters. Which concepts from earlier chapters are prerequisites for concepts in later chapters?"),
	}
	parsed, err := s.callModel(ctx, messages, s.cfg.structureOutputTokens)
	if err != nil {
		return nil, err
	}
	return edgeMaps(parsed["cross_dependencies"]), nil
}

// callModel is the shared request path for all passes: one chat call in JSON
// mode followed by the staged parser.
func (s *graphGenerationService) callModel(ctx context.Context, messages []AIMessage, maxTokens int) (map[string]any, error) {
	content, err := s.ai.Chat(ctx, messages, &AIOptions{
		Temperature: s.cfg.temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		// An aborted in-flight call reports a transport error; what actually
		// happened is a cancellation and it must keep that identity.
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, err
	}
	s.log.Debug("Model response received", "chars", len(content))
	return ParseModelJSON(content)
}

// ---- helpers ----

// checkCancelled implements cooperative cancellation at pass boundaries. An
// in-flight call may still complete and have its result discarded; no
// partial writes occur until the very end.
func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func emit(sink ProgressSink, step string, current, total int, detail string) {
	if sink == nil {
		return
	}
	sink.Publish(types.ProgressEvent{Step: step, Current: current, Total: total, Detail: detail})
}
