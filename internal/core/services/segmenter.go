package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
	"github.com/revisely/corpus/internal/core/ports/driving"
	"github.com/revisely/corpus/internal/logger"
	"github.com/revisely/corpus/internal/token"
)

// Ensure Segmenter implements the interface.
var _ driving.DocumentSegmenter = (*Segmenter)(nil)

// Default segmentation tunables.
const (
	DefaultTargetChunkTokens = 1000
	DefaultMaxChunkTokens    = 1500
	DefaultOverlapTokens     = 100
	DefaultPageTokens        = 500
	DefaultEdgeWindowChars   = 500
	maxTopicLabelWords       = 5
)

// pageMarker matches explicit "Page N" / "Slide N" delimiter lines.
var pageMarker = regexp.MustCompile(`(?mi)^[ \t]*(?:page|slide)[ \t]+\d+[ \t]*$`)

// paragraphBreak matches a blank-line paragraph separator.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// sentenceEnd matches sentence-terminating punctuation and the
// whitespace that follows it.
var sentenceEnd = regexp.MustCompile(`[.!?]+[)\]"']*[ \t\n]+`)

// SegmenterConfig holds chunking tunables. Zero values take defaults.
type SegmenterConfig struct {
	// TargetChunkTokens is the nominal chunk size used when splitting an
	// oversized segment (default 1000).
	TargetChunkTokens int

	// MaxChunkTokens is the ceiling under which a whole segment becomes
	// a single chunk (default 1500). A single indivisible paragraph or
	// sentence may still exceed it.
	MaxChunkTokens int

	// OverlapTokens is the size of the previous-chunk tail duplicated
	// into each following chunk (default 100).
	OverlapTokens int

	// PageTokens is the synthetic page budget used when the text has no
	// structural page markers (default 500).
	PageTokens int

	// EdgeWindowChars is how much of a page's start and end is sent to
	// the classifier for boundary detection (default 500).
	EdgeWindowChars int
}

func (c *SegmenterConfig) applyDefaults() {
	if c.TargetChunkTokens <= 0 {
		c.TargetChunkTokens = DefaultTargetChunkTokens
	}
	if c.MaxChunkTokens <= 0 {
		c.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if c.OverlapTokens <= 0 {
		c.OverlapTokens = DefaultOverlapTokens
	}
	if c.PageTokens <= 0 {
		c.PageTokens = DefaultPageTokens
	}
	if c.EdgeWindowChars <= 0 {
		c.EdgeWindowChars = DefaultEdgeWindowChars
	}
}

// page is a structural or synthetic page of the document text.
type page struct {
	number     int // 1-based
	start, end int // byte offsets into the document text
}

// topicSegment is a maximal span discussing one coherent topic.
type topicSegment struct {
	topic      string
	start, end int
	pages      []int
}

// Segmenter runs the 4-phase chunking pipeline: paging, page-edge topic
// detection, boundary refinement, and chunk formation with overlap and
// concept tagging.
type Segmenter struct {
	store      driven.ChunkStore
	classifier driven.TopicClassifier
	estimator  token.Estimator
	cfg        SegmenterConfig
}

// NewSegmenter creates a new document segmenter.
func NewSegmenter(
	store driven.ChunkStore,
	classifier driven.TopicClassifier,
	estimator token.Estimator,
	cfg SegmenterConfig,
) *Segmenter {
	cfg.applyDefaults()
	if estimator == nil {
		estimator = token.NewHeuristic()
	}
	return &Segmenter{
		store:      store,
		classifier: classifier,
		estimator:  estimator,
		cfg:        cfg,
	}
}

// SegmentDocument runs the full segmentation pipeline for a document,
// replacing any prior chunk set. Any failure after the run starts marks
// the document failed; the caller retries from scratch.
func (s *Segmenter) SegmentDocument(ctx context.Context, documentID string) error {
	if s.classifier == nil {
		return domain.ErrClassifierUnavailable
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: document %s has no content", domain.ErrInvalidInput, documentID)
	}

	if err := s.store.SetChunkingStatus(ctx, documentID, domain.ChunkingProcessing); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	logger.Section("Document Segmentation")
	logger.Info("Segmenting document %s (%d bytes)", documentID, len(doc.Content))

	if err := s.run(ctx, doc); err != nil {
		logger.Error("Segmentation of %s failed: %v", documentID, err)
		if statusErr := s.store.SetChunkingStatus(ctx, documentID, domain.ChunkingFailed); statusErr != nil {
			logger.Warn("Could not mark document %s failed: %v", documentID, statusErr)
		}
		return fmt.Errorf("%w: %w", domain.ErrSegmentationFailed, err)
	}
	return nil
}

// run executes the four phases and commits the result in one atomic
// replace.
func (s *Segmenter) run(ctx context.Context, doc *domain.Document) error {
	text := doc.Content

	pages := s.buildPages(text)
	logger.Debug("Phase 1: %d pages", len(pages))

	segments, err := s.detectSegments(ctx, text, pages)
	if err != nil {
		return err
	}
	logger.Debug("Phase 2/3: %d topic segments", len(segments))

	chunks := s.formChunks(doc.ID, text, segments)
	logger.Debug("Phase 4: %d chunks", len(chunks))

	s.tagChunks(ctx, text, chunks)

	topics := buildTopics(doc.ID, segments, chunks)
	conceptMap := buildConceptMap(doc.ID, chunks)

	if err := s.store.ReplaceChunks(ctx, doc.ID, chunks, topics, conceptMap); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}

	logger.Info("Segmentation complete: %d chunks, %d concepts",
		len(chunks), conceptMap.TotalConcepts)
	return nil
}

// ==================== Phase 1: paging ====================

// buildPages splits the text into pages, preferring structural markers
// (form feeds, "Page N"/"Slide N" lines) and falling back to synthetic
// pages of roughly PageTokens tokens.
func (s *Segmenter) buildPages(text string) []page {
	if strings.ContainsRune(text, '\f') {
		return tilePages(text, formFeedStarts(text))
	}
	if starts := markerStarts(text); len(starts) > 0 {
		return tilePages(text, starts)
	}
	return s.syntheticPages(text)
}

// formFeedStarts returns page start offsets split on form feeds.
func formFeedStarts(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r == '\f' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// markerStarts returns page start offsets at "Page N"/"Slide N" lines.
func markerStarts(text string) []int {
	matches := pageMarker.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	starts := []int{0}
	for _, m := range matches {
		if m[0] > 0 {
			starts = append(starts, m[0])
		}
	}
	return starts
}

// tilePages converts sorted start offsets into contiguous page spans.
func tilePages(text string, starts []int) []page {
	pages := make([]page, 0, len(starts))
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start >= end {
			continue
		}
		pages = append(pages, page{number: len(pages) + 1, start: start, end: end})
	}
	return pages
}

// syntheticPages splits unmarked text on a fixed approximate token
// budget, breaking at the nearest newline or space.
func (s *Segmenter) syntheticPages(text string) []page {
	budget := token.CharBudget(s.cfg.PageTokens)
	var pages []page
	start := 0
	for start < len(text) {
		end := start + budget
		if end >= len(text) {
			end = len(text)
		} else {
			window := text[start:end]
			if nl := strings.LastIndexByte(window, '\n'); nl > 0 {
				end = start + nl + 1
			} else if sp := strings.LastIndexByte(window, ' '); sp > 0 {
				end = start + sp + 1
			}
		}
		pages = append(pages, page{number: len(pages) + 1, start: start, end: end})
		start = end
	}
	return pages
}

// ==================== Phases 2 & 3: topic detection ====================

// detectSegments classifies each page's leading and trailing window and
// accumulates contiguous topic segments covering the whole text. Pages
// whose edge labels differ get their boundary refined by quartering.
func (s *Segmenter) detectSegments(ctx context.Context, text string, pages []page) ([]topicSegment, error) {
	var segments []topicSegment
	var current *topicSegment

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageText := text[p.start:p.end]
		startLabel := s.labelFor(ctx, headChars(pageText, s.cfg.EdgeWindowChars))
		endLabel := s.labelFor(ctx, tailChars(pageText, s.cfg.EdgeWindowChars))

		if current == nil {
			current = &topicSegment{topic: startLabel, start: p.start, pages: []int{p.number}}
		} else {
			current.pages = append(current.pages, p.number)
		}

		if strings.EqualFold(startLabel, endLabel) {
			// Topically homogeneous page, extends the running segment.
			continue
		}

		boundary := s.refineBoundary(ctx, text, p)
		logger.Debug("Boundary on page %d at offset %d (%q -> %q)",
			p.number, boundary, current.topic, endLabel)

		current.end = boundary
		if current.end > current.start {
			segments = append(segments, *current)
		}
		current = &topicSegment{topic: endLabel, start: boundary, pages: []int{p.number}}
	}

	if current != nil {
		current.end = len(text)
		if current.end > current.start {
			segments = append(segments, *current)
		}
	}
	return segments, nil
}

// refineBoundary quarters the page and scans for the first adjacent pair
// of quarters with differing labels. The boundary is the start of the
// differing quarter; the page midpoint is the fallback. Cost is bounded
// at four classifier calls per ambiguous page.
func (s *Segmenter) refineBoundary(ctx context.Context, text string, p page) int {
	length := p.end - p.start
	quarter := length / 4
	if quarter == 0 {
		return p.start + length/2
	}

	labels := make([]string, 4)
	for i := 0; i < 4; i++ {
		qStart := p.start + i*quarter
		qEnd := qStart + quarter
		if i == 3 {
			qEnd = p.end
		}
		labels[i] = s.labelFor(ctx, text[qStart:qEnd])
	}

	for i := 0; i < 3; i++ {
		if !strings.EqualFold(labels[i], labels[i+1]) {
			return p.start + (i+1)*quarter
		}
	}
	// No differing quarter pair found, fall back to the midpoint.
	return p.start + length/2
}

// labelFor asks the classifier for a short topic label. On failure it
// degrades to the excerpt's first words so segmentation always
// completes.
func (s *Segmenter) labelFor(ctx context.Context, excerpt string) string {
	excerpt = strings.TrimSpace(excerpt)
	if excerpt == "" {
		return ""
	}
	label, err := s.classifier.SummariseTopic(ctx, excerpt, maxTopicLabelWords)
	label = strings.TrimSpace(label)
	if err != nil || label == "" {
		logger.Warn("Topic summary failed, using first words: %v", err)
		return firstWords(excerpt, maxTopicLabelWords)
	}
	return firstWords(label, maxTopicLabelWords)
}

// ==================== Phase 4: chunk formation ====================

// formChunks converts topic segments into globally indexed chunks and
// prefixes every chunk after the first with the previous chunk's tail.
func (s *Segmenter) formChunks(documentID, text string, segments []topicSegment) []domain.Chunk {
	var chunks []domain.Chunk
	for _, seg := range segments {
		for _, sp := range s.segmentSpans(text, seg) {
			content := text[sp.start:sp.end]
			chunks = append(chunks, domain.Chunk{
				ID:              uuid.NewString(),
				DocumentID:      documentID,
				Index:           len(chunks),
				Content:         content,
				TokenCount:      s.estimator.Estimate(content),
				StartChar:       sp.start,
				EndChar:         sp.end,
				SectionTitle:    seg.topic,
				PageNumbers:     append([]int(nil), seg.pages...),
				EmbeddingStatus: domain.EmbeddingPending,
			})
		}
	}

	// Overlap prefixes come from the original (pre-prefix) contents.
	for i := len(chunks) - 1; i >= 1; i-- {
		tail := s.overlapTail(chunks[i-1].Content)
		if tail == "" {
			continue
		}
		chunks[i].Content = domain.OverlapMarker + tail + "\n\n" + chunks[i].Content
		chunks[i].TokenCount = s.estimator.Estimate(chunks[i].Content)
	}
	return chunks
}

// span is a half-open byte range of the document text.
type span struct {
	start, end int
}

// segmentSpans splits one segment into chunk spans. Segments within the
// token ceiling stay whole; larger ones accumulate whole paragraphs
// (sentences when the segment has no paragraph breaks) up to the target.
func (s *Segmenter) segmentSpans(text string, seg topicSegment) []span {
	segText := text[seg.start:seg.end]
	if s.estimator.Estimate(segText) <= s.cfg.MaxChunkTokens {
		return []span{{start: seg.start, end: seg.end}}
	}

	units := tileUnits(segText, paragraphBreak)
	if len(units) <= 1 {
		units = tileUnits(segText, sentenceEnd)
	}

	var spans []span
	var cur *span
	curTokens := 0
	for _, u := range units {
		unitTokens := s.estimator.Estimate(segText[u.start:u.end])
		if cur != nil && curTokens+unitTokens > s.cfg.TargetChunkTokens {
			spans = append(spans, *cur)
			cur = nil
		}
		if cur == nil {
			cur = &span{start: seg.start + u.start, end: seg.start + u.end}
			curTokens = unitTokens
			continue
		}
		cur.end = seg.start + u.end
		curTokens += unitTokens
	}
	if cur != nil {
		spans = append(spans, *cur)
	}
	return spans
}

// tileUnits splits text at separator matches into contiguous unit spans
// (each unit keeps its trailing separator, so units tile the text with
// no gaps).
func tileUnits(text string, separator *regexp.Regexp) []span {
	matches := separator.FindAllStringIndex(text, -1)
	var units []span
	prev := 0
	for _, m := range matches {
		if m[1] >= len(text) {
			break
		}
		if m[1] > prev {
			units = append(units, span{start: prev, end: m[1]})
			prev = m[1]
		}
	}
	if prev < len(text) {
		units = append(units, span{start: prev, end: len(text)})
	}
	return units
}

// overlapTail returns the trailing ~OverlapTokens worth of content,
// cut at a word boundary.
func (s *Segmenter) overlapTail(content string) string {
	budget := token.CharBudget(s.cfg.OverlapTokens)
	if len(content) <= budget {
		return strings.TrimSpace(content)
	}
	tail := content[len(content)-budget:]
	if sp := strings.IndexByte(tail, ' '); sp >= 0 && sp+1 < len(tail) {
		tail = tail[sp+1:]
	}
	return strings.TrimSpace(tail)
}

// tagChunks classifies each chunk's non-overlap content independently.
// A classifier failure leaves that chunk untagged rather than aborting
// the run.
func (s *Segmenter) tagChunks(ctx context.Context, text string, chunks []domain.Chunk) {
	for i := range chunks {
		info, err := s.classifier.Classify(ctx, text[chunks[i].StartChar:chunks[i].EndChar])
		if err != nil {
			logger.Warn("Chunk %d classification failed, leaving untagged: %v",
				chunks[i].Index, err)
			continue
		}
		chunks[i].Topics = info.Topics
		chunks[i].PrimaryTopic = info.PrimaryTopic
		chunks[i].KeyConcepts = info.KeyConcepts
	}
}

// ==================== Topic & concept map assembly ====================

// buildTopics materialises one topic row per segment, associating the
// chunks and key concepts that landed in it.
func buildTopics(documentID string, segments []topicSegment, chunks []domain.Chunk) []domain.Topic {
	topics := make([]domain.Topic, 0, len(segments))
	for _, seg := range segments {
		t := domain.Topic{
			ID:          uuid.NewString(),
			DocumentID:  documentID,
			Name:        seg.topic,
			StartChar:   seg.start,
			EndChar:     seg.end,
			PageNumbers: append([]int(nil), seg.pages...),
		}
		conceptSet := make(map[string]struct{})
		for _, c := range chunks {
			if c.StartChar >= seg.start && c.StartChar < seg.end {
				t.ChunkIDs = append(t.ChunkIDs, c.ID)
				for _, kc := range c.KeyConcepts {
					conceptSet[strings.ToLower(strings.TrimSpace(kc))] = struct{}{}
				}
			}
		}
		t.KeyConcepts = sortedKeys(conceptSet)
		topics = append(topics, t)
	}
	return topics
}

// buildConceptMap inverts chunk->concept associations into a concept
// graph. For each lower-cased topic or key concept, it records the
// chunks containing it and up to MaxRelatedConcepts co-occurring
// concepts.
func buildConceptMap(documentID string, chunks []domain.Chunk) *domain.ConceptMap {
	chunkConcepts := make(map[string][]string, len(chunks))
	conceptChunks := make(map[string][]string)

	for _, c := range chunks {
		seen := make(map[string]struct{})
		for _, raw := range append(append([]string(nil), c.Topics...), c.KeyConcepts...) {
			concept := strings.ToLower(strings.TrimSpace(raw))
			if concept == "" {
				continue
			}
			if _, dup := seen[concept]; dup {
				continue
			}
			seen[concept] = struct{}{}
			chunkConcepts[c.ID] = append(chunkConcepts[c.ID], concept)
			conceptChunks[concept] = append(conceptChunks[concept], c.ID)
		}
	}

	cm := &domain.ConceptMap{
		DocumentID: documentID,
		Entries:    make(map[string]domain.ConceptEntry, len(conceptChunks)),
	}
	for concept, chunkIDs := range conceptChunks {
		relatedSet := make(map[string]struct{})
		for _, chunkID := range chunkIDs {
			for _, other := range chunkConcepts[chunkID] {
				if other != concept {
					relatedSet[other] = struct{}{}
				}
			}
		}
		related := sortedKeys(relatedSet)
		if len(related) > domain.MaxRelatedConcepts {
			related = related[:domain.MaxRelatedConcepts]
		}
		cm.Entries[concept] = domain.ConceptEntry{
			ChunkIDs: chunkIDs,
			Related:  related,
		}
		cm.TotalRelationships += len(related)
	}
	cm.TotalConcepts = len(cm.Entries)
	return cm
}

// ==================== helpers ====================

func headChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}

func tailChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[len(text)-n:]
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
