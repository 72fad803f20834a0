package driving

import "context"

// DocumentSegmenter turns a document's full text into an ordered list of
// topically coherent chunks plus a concept map, replacing any prior
// segmentation for that document.
type DocumentSegmenter interface {
	// SegmentDocument runs the full segmentation pipeline for the
	// document. On failure the document is marked failed and must be
	// re-segmented from scratch; there is no partial state.
	SegmentDocument(ctx context.Context, documentID string) error
}
