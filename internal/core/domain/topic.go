package domain

// Topic is one detected topic segment of a document. ParentID supports a
// topic hierarchy; the base pipeline leaves it unset.
type Topic struct {
	ID          string
	DocumentID  string
	Name        string
	ParentID    *string
	StartChar   int
	EndChar     int
	PageNumbers []int
	ChunkIDs    []string
	KeyConcepts []string
}
