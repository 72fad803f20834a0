// Package services implements the core pipeline: document segmentation,
// embedding indexing and retrieval-context assembly. Services depend
// only on driven ports and domain types.
package services
