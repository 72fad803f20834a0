// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): provider capabilities, the chunk store
// collaborator and the retrieval cache.
package driven
