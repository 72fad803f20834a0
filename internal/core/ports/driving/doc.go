// Package driving provides interfaces exposed to external actors
// (primary/inbound ports): the pipeline entry points consumed by the
// surrounding application.
package driving
