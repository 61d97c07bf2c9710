// Package streamfilter implements the per-direction body filter: a staging
// buffer governed by a buffering policy, an ordered edit queue, and offset
// accounting between pre-edit and post-edit byte coordinates.
//
// A Filter is driven one chunk at a time by ApplyChunk. It notifies the
// rules engine of every chunk before applying the configured buffering
// policy, and performs a terminal flush (applying any edits still pending)
// when the input side signals end-of-stream.
package streamfilter
