// Package diarization provides the speaker segmentation collaborator client
// and turns its frame-level logits into labeled speaker intervals.
package diarization
