// Package inference runs the transcription and diarization collaborators on
// a chunk and pairs their chunk-local results.
package inference
