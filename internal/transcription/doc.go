// Package transcription provides clients for speech recognition collaborators
// that return word-level, chunk-local timestamps.
package transcription
