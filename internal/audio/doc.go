// Package audio handles sample buffering, chunk geometry and format conversion.
// It implements the prefix-drained sample buffer with overlap retention, datagram
// reordering for sequenced sources, and WAV/PCM encoding for model collaborators.
package audio
