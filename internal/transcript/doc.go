// Package transcript aligns chunk-local inference output onto the stream
// timeline, merges words with speaker intervals into attributed segments, and
// keeps and exports the cumulative transcript.
package transcript
