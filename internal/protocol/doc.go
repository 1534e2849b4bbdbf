// Package protocol implements the TLV datagram format used to stream audio
// into the service over UDP: an 8-byte header followed by a Start, Audio or
// Stop payload. It parses, validates and builds packets and converts audio
// payloads between their wire encoding and float32 samples.
package protocol
