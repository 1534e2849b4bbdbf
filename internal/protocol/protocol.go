package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/skypro1111/stream-diarizer/internal/audio"
)

// Protocol constants
const (
	// Packet types
	PacketTypeStart = 0x01
	PacketTypeAudio = 0x02
	PacketTypeStop  = 0x03

	// Sample encodings
	EncodingFloat32 = 0x01 // 32-bit float, little endian
	EncodingPCM16   = 0x02 // 16-bit signed PCM, little endian

	// Packet structure sizes
	HeaderSize             = 8 // 1 + 2 + 4 + 1 bytes
	ControlPayloadSize     = LanguageSize
	AudioPayloadHeaderSize = 4 // Sequence number (4 bytes)

	// LanguageSize is the NUL-padded language code field of Start/Stop
	LanguageSize = 8

	// MaxPacketSize is the largest datagram the 16-bit length can describe
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte TLV packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Encoding:1]
type Header struct {
	PacketType uint8  // 0x01=Start, 0x02=Audio, 0x03=Stop
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Unique stream identifier
	Encoding   uint8  // 0x01=float32, 0x02=PCM16
}

// ControlPayload is the payload of Start and Stop packets
// Layout: [Language:8]
type ControlPayload struct {
	Language [LanguageSize]byte // Null-terminated string (8 bytes)
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32 // Packet sequence number
	AudioData []byte // Encoded samples (variable length)
}

// ParsedPacket represents a fully parsed TLV packet
type ParsedPacket struct {
	Header  *Header
	Control *ControlPayload // Only set for start and stop packets
	Audio   *AudioPayload   // Only set for audio packets
}

// ParseHeader parses the 8-byte TLV packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Encoding:   data[7],
	}

	return header, nil
}

// ParseControlPayload parses the 8-byte start/stop payload
func ParseControlPayload(data []byte) (*ControlPayload, error) {
	if len(data) < ControlPayloadSize {
		return nil, fmt.Errorf("control payload too short: expected %d bytes, got %d",
			ControlPayloadSize, len(data))
	}

	payload := &ControlPayload{}
	copy(payload.Language[:], data[:LanguageSize])
	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}

	// Copy audio data (remaining bytes after sequence)
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParsePacket parses a complete TLV packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeStart, PacketTypeStop:
		payload, err := ParseControlPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse control payload: %w", err)
		}
		packet.Control = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if !IsValidEncoding(header.Encoding) {
		return fmt.Errorf("invalid encoding: 0x%02x", header.Encoding)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeStart, PacketTypeStop:
		if payloadSize != ControlPayloadSize {
			return fmt.Errorf("control packet payload size mismatch: expected %d, got %d",
				ControlPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
		if (payloadSize-AudioPayloadHeaderSize)%BytesPerSample(header.Encoding) != 0 {
			return fmt.Errorf("audio data of %d bytes is not a whole number of samples",
				payloadSize-AudioPayloadHeaderSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeStart || ptype == PacketTypeAudio || ptype == PacketTypeStop
}

// IsValidEncoding checks if the sample encoding is valid
func IsValidEncoding(enc uint8) bool {
	return enc == EncodingFloat32 || enc == EncodingPCM16
}

// BytesPerSample returns the encoded sample width, or 1 for unknown encodings
func BytesPerSample(enc uint8) int {
	switch enc {
	case EncodingFloat32:
		return 4
	case EncodingPCM16:
		return 2
	default:
		return 1
	}
}

// DecodeSamples converts encoded audio data into float32 samples
func DecodeSamples(data []byte, enc uint8) ([]float32, error) {
	switch enc {
	case EncodingFloat32:
		return audio.DecodeFloat32LE(data)
	case EncodingPCM16:
		return audio.DecodePCM16LE(data)
	default:
		return nil, fmt.Errorf("invalid encoding: 0x%02x", enc)
	}
}

// EncodeSamples converts float32 samples into the given encoding
func EncodeSamples(samples []float32, enc uint8) ([]byte, error) {
	switch enc {
	case EncodingFloat32:
		return audio.EncodeFloat32LE(samples), nil
	case EncodingPCM16:
		pcm := audio.FloatToPCM16(samples)
		data := make([]byte, 2*len(pcm))
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
		}
		return data, nil
	default:
		return nil, fmt.Errorf("invalid encoding: 0x%02x", enc)
	}
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	nullPos := len(buf)
	for i, b := range buf {
		if b == 0 {
			nullPos = i
			break
		}
	}
	return string(buf[:nullPos])
}

// GetLanguage extracts the language code as a string
func (c *ControlPayload) GetLanguage() string {
	return ExtractString(c.Language[:])
}

// Samples decodes the audio data with the given encoding
func (a *AudioPayload) Samples(enc uint8) ([]float32, error) {
	return DecodeSamples(a.AudioData, enc)
}

// BuildControlPacket builds a Start or Stop packet
func BuildControlPacket(packetType uint8, streamID uint32, encoding uint8, language string) ([]byte, error) {
	if packetType != PacketTypeStart && packetType != PacketTypeStop {
		return nil, fmt.Errorf("not a control packet type: 0x%02x", packetType)
	}
	if len(language) > LanguageSize {
		return nil, fmt.Errorf("language %q longer than %d bytes", language, LanguageSize)
	}

	data := make([]byte, HeaderSize+ControlPayloadSize)
	putHeader(data, packetType, streamID, encoding)
	copy(data[HeaderSize:], language)
	return data, nil
}

// BuildAudioPacket builds an Audio packet carrying samples in the given encoding
func BuildAudioPacket(streamID uint32, encoding uint8, sequence uint32, samples []float32) ([]byte, error) {
	payload, err := EncodeSamples(samples, encoding)
	if err != nil {
		return nil, err
	}

	size := HeaderSize + AudioPayloadHeaderSize + len(payload)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("audio packet of %d bytes exceeds %d", size, MaxPacketSize)
	}

	data := make([]byte, size)
	putHeader(data, PacketTypeAudio, streamID, encoding)
	binary.BigEndian.PutUint32(data[HeaderSize:], sequence)
	copy(data[HeaderSize+AudioPayloadHeaderSize:], payload)
	return data, nil
}

// MaxSamplesPerPacket returns how many samples fit in one audio datagram
func MaxSamplesPerPacket(encoding uint8) int {
	return (MaxPacketSize - HeaderSize - AudioPayloadHeaderSize) / BytesPerSample(encoding)
}

func putHeader(data []byte, packetType uint8, streamID uint32, encoding uint8) {
	data[0] = packetType
	binary.BigEndian.PutUint16(data[1:3], uint16(len(data)))
	binary.BigEndian.PutUint32(data[3:7], streamID)
	data[7] = encoding
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType, encoding string

	switch h.PacketType {
	case PacketTypeStart:
		packetType = "Start"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeStop:
		packetType = "Stop"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	switch h.Encoding {
	case EncodingFloat32:
		encoding = "Float32"
	case EncodingPCM16:
		encoding = "PCM16"
	default:
		encoding = fmt.Sprintf("Unknown(0x%02x)", h.Encoding)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Encoding:%s}",
		packetType, h.PacketLen, h.StreamID, encoding)
}

// String returns a human-readable representation of the control payload
func (c *ControlPayload) String() string {
	return fmt.Sprintf("ControlPayload{Language:%q}", c.GetLanguage())
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
