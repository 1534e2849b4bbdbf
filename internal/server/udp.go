package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/config"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/protocol"
	"github.com/skypro1111/stream-diarizer/internal/stream"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Controller is the session surface the servers drive
type Controller interface {
	Start(ctx context.Context, language string) error
	Feed(ctx context.Context, samples []float32, language string) error
	Stop(ctx context.Context, language string) error
	Info() stream.SessionInfo
	Transcript() []transcript.Segment
}

// UDPServer receives TLV datagrams and feeds them to the session. Packets are
// handled by a single processor so audio reaches the session in arrival
// order; the session is pinned to the stream id of the Start packet until
// the matching Stop.
type UDPServer struct {
	conn      *net.UDPConn
	config    *config.ServerConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	session   Controller
	sequencer *audio.Sequencer

	// Concurrency management
	ctx       context.Context
	cancel    context.CancelFunc
	recvWG    sync.WaitGroup
	processWG sync.WaitGroup

	packetChan chan *incomingPacket

	// Owned by the processor, read by GetStatistics
	pinned   bool
	streamID uint32

	packetsReceived  uint64
	packetsProcessed uint64
	packetsDropped   uint64
	parseErrors      uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// ServerStatistics represents UDP ingest counters
type ServerStatistics struct {
	PacketsReceived  uint64               `json:"packets_received"`
	PacketsProcessed uint64               `json:"packets_processed"`
	PacketsDropped   uint64               `json:"packets_dropped"`
	ParseErrors      uint64               `json:"parse_errors"`
	QueueSize        uint64               `json:"queue_size"`
	QueueCapacity    uint64               `json:"queue_capacity"`
	Pinned           bool                 `json:"pinned"`
	StreamID         uint32               `json:"stream_id,omitempty"`
	Sequencer        audio.SequencerStats `json:"sequencer"`
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, session Controller, m *metrics.Metrics, logger *slog.Logger) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = slog.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		session:    session,
		sequencer:  audio.NewSequencer(uint32(cfg.MaxSeqGap)),
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, queueSize),
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	s.processWG.Add(1)
	go s.packetProcessor()

	s.recvWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound local address, nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server. Queued packets are processed first.
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// the receiver must be gone before the channel closes
	s.recvWG.Wait()
	close(s.packetChan)
	s.processWG.Wait()
	s.cancel()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.recvWG.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
			s.metrics.SetQueueSize(len(s.packetChan))
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()

			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor handles queued packets one at a time
func (s *UDPServer) packetProcessor() {
	defer s.processWG.Done()

	for packet := range s.packetChan {
		s.handlePacket(packet)
		s.metrics.SetQueueSize(len(s.packetChan))
	}
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.recordParseError()
		s.logger.Error("Failed to parse packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	s.metrics.RecordPacketProcessed()

	switch parsed.Header.PacketType {
	case protocol.PacketTypeStart:
		s.processStartPacket(parsed.Header, parsed.Control)
	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsed.Header, parsed.Audio)
	case protocol.PacketTypeStop:
		s.processStopPacket(parsed.Header, parsed.Control)
	}
}

func (s *UDPServer) processStartPacket(header *protocol.Header, payload *protocol.ControlPayload) {
	pinned, current := s.pinnedStream()
	if pinned {
		if current == header.StreamID {
			s.logger.Debug("Duplicate start packet", slog.Uint64("stream_id", uint64(header.StreamID)))
			return
		}
		s.logger.Warn("Ignoring start packet, session pinned to another stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("pinned_stream_id", uint64(current)),
		)
		return
	}

	language := payload.GetLanguage()
	if err := s.session.Start(s.ctx, language); err != nil {
		s.logger.Error("Failed to start session from UDP stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.sequencer.Reset()
	s.pin(header.StreamID)

	s.logger.Info("UDP stream started",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("language", language),
	)
}

func (s *UDPServer) processAudioPacket(header *protocol.Header, payload *protocol.AudioPayload) {
	if !s.accepts(header.StreamID) {
		s.recordDropped()
		s.logger.Warn("Dropping audio packet for unpinned stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
		)
		return
	}

	samples, err := payload.Samples(header.Encoding)
	if err != nil {
		s.recordParseError()
		s.logger.Error("Failed to decode audio payload",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
		)
		return
	}

	lostBefore := s.sequencer.GetStats().LostPackets
	batches, err := s.sequencer.Push(payload.Sequence, samples)
	if err != nil {
		s.recordDropped()
		s.logger.Debug("Sequencer rejected packet",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.RecordPacketsLost(int(s.sequencer.GetStats().LostPackets - lostBefore))

	s.feed(header.StreamID, batches)
}

func (s *UDPServer) processStopPacket(header *protocol.Header, payload *protocol.ControlPayload) {
	if !s.accepts(header.StreamID) {
		s.logger.Warn("Ignoring stop packet for unpinned stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
		)
		return
	}

	lostBefore := s.sequencer.GetStats().LostPackets
	s.feed(header.StreamID, s.sequencer.Drain())
	s.metrics.RecordPacketsLost(int(s.sequencer.GetStats().LostPackets - lostBefore))

	// blocks until the final pass completes
	err := s.session.Stop(s.ctx, payload.GetLanguage())
	s.unpin()
	if err != nil {
		s.logger.Error("Failed to stop session from UDP stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("error", err.Error()),
		)
		return
	}

	stats := s.sequencer.GetStats()
	s.logger.Info("UDP stream stopped",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.Uint64("packets", uint64(stats.TotalPackets)),
		slog.Uint64("lost_packets", uint64(stats.LostPackets)),
	)
}

func (s *UDPServer) feed(streamID uint32, batches [][]float32) {
	for _, batch := range batches {
		if err := s.session.Feed(s.ctx, batch, ""); err != nil {
			s.logger.Error("Failed to feed session",
				slog.Uint64("stream_id", uint64(streamID)),
				slog.Int("samples", len(batch)),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, stream.ErrInvalidState) {
				// the session was stopped elsewhere
				s.unpin()
			}
			return
		}
	}
}

func (s *UDPServer) pinnedStream() (bool, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinned, s.streamID
}

func (s *UDPServer) accepts(streamID uint32) bool {
	pinned, current := s.pinnedStream()
	return pinned && current == streamID
}

func (s *UDPServer) pin(streamID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = true
	s.streamID = streamID
}

func (s *UDPServer) unpin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = false
	s.streamID = 0
}

func (s *UDPServer) recordParseError() {
	s.mu.Lock()
	s.parseErrors++
	s.mu.Unlock()
	s.metrics.RecordParseError()
}

func (s *UDPServer) recordDropped() {
	s.mu.Lock()
	s.packetsDropped++
	s.mu.Unlock()
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		PacketsDropped:   s.packetsDropped,
		ParseErrors:      s.parseErrors,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
		Pinned:           s.pinned,
		StreamID:         s.streamID,
		Sequencer:        s.sequencer.GetStats(),
	}
}
