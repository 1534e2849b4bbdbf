package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/skypro1111/stream-diarizer/internal/protocol"
	"github.com/skypro1111/stream-diarizer/internal/stream"
)

const wsWriteTimeout = 10 * time.Second

// wsCommand is a text frame sent by a WebSocket client
type wsCommand struct {
	Type     string `json:"type"` // start, stop or info
	Language string `json:"language,omitempty"`
}

// wsReply answers a command or reports a rejected frame
type wsReply struct {
	Type    string              `json:"type"` // ack or error
	Command string              `json:"command,omitempty"`
	Session *stream.SessionInfo `json:"session,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// handleWebSocket implements GET /ws. Binary frames carry audio in the
// ?encoding= format, text frames carry JSON commands, and session events are
// pushed to the client as JSON text frames.
func (h *HTTPServer) handleWebSocket(c *gin.Context) {
	encoding, err := parseEncoding(c.Query("encoding"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	language := c.Query("language")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(h.opts.Config.MaxBodyMB) << 20)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var events <-chan stream.Event
	if h.opts.Events != nil {
		ch, unsubscribe := h.opts.Events.Subscribe(h.opts.EventBuffer)
		defer unsubscribe()
		events = ch
	}

	replies := make(chan wsReply, 16)
	writerDone := make(chan struct{})
	go h.wsWriter(ctx, cancel, conn, events, replies, writerDone)

	h.logger.Info("WebSocket client connected", slog.String("remote_addr", c.ClientIP()))

	reply := func(r wsReply) {
		select {
		case replies <- r:
		case <-ctx.Done():
		}
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket read failed", slog.String("error", err.Error()))
			}
			break
		}

		switch messageType {
		case websocket.BinaryMessage:
			samples, err := protocol.DecodeSamples(data, encoding)
			if err != nil {
				reply(wsReply{Type: "error", Error: err.Error()})
				continue
			}
			if err := h.opts.Session.Feed(ctx, samples, language); err != nil {
				reply(wsReply{Type: "error", Command: "feed", Error: err.Error()})
			}

		case websocket.TextMessage:
			reply(h.wsExecute(ctx, data))
		}
	}

	cancel()
	<-writerDone
	h.logger.Info("WebSocket client disconnected", slog.String("remote_addr", c.ClientIP()))
}

func (h *HTTPServer) wsExecute(ctx context.Context, data []byte) wsReply {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return wsReply{Type: "error", Error: fmt.Sprintf("invalid command: %v", err)}
	}

	var err error
	switch cmd.Type {
	case "start":
		err = h.opts.Session.Start(ctx, cmd.Language)
	case "stop":
		err = h.opts.Session.Stop(ctx, cmd.Language)
	case "info":
	default:
		return wsReply{Type: "error", Command: cmd.Type, Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
	if err != nil {
		return wsReply{Type: "error", Command: cmd.Type, Error: err.Error()}
	}

	info := h.opts.Session.Info()
	return wsReply{Type: "ack", Command: cmd.Type, Session: &info}
}

// wsWriter is the only goroutine writing to conn
func (h *HTTPServer) wsWriter(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn,
	events <-chan stream.Event, replies <-chan wsReply, done chan<- struct{}) {
	defer close(done)

	write := func(v any) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return false
		}
		if err := conn.WriteJSON(v); err != nil {
			h.logger.Warn("WebSocket write failed", slog.String("error", err.Error()))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !write(e) {
				cancel()
				conn.Close()
				return
			}

		case r := <-replies:
			if !write(r) {
				cancel()
				conn.Close()
				return
			}
		}
	}
}
