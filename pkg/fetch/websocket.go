// ABOUTME: Sendspin WebSocket transport for the player role
// ABOUTME: Performs the hello handshake, maps stream messages to tracks and feeds audio chunks
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/output"
	"github.com/Sendspin/sendspin-core/pkg/protocol"
	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the wait for server/hello.
const DefaultHandshakeTimeout = 5 * time.Second

// WebSocketConfig holds the player's identity and capabilities.
type WebSocketConfig struct {
	URL        string // e.g. ws://host:8927/sendspin
	ClientID   string
	Name       string
	DeviceInfo protocol.DeviceInfo
	Formats    []protocol.AudioFormat
	// BufferCapacity is advertised to the server, in bytes.
	BufferCapacity int
	// Mixer receives volume and mute commands. Optional.
	Mixer output.Mixer

	HandshakeTimeout time.Duration
	PollInterval     time.Duration
}

// WebSocket is a Sendspin player connection.
type WebSocket struct {
	cfg WebSocketConfig

	mu   sync.Mutex // serializes writes
	conn *websocket.Conn

	// Read loop state
	track   *protocol.StreamStartPlayer
	ended   bool // stream/end seen, the sink may still be decoding its tail
	dropped int
}

// NewWebSocket creates a player connection.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &WebSocket{cfg: cfg}
}

// Run connects, performs the handshake and feeds sink until the server
// closes the connection or ctx is cancelled.
func (w *WebSocket) Run(ctx context.Context, sink Sink) error {
	sink.SetConnState(decode.Connecting)
	defer sink.SetConnState(decode.Disconnected)

	log.Printf("Connecting to %s", w.cfg.URL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	w.conn = conn
	defer conn.Close()

	if err := w.handshake(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	// Unblock the read loop on cancellation.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			w.goodbye("shutdown")
			conn.Close()
		case <-stop:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			err = w.handleBinaryMessage(ctx, sink, data)
		case websocket.TextMessage:
			err = w.handleJSONMessage(ctx, sink, data)
		}
		if err != nil {
			// Only cancellation or a closed sink fails a handler.
			return nil
		}
	}
}

// handshake sends client/hello, waits for server/hello and reports state.
func (w *WebSocket) handshake() error {
	hello := protocol.ClientHello{
		ClientID:       w.cfg.ClientID,
		Name:           w.cfg.Name,
		Version:        1,
		SupportedRoles: []string{"player@v1"},
		DeviceInfo:     &w.cfg.DeviceInfo,
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats:  w.cfg.Formats,
			BufferCapacity:    w.cfg.BufferCapacity,
			SupportedCommands: []string{"volume", "mute"},
		},
	}
	if err := w.send("client/hello", hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	w.conn.SetReadDeadline(time.Now().Add(w.cfg.HandshakeTimeout))
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	w.conn.SetReadDeadline(time.Time{})

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if env.Type != "server/hello" {
		return fmt.Errorf("expected server/hello, got %s", env.Type)
	}
	var server protocol.ServerHello
	if err := env.Decode(&server); err != nil {
		return err
	}
	log.Printf("Handshake complete with server %q", server.Name)

	return w.sendState()
}

func (w *WebSocket) sendState() error {
	state := &protocol.PlayerState{State: "synchronized", Volume: 100}
	if w.cfg.Mixer != nil {
		state.Volume = w.cfg.Mixer.GetVolume()
		state.Muted = w.cfg.Mixer.IsMuted()
	}
	return w.send("client/state", protocol.ClientStateMessage{Player: state})
}

func (w *WebSocket) goodbye(reason string) {
	if err := w.send("client/goodbye", protocol.ClientGoodbye{Reason: reason}); err != nil {
		log.Printf("Failed to send client/goodbye: %v", err)
	}
}

func (w *WebSocket) send(msgType string, payload interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.cfg.HandshakeTimeout))
	return w.conn.WriteJSON(protocol.Message{Type: msgType, Payload: payload})
}

// handleBinaryMessage feeds an audio chunk. It returns an error only when
// ctx ends while waiting for input space.
func (w *WebSocket) handleBinaryMessage(ctx context.Context, sink Sink, data []byte) error {
	chunk, err := protocol.DecodeAudioChunk(data)
	if err != nil {
		log.Printf("Invalid binary message: %v", err)
		return nil
	}
	if w.track == nil {
		w.dropped++
		if w.dropped == 1 {
			log.Printf("Dropping audio received before stream/start")
		}
		return nil
	}
	return feed(ctx, sink, chunk.Data, w.cfg.PollInterval)
}

func (w *WebSocket) handleJSONMessage(ctx context.Context, sink Sink, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return nil
	}

	switch env.Type {
	case "stream/start":
		var start protocol.StreamStart
		if err := env.Decode(&start); err != nil {
			log.Printf("%v", err)
			return nil
		}
		if start.Player == nil {
			return nil
		}
		if w.ended {
			if err := sink.WaitTrackEnd(ctx); err != nil {
				return err
			}
			w.ended = false
		}
		w.track = start.Player
		return w.startTrack(ctx, sink, true)

	case "stream/clear":
		if w.track == nil {
			return nil
		}
		log.Printf("Clearing buffers")
		sink.Flush()
		return w.startTrack(ctx, sink, false)

	case "stream/end":
		log.Printf("Stream ended by server")
		w.track = nil
		w.ended = true
		sink.SetConnState(decode.Disconnected)

	case "server/command":
		var cmd protocol.ServerCommandMessage
		if err := env.Decode(&cmd); err != nil {
			log.Printf("%v", err)
			return nil
		}
		if cmd.Player != nil {
			w.handleCommand(*cmd.Player)
		}

	default:
		log.Printf("Ignoring message type: %s", env.Type)
	}
	return nil
}

// startTrack opens the current stream format on the sink and queues its
// codec header. A codec the sink rejects is reported and the stream's audio
// is dropped.
func (w *WebSocket) startTrack(ctx context.Context, sink Sink, fadeIn bool) error {
	p := w.track
	log.Printf("Stream starting: %s %dHz %dch %dbit", p.Codec, p.SampleRate, p.Channels, p.BitDepth)

	sink.SetConnState(decode.Connecting)
	hint := decode.Hint{SampleSize: p.BitDepth, SampleRate: p.SampleRate, Channels: p.Channels}
	if _, err := sink.StartTrack(p.Codec, hint, fadeIn); err != nil {
		log.Printf("Cannot play stream: %v", err)
		w.track = nil
		return nil
	}
	sink.SetConnState(decode.Streaming)

	if p.CodecHeader == "" {
		return nil
	}
	header, err := base64.StdEncoding.DecodeString(p.CodecHeader)
	if err != nil {
		log.Printf("Invalid codec header: %v", err)
		return nil
	}
	return feed(ctx, sink, header, w.cfg.PollInterval)
}

func (w *WebSocket) handleCommand(cmd protocol.PlayerCommand) {
	if w.cfg.Mixer == nil {
		log.Printf("Ignoring %s command: no mixer", cmd.Command)
		return
	}
	switch cmd.Command {
	case "volume":
		w.cfg.Mixer.SetVolume(cmd.Volume)
	case "mute":
		w.cfg.Mixer.SetMuted(cmd.Mute)
	default:
		log.Printf("Unknown command: %s", cmd.Command)
		return
	}
	if err := w.sendState(); err != nil {
		log.Printf("Failed to send client/state: %v", err)
	}
}
