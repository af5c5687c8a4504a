// ABOUTME: Sendspin Protocol message type definitions
// ABOUTME: Defines the JSON control messages and binary audio chunk framing used by the player
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

const (
	BinaryMessageHeaderSize = 1 + 8 // 1 byte type + 8 byte timestamp

	AudioChunkMessageType = 4
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received message whose payload is decoded by type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID        string           `json:"client_id"`
	Name            string           `json:"name"`
	Version         int              `json:"version"`
	SupportedRoles  []string         `json:"supported_roles"`
	DeviceInfo      *DeviceInfo      `json:"device_info,omitempty"`
	PlayerV1Support *PlayerV1Support `json:"player@v1_support,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerV1Support describes player@v1 capabilities
type PlayerV1Support struct {
	SupportedFormats  []AudioFormat `json:"supported_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`
}

// AudioFormat describes a supported audio format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID         string   `json:"server_id"`
	Name             string   `json:"name"`
	Version          int      `json:"version"`
	ActiveRoles      []string `json:"active_roles"`
	ConnectionReason string   `json:"connection_reason"` // "discovery" or "playback"
}

// ClientStateMessage is sent as client/state with role-specific objects
type ClientStateMessage struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerState reports the player's current state
type PlayerState struct {
	State  string `json:"state"`            // "synchronized" or "error"
	Volume int    `json:"volume,omitempty"` // 0-100, if volume command supported
	Muted  bool   `json:"muted,omitempty"`  // if mute command supported
}

// ServerCommandMessage is sent as server/command with role-specific objects
type ServerCommandMessage struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// PlayerCommand is a control command for the player
type PlayerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// StreamStartPlayer contains the audio format details
type StreamStartPlayer struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // Base64-encoded
}

// StreamStart notifies the client of stream format
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// StreamClear instructs clients to clear buffers (for seek)
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends streams for specified roles
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"` // omit = all
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "another_server", "shutdown", "restart", "user_request"
}

// AudioChunk is a timestamped piece of encoded audio
type AudioChunk struct {
	Timestamp int64  // Microseconds, server clock
	Data      []byte // Encoded audio
}

// EncodeAudioChunk frames a chunk as a binary message.
func EncodeAudioChunk(c AudioChunk) []byte {
	msg := make([]byte, BinaryMessageHeaderSize, BinaryMessageHeaderSize+len(c.Data))
	msg[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(msg[1:], uint64(c.Timestamp))
	return append(msg, c.Data...)
}

// DecodeAudioChunk parses a binary message. Data aliases msg.
func DecodeAudioChunk(msg []byte) (AudioChunk, error) {
	if len(msg) < BinaryMessageHeaderSize {
		return AudioChunk{}, fmt.Errorf("binary message too short: %d bytes", len(msg))
	}
	if msg[0] != AudioChunkMessageType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", msg[0])
	}
	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(msg[1:BinaryMessageHeaderSize])),
		Data:      msg[BinaryMessageHeaderSize:],
	}, nil
}
