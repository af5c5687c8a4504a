// ABOUTME: Sendspin wire protocol package
// ABOUTME: Defines the player's control messages and binary audio chunk framing
// Package protocol holds the Sendspin messages a player exchanges with a
// server: the hello handshake, stream start/clear/end, player commands and
// state, and the binary audio chunk framing.
//
// Example:
//
//	msg := protocol.EncodeAudioChunk(protocol.AudioChunk{Timestamp: ts, Data: payload})
//	chunk, err := protocol.DecodeAudioChunk(msg)
package protocol
