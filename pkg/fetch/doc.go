// ABOUTME: Network fetch layer for the decode pipeline
// ABOUTME: HTTP and Sendspin WebSocket transports filling the input buffer

// Package fetch moves compressed audio from the network into a Sink, the
// input side of a stream.Stream. A fetcher is the only writer of the input
// buffer; it reports its connection state and starts tracks by content type.
package fetch
