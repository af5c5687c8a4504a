// ABOUTME: Ogg container demultiplexing
// ABOUTME: Page sync, CRC verification and packet reassembly for streamed input

// Package ogg demultiplexes Ogg bitstreams that arrive in arbitrary chunks.
//
// Sync finds and verifies pages in a byte stream, resynchronising after
// garbage or corrupt pages. Stream turns the pages of one logical stream
// into packets, joining packets that span pages and dropping partial packets
// when pages go missing.
package ogg
