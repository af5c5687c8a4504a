// ABOUTME: Track lifecycle events published by the stream
// ABOUTME: Each event carries the ID assigned to the track when it was started
package stream

import (
	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/google/uuid"
)

// Event is a track lifecycle notification.
type Event interface {
	TrackID() uuid.UUID
}

// TrackStarted is published when the first frames of a track are queued for
// output. A chained stream publishes it again with the same ID.
type TrackStarted struct {
	ID     uuid.UUID
	Codec  string
	Format audio.Format
}

// TrackComplete is published when a track ends normally.
type TrackComplete struct {
	ID uuid.UUID
}

// TrackFailed is published when a track is aborted.
type TrackFailed struct {
	ID  uuid.UUID
	Err error
}

func (e TrackStarted) TrackID() uuid.UUID  { return e.ID }
func (e TrackComplete) TrackID() uuid.UUID { return e.ID }
func (e TrackFailed) TrackID() uuid.UUID   { return e.ID }
