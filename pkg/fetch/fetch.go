// ABOUTME: Sink interface and input buffer feeding shared by the transports
// ABOUTME: Copies network bytes into the ring, waiting while the decoder catches up
package fetch

import (
	"context"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
	"github.com/google/uuid"
)

// DefaultPollInterval is how long a fetcher waits for input space.
const DefaultPollInterval = 5 * time.Millisecond

// Sink is the receiving side of a transport.
type Sink interface {
	Input() *ring.Buffer[byte]
	SetConnState(decode.ConnState)
	StartTrack(contentType string, hint decode.Hint, fadeIn bool) (uuid.UUID, error)
	Flush()
	Wake()
	// WaitTrackEnd blocks until the current track has finished decoding.
	WaitTrackEnd(ctx context.Context) error
}

// feed copies p into the sink's input buffer, waiting for space as needed.
// It returns early only when ctx is done.
func feed(ctx context.Context, sink Sink, p []byte, poll time.Duration) error {
	in := sink.Input()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for len(p) > 0 {
		if n := in.Write(p); n > 0 {
			p = p[n:]
			sink.Wake()
			continue
		}

		if timer == nil {
			timer = time.NewTimer(poll)
		} else {
			timer.Reset(poll)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
