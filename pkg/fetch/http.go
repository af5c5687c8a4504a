// ABOUTME: HTTP transport streaming a single track into the input buffer
// ABOUTME: Selects the codec from the response Content-Type and reports connection state
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

// HTTP streams one URL as one track.
type HTTP struct {
	URL string
	// ContentType overrides the response's Content-Type when set.
	ContentType string
	// Hint is passed to the codec; rate and channel parameters of the
	// content type fill zero fields.
	Hint   decode.Hint
	FadeIn bool

	Client       *http.Client
	PollInterval time.Duration
}

// Run fetches the URL into sink until the body ends, ctx is cancelled or the
// request fails. The sink is left Disconnected in every case.
func (h *HTTP) Run(ctx context.Context, sink Sink) error {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	poll := h.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	sink.SetConnState(decode.Connecting)
	defer sink.SetConnState(decode.Disconnected)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "0")

	log.Printf("Fetching %s", h.URL)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch failed: %s", resp.Status)
	}

	contentType := h.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	if _, err := sink.StartTrack(contentType, hintFromContentType(contentType, h.Hint), h.FadeIn); err != nil {
		return err
	}
	sink.SetConnState(decode.Streaming)

	buf := make([]byte, ring.MaxChunk)
	var total int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if ferr := feed(ctx, sink, buf[:n], poll); ferr != nil {
				return nil
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			log.Printf("Fetch complete: %d bytes", total)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed after %d bytes: %w", total, err)
		}
	}
}

// hintFromContentType fills zero hint fields from media type parameters.
// audio/L16 is big-endian 16-bit.
func hintFromContentType(contentType string, hint decode.Hint) decode.Hint {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return hint
	}
	if strings.EqualFold(mediaType, "audio/l16") && hint.SampleSize == 0 {
		hint.SampleSize = 16
		hint.BigEndian = true
	}
	if v, err := strconv.Atoi(params["rate"]); err == nil && hint.SampleRate == 0 {
		hint.SampleRate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && hint.Channels == 0 {
		hint.Channels = v
	}
	return hint
}
