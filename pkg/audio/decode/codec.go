// ABOUTME: Codec interface and registry
// ABOUTME: Defines the decode step contract and content-type based codec lookup
package decode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sendspin/sendspin-core/pkg/audio"
)

var (
	// ErrBadMagic is returned when a stream's identification header has the wrong signature.
	ErrBadMagic = errors.New("bad header magic")
	// ErrHeaderTruncated is returned when a header packet is shorter than its fixed layout.
	ErrHeaderTruncated = errors.New("header truncated")
	// ErrUnsupportedChannels is returned for channel counts other than 1 or 2.
	ErrUnsupportedChannels = errors.New("unsupported channel count")
	// ErrUnsupportedVersion is returned for identification headers of an
	// incompatible major version.
	ErrUnsupportedVersion = errors.New("unsupported header version")
	// ErrUnsupportedMapping is returned for channel layouts other than plain
	// mono or stereo.
	ErrUnsupportedMapping = errors.New("unsupported channel mapping")
	// ErrUnknownCodec is returned when no codec handles a content type.
	ErrUnknownCodec = errors.New("unknown codec")
)

// Result is the outcome of one decode step.
type Result int

const (
	// Running means no progress was possible yet, or more work remains.
	Running Result = iota
	// Complete means the track ended cleanly.
	Complete
	// Error means the track cannot be decoded and must be aborted.
	Error
)

func (r Result) String() string {
	switch r {
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Hint carries advisory stream parameters known before decoding starts,
// typically from the transport. Codecs with self-describing headers ignore it.
type Hint struct {
	SampleSize int // bits per sample
	SampleRate int
	Channels   int
	BigEndian  bool
}

// Codec decodes one track. Decode performs at most one page or packet worth
// of work and never blocks waiting for input or output space.
type Codec interface {
	// Open prepares codec state. It is called once per track before Decode.
	Open(s *Session, hint Hint) error

	// Decode runs one bounded step.
	Decode(s *Session) Result

	// Close releases decoder resources. It is called exactly once per Open.
	Close()
}

// Formatter is implemented by codecs that can report the negotiated format.
type Formatter interface {
	Format() (audio.Format, bool)
}

// Descriptor registers a codec.
type Descriptor struct {
	ID   byte
	Name string
	// Types lists the content types this codec handles, e.g. "audio/ogg; codecs=opus".
	Types []string
	// MinRead is the number of input bytes that must be buffered before Decode
	// is called while the transport is still streaming.
	MinRead int
	// MinSpace is the number of free output frames required before Decode is called.
	MinSpace int
	New      func() Codec
}

// Registry maps content types to codec descriptors. It is immutable once built.
type Registry struct {
	descs  []Descriptor
	byType map[string]int
}

// NewRegistry builds a registry. Two descriptors claiming the same content
// type is an error.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		descs:  make([]Descriptor, len(descs)),
		byType: make(map[string]int),
	}
	copy(r.descs, descs)

	for i, d := range r.descs {
		if d.New == nil {
			return nil, fmt.Errorf("codec %s has no constructor", d.Name)
		}
		for _, t := range d.Types {
			key := normalizeType(t)
			if prev, ok := r.byType[key]; ok {
				return nil, fmt.Errorf("content type %q claimed by both %s and %s", t, r.descs[prev].Name, d.Name)
			}
			r.byType[key] = i
		}
	}
	return r, nil
}

// Lookup returns the descriptor for a content type. Parameters other than
// "codecs" are ignored and matching is case-insensitive.
func (r *Registry) Lookup(contentType string) (Descriptor, error) {
	if i, ok := r.byType[normalizeType(contentType)]; ok {
		return r.descs[i], nil
	}
	// Fall back to the bare media type.
	if i, ok := r.byType[mediaType(contentType)]; ok {
		return r.descs[i], nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCodec, contentType)
}

// Descriptors returns the registered codecs in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

func mediaType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

func normalizeType(t string) string {
	base := mediaType(t)
	for _, param := range strings.Split(t, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, "codecs") {
			return base + ";codecs=" + strings.ToLower(strings.Trim(v, `" `))
		}
	}
	return base
}

// DefaultRegistry returns the registry of all built-in codecs.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		OpusDescriptor(),
		VorbisDescriptor(),
		MP3Descriptor(),
		FLACDescriptor(),
		PCMDescriptor(),
	)
	if err != nil {
		panic(err)
	}
	return r
}
