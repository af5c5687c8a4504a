// ABOUTME: Tests for the codec registry
// ABOUTME: Verifies content-type lookup, normalisation and duplicate detection
package decode

import (
	"testing"
)

func TestDefaultRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		contentType string
		want        string
	}{
		{"audio/ogg; codecs=opus", "opus"},
		{"Audio/Ogg; Codecs=\"Opus\"", "opus"},
		{"audio/ogg;codecs=vorbis", "vorbis"},
		{"audio/ogg", "vorbis"},
		{"audio/mpeg", "mp3"},
		{"audio/flac", "flac"},
		{"audio/wav", "pcm"},
		{"audio/L16; rate=44100; channels=2", "pcm"},
		{"opus", "opus"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			desc, err := r.Lookup(tt.contentType)
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if desc.Name != tt.want {
				t.Errorf("expected codec %q, got %q", tt.want, desc.Name)
			}
		})
	}
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := DefaultRegistry().Lookup("video/mp4")
	if err == nil {
		t.Fatal("expected error for unknown content type, got nil")
	}

	expectedError := "unknown codec: video/mp4"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestRegistryRejectsDuplicateTypes(t *testing.T) {
	a := PCMDescriptor()
	b := MP3Descriptor()
	b.Types = append(b.Types, "AUDIO/WAV")

	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected error for duplicate content type, got nil")
	}
}

func TestRegistryRejectsMissingConstructor(t *testing.T) {
	d := PCMDescriptor()
	d.New = nil

	if _, err := NewRegistry(d); err == nil {
		t.Fatal("expected error for descriptor without constructor, got nil")
	}
}

func TestDescriptorsAreDistinct(t *testing.T) {
	seen := make(map[byte]string)
	for _, d := range DefaultRegistry().Descriptors() {
		if prev, ok := seen[d.ID]; ok {
			t.Errorf("codecs %s and %s share ID %q", prev, d.Name, d.ID)
		}
		seen[d.ID] = d.Name
		if d.MinSpace <= 0 || d.MinRead <= 0 {
			t.Errorf("codec %s has non-positive thresholds", d.Name)
		}
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Running, "running"},
		{Complete, "complete"},
		{Error, "error"},
		{Result(9), "result(9)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
