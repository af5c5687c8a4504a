// ABOUTME: Entry point for the Sendspin core player
// ABOUTME: Wires config, discovery, fetch, decode, render and metrics into one process
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-core/internal/config"
	"github.com/Sendspin/sendspin-core/internal/discovery"
	"github.com/Sendspin/sendspin-core/internal/version"
	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/output"
	"github.com/Sendspin/sendspin-core/pkg/fetch"
	"github.com/Sendspin/sendspin-core/pkg/protocol"
	"github.com/Sendspin/sendspin-core/pkg/stream"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// errFinished ends the run group once a finite source has fully played.
var errFinished = errors.New("playback finished")

type source interface {
	Run(ctx context.Context, sink fetch.Sink) error
}

type backend interface {
	output.Output
	output.Mixer
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:           "sendspin-core",
		Short:         "Headless Sendspin player",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String("url", "", "Stream URL: http(s) for a single track, ws(s) for a Sendspin server (default: mDNS discovery)")
	flags.String("content-type", "", "Override the HTTP Content-Type used to pick the codec")
	flags.Bool("no-discovery", false, "Require --url instead of browsing mDNS")
	flags.Duration("discovery-timeout", config.DefaultDiscoveryTimeout, "How long to browse for a server")
	flags.String("name", "", "Player friendly name (default: hostname-sendspin-player)")
	flags.String("client-id", "", "Stable player ID (default: random)")
	flags.Int("input-bytes", stream.DefaultInputBytes, "Encoded input buffer size in bytes")
	flags.Int("output-frames", stream.DefaultOutputFrames, "Decoded output buffer size in frames")
	flags.String("output", config.DefaultOutput, "Playback backend: malgo, oto, portaudio or wav")
	flags.String("wav-path", config.DefaultWAVPath, "File written by the wav backend")
	flags.Bool("fade-in", config.DefaultFadeIn, "Fade in the first track")
	flags.Int("volume", 100, "Initial volume (0-100)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("log-file", config.DefaultLogFile, "Log file path (empty for stdout only)")
	flags.Bool("debug", false, "Log per-packet decoder detail")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	playerName := cfg.Name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-sendspin-player", hostname)
	}
	log.Printf("Starting Sendspin Player %s: %s", version.Version, playerName)

	url, err := resolveURL(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := stream.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	s, err := stream.New(stream.Config{
		InputBytes:   cfg.InputBytes,
		OutputFrames: cfg.OutputFrames,
		Registry:     decode.DefaultRegistry(),
		Metrics:      metrics,
		Debug:        cfg.Debug,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Printf("Error closing output: %v", err)
		}
	}()
	out.SetVolume(cfg.Volume)

	var src source
	if config.IsWebSocketURL(url) {
		clientID := cfg.ClientID
		if clientID == "" {
			clientID = uuid.NewString()
		}
		src = fetch.NewWebSocket(fetch.WebSocketConfig{
			URL:      url,
			ClientID: clientID,
			Name:     playerName,
			DeviceInfo: protocol.DeviceInfo{
				ProductName:     version.Product,
				Manufacturer:    version.Manufacturer,
				SoftwareVersion: version.Version,
			},
			Formats:        supportedFormats(),
			BufferCapacity: cfg.InputBytes,
			Mixer:          out,
		})
	} else {
		src = &fetch.HTTP{URL: url, ContentType: cfg.ContentType, FadeIn: cfg.FadeIn}
	}

	renderer := output.NewRenderer(out, s.Output(), s.Wake)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { return renderer.Run(gctx) })
	g.Go(func() error { return logEvents(gctx, s) })
	g.Go(func() error {
		if err := src.Run(gctx, s); err != nil {
			return err
		}
		if gctx.Err() != nil {
			return nil
		}
		return waitForDrain(gctx, s)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, reg) })
	}

	err = g.Wait()
	log.Printf("Player stopped: %d frames rendered", renderer.Rendered())
	if errors.Is(err, errFinished) {
		return nil
	}
	return err
}

// setupLogging writes logs to stdout and, when set, to path.
func setupLogging(path string) (func(), error) {
	if path == "" {
		log.SetOutput(os.Stdout)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return func() { _ = f.Close() }, nil
}

func resolveURL(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}

	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	findCtx, cancel := context.WithTimeout(ctx, cfg.DiscoveryTimeout)
	defer cancel()
	server, err := disc.Find(findCtx)
	if err != nil {
		return "", err
	}
	log.Printf("Using server %s at %s", server.Name, server.URL())
	return server.URL(), nil
}

func newBackend(cfg *config.Config) (backend, error) {
	switch cfg.Output {
	case "malgo":
		return output.NewMalgo(), nil
	case "oto":
		return output.NewOto(), nil
	case "portaudio":
		return output.NewPortAudio(), nil
	case "wav":
		return output.NewWAV(cfg.WAVPath), nil
	}
	return nil, fmt.Errorf("unknown output %q", cfg.Output)
}

// supportedFormats lists what the default registry decodes, preferred first.
func supportedFormats() []protocol.AudioFormat {
	var formats []protocol.AudioFormat
	for _, codec := range []string{"flac", "opus", "pcm"} {
		for _, rate := range []int{48000, 44100} {
			depths := []int{24, 16}
			if codec == "opus" {
				if rate != 48000 {
					continue
				}
				depths = []int{16}
			}
			for _, depth := range depths {
				formats = append(formats, protocol.AudioFormat{Codec: codec, Channels: 2, SampleRate: rate, BitDepth: depth})
			}
		}
	}
	return formats
}

func logEvents(ctx context.Context, s *stream.Stream) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case stream.TrackStarted:
				log.Printf("Track %s started: %s via %s", ev.ID, ev.Format, ev.Codec)
			case stream.TrackComplete:
				log.Printf("Track %s complete", ev.ID)
			case stream.TrackFailed:
				log.Printf("Track %s failed: %v", ev.ID, ev.Err)
			}
		}
	}
}

// waitForDrain returns errFinished once the last track has stopped decoding
// and the renderer has emptied the output buffer.
func waitForDrain(ctx context.Context, s *stream.Stream) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if s.State() == stream.Running {
			continue
		}
		if used, _ := s.Output().Stats(); used == 0 {
			return errFinished
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
