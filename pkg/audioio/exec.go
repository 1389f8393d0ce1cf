package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// ExecSource records by reading raw PCM from a recorder process.
type ExecSource struct {
	cfg    Config
	logger *slog.Logger
	argv   []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	streamCh chan AudioChunk
	running  bool
	closed   bool

	chunksRead atomic.Int64
}

// NewExecSource creates a recorder-backed source.
func NewExecSource(cfg Config, logger *slog.Logger) (*ExecSource, error) {
	argv := cfg.RecordCommand
	if len(argv) == 0 {
		argv = defaultRecordCommand(cfg)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("audioio: no recorder available on %s", runtime.GOOS)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.exec_source"),
		argv:   argv,
	}, nil
}

func defaultRecordCommand(cfg Config) []string {
	rate := strconv.Itoa(cfg.SampleRate)
	channels := strconv.Itoa(cfg.Channels)
	switch runtime.GOOS {
	case "linux":
		device := cfg.Device
		if device == "" {
			device = "default"
		}
		return []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels, "-D", device}
	case "darwin":
		return []string{"sox", "-q", "-d", "-t", "raw", "-b", "16", "-e", "signed-integer", "-L", "-r", rate, "-c", channels, "-"}
	}
	return nil
}

// Start launches the recorder.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, s.argv[0], s.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("audioio: recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("audioio: start %s: %w", s.argv[0], err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.streamCh = make(chan AudioChunk, 10)
	s.running = true

	go s.readLoop(stdout, s.streamCh)

	s.logger.Info("recorder started", "command", s.argv[0], "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *ExecSource) readLoop(r io.Reader, out chan<- AudioChunk) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("recorder read ended", "error", err)
			}
			return
		}
		chunk := AudioChunk{
			Samples:    BytesToSamples(buf),
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		}
		select {
		case out <- chunk:
			s.chunksRead.Add(1)
		default:
			// Consumer is behind; drop rather than stall the recorder.
		}
	}
}

// Stop terminates the recorder.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	s.cmd.Wait()
	s.logger.Info("recorder stopped", "chunks", s.chunksRead.Load())
	return nil
}

// Read returns the next chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config { return s.cfg }

// Name returns "exec".
func (s *ExecSource) Name() string { return "exec" }

// Close stops the recorder permanently.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// ExecSink plays clips by piping them into a player process.
type ExecSink struct {
	logger *slog.Logger
	argv   func(Clip) []string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewExecSink creates a player-backed sink.
func NewExecSink(cfg Config, logger *slog.Logger) *ExecSink {
	if logger == nil {
		logger = slog.Default()
	}
	argv := defaultPlayCommand
	if len(cfg.PlayCommand) > 0 {
		fixed := cfg.PlayCommand
		argv = func(Clip) []string { return fixed }
	}
	return &ExecSink{
		logger: logger.With("component", "audioio.exec_sink"),
		argv:   argv,
	}
}

func defaultPlayCommand(c Clip) []string {
	if c.Format == "pcm16" {
		rate := strconv.Itoa(c.SampleRate)
		return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ar", rate, "-ac", "1", "-"}
	}
	return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"}
}

// Play runs the player until the clip ends.
func (s *ExecSink) Play(ctx context.Context, clip Clip) error {
	argv := s.argv(clip)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	err := cmd.Run()

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()

	if cctx.Err() != nil {
		// Interrupted by Stop or by the caller.
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("audioio: %s: %w", argv[0], err)
	}
	return nil
}

// Stop interrupts playback.
func (s *ExecSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// Name returns "exec".
func (s *ExecSink) Name() string { return "exec" }

var (
	_ Source = (*ExecSource)(nil)
	_ Sink   = (*ExecSink)(nil)
)
