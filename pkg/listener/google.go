package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/nicholasching/Perception/pkg/audioio"
)

// GoogleRecognizer streams microphone audio to Google Cloud Speech-to-Text.
type GoogleRecognizer struct {
	client *speech.Client
	source audioio.Source
	logger *slog.Logger

	mu      sync.Mutex
	cb      Callbacks
	session *googleSession
}

type googleSession struct {
	cancel context.CancelFunc
}

// NewGoogleRecognizer creates a recognizer reading from source.
func NewGoogleRecognizer(ctx context.Context, source audioio.Source, logger *slog.Logger, opts ...option.ClientOption) (*GoogleRecognizer, error) {
	if source == nil {
		return nil, errors.New("listener: audio source is required")
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("listener: create speech client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleRecognizer{
		client: client,
		source: source,
		logger: logger.With("component", "listener.google"),
	}, nil
}

// RequestPermission checks that the microphone can be opened. A running
// session already holds it.
func (g *GoogleRecognizer) RequestPermission(ctx context.Context) (bool, error) {
	g.mu.Lock()
	active := g.session != nil
	g.mu.Unlock()
	if active {
		return true, nil
	}
	if err := g.source.Start(context.WithoutCancel(ctx)); err != nil {
		g.logger.Warn("microphone unavailable", "source", g.source.Name(), "error", err)
		return false, nil
	}
	return true, g.source.Stop()
}

// SetCallbacks installs the event handlers.
func (g *GoogleRecognizer) SetCallbacks(cb Callbacks) {
	g.mu.Lock()
	g.cb = cb
	g.mu.Unlock()
}

// Start opens a streaming recognition session.
func (g *GoogleRecognizer) Start(ctx context.Context, opts Options) error {
	g.mu.Lock()
	if g.session != nil {
		g.mu.Unlock()
		return nil
	}
	sctx, cancel := context.WithCancel(context.Background())
	sess := &googleSession{cancel: cancel}
	g.session = sess
	g.mu.Unlock()

	if err := g.source.Start(sctx); err != nil {
		g.clear(sess)
		return fmt.Errorf("start audio source: %w", err)
	}

	stream, err := g.client.StreamingRecognize(sctx)
	if err != nil {
		g.clear(sess)
		return fmt.Errorf("open stream: %w", err)
	}

	rate := g.source.Config().SampleRate
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(rate),
					LanguageCode:    opts.Language,
					MaxAlternatives: int32(opts.MaxAlternatives),
				},
				InterimResults:  opts.InterimResults,
				SingleUtterance: !opts.Continuous,
			},
		},
	})
	if err != nil {
		g.clear(sess)
		return fmt.Errorf("send streaming config: %w", err)
	}

	go g.sendLoop(sctx, stream, rate)
	go g.recvLoop(sctx, sess, stream)

	if cb := g.callbacks(); cb.OnStart != nil {
		cb.OnStart()
	}
	g.logger.Debug("streaming recognition started", "language", opts.Language, "rate", rate)
	return nil
}

func (g *GoogleRecognizer) sendLoop(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, rate int) {
	defer stream.CloseSend()
	for {
		chunk, err := g.source.Read(ctx)
		if err != nil {
			return
		}
		if len(chunk.Samples) == 0 {
			continue
		}
		err = stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: audioio.ToLinear16(chunk, rate),
			},
		})
		if err != nil {
			g.logger.Debug("audio send stopped", "error", err)
			return
		}
	}
}

func (g *GoogleRecognizer) recvLoop(ctx context.Context, sess *googleSession, stream speechpb.Speech_StreamingRecognizeClient) {
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() == nil && g.current(sess) {
				if cb := g.callbacks(); cb.OnError != nil {
					cb.OnError(CodeNetwork, err)
				}
			}
			break
		}
		if st := resp.GetError(); st != nil {
			g.logger.Warn("recognition status error", "code", st.GetCode(), "message", st.GetMessage())
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			if cb := g.callbacks(); cb.OnResult != nil && g.current(sess) {
				cb.OnResult(alts[0].GetTranscript(), result.GetIsFinal())
			}
		}
	}

	// A session that ended on its own reports OnEnd; Stop reports its own.
	if g.clear(sess) {
		if cb := g.callbacks(); cb.OnEnd != nil {
			cb.OnEnd()
		}
	}
}

// Stop ends the current session.
func (g *GoogleRecognizer) Stop() error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return nil
	}
	g.clear(sess)
	if cb := g.callbacks(); cb.OnEnd != nil {
		cb.OnEnd()
	}
	return nil
}

// Close stops the session and releases the client.
func (g *GoogleRecognizer) Close() error {
	g.Stop()
	return g.client.Close()
}

// clear tears down sess if it is still current and reports whether it was.
func (g *GoogleRecognizer) clear(sess *googleSession) bool {
	g.mu.Lock()
	if g.session != sess {
		g.mu.Unlock()
		return false
	}
	g.session = nil
	g.mu.Unlock()

	sess.cancel()
	if err := g.source.Stop(); err != nil {
		g.logger.Debug("audio source stop", "error", err)
	}
	return true
}

func (g *GoogleRecognizer) current(sess *googleSession) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session == sess
}

func (g *GoogleRecognizer) callbacks() Callbacks {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cb
}

var _ Recognizer = (*GoogleRecognizer)(nil)
