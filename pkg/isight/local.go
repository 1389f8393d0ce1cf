package isight

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nicholasching/Perception/internal/config"
	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/haptics"
	"github.com/nicholasching/Perception/pkg/listener"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/perception"

	"google.golang.org/api/option"
)

// localRig holds the on-host peripherals used when no phone is attached:
// a webcam, the default microphone and speaker, and a sensor that always
// reports the configured angle.
type localRig struct {
	logger     *slog.Logger
	sensor     *orientation.TickerSensor
	source     audioio.Source
	sink       audioio.Sink
	recognizer *listener.GoogleRecognizer
	webcam     *camera.Webcam
}

func newLocalRig(ctx context.Context, cfg config.Local, gopts []option.ClientOption, logger *slog.Logger) (*localRig, error) {
	if gopts == nil {
		return nil, fmt.Errorf("speech recognition needs Google Cloud credentials")
	}

	r := &localRig{logger: logger, sensor: orientation.Fixed(cfg.Angle)}

	var err error
	if r.source, err = audioio.NewSource(cfg.Audio, logger); err != nil {
		return nil, fmt.Errorf("microphone: %w", err)
	}
	if r.sink, err = audioio.NewSink(cfg.Audio, logger); err != nil {
		r.Close()
		return nil, fmt.Errorf("speaker: %w", err)
	}
	if r.recognizer, err = listener.NewGoogleRecognizer(ctx, r.source, logger, gopts...); err != nil {
		r.Close()
		return nil, err
	}

	camCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if r.webcam, err = camera.NewWebcam(camCtx, cfg.CameraConfig(), logger); err != nil {
		r.Close()
		return nil, fmt.Errorf("webcam: %w", err)
	}
	return r, nil
}

func (r *localRig) peripherals() perception.Peripherals {
	return perception.Peripherals{
		Sensor:     r.sensor,
		Recognizer: r.recognizer,
		Camera:     r.webcam,
		Haptics:    haptics.Logging{Logger: r.logger},
		Sink:       r.sink,
		Alerter:    describe.LogAlerter{Logger: r.logger},
	}
}

// Close releases whatever was opened.
func (r *localRig) Close() {
	if r.webcam != nil {
		if err := r.webcam.Close(); err != nil {
			r.logger.Warn("webcam close failed", "error", err)
		}
	}
	if r.recognizer != nil {
		if err := r.recognizer.Close(); err != nil {
			r.logger.Warn("recognizer close failed", "error", err)
		}
	}
	if r.sink != nil {
		_ = r.sink.Stop()
	}
	if r.source != nil {
		if err := r.source.Close(); err != nil {
			r.logger.Warn("microphone close failed", "error", err)
		}
	}
}
