// Package isight assembles the interaction controller, its peripherals and
// the dashboard into a runnable service.
package isight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nicholasching/Perception/internal/config"
	"github.com/nicholasching/Perception/internal/gcloud"
	"github.com/nicholasching/Perception/pkg/bridge"
	"github.com/nicholasching/Perception/pkg/capture"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/perception"
	"github.com/nicholasching/Perception/pkg/session"
	"github.com/nicholasching/Perception/pkg/settings"
	"github.com/nicholasching/Perception/pkg/tts"
	"github.com/nicholasching/Perception/pkg/weather"
	"github.com/nicholasching/Perception/pkg/web"

	"google.golang.org/api/option"
)

// App owns every component and their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	settings  settings.Store
	images    *capture.Store
	relay     *perception.Relay
	describer *describe.Service
	voice     tts.Provider
	ctrl      *perception.Controller
	bridge    *bridge.Bridge
	web       *web.Server
	rig       *localRig

	// Google client options for speech and TTS. Nil when no credentials
	// were found.
	gopts []option.ClientOption

	closers []io.Closer

	mu     sync.Mutex
	ctx    context.Context
	device *bridge.Device
}

// New validates cfg and creates an App. Call Init before Run.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger, ctx: context.Background()}, nil
}

// Init builds all components. Failures of optional components (TTS
// fallbacks, weather) are logged and skipped.
func (a *App) Init(ctx context.Context) error {
	fmt.Println("👁️  iSight interaction controller")
	fmt.Println("=================================")

	if err := a.initSettings(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	a.initGoogle(ctx)
	a.initDescribe()
	if err := a.initVoice(ctx); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	a.initController()

	a.bridge = bridge.New(
		bridge.WithLogger(a.logger),
		bridge.WithRequestTimeout(a.cfg.Bridge.RequestTimeout),
	)
	a.web = web.NewServer(web.Config{
		Addr:      a.cfg.Server.Addr,
		StaticDir: a.cfg.Server.StaticDir,
		Logger:    a.logger,
	}, a.ctrl, a.settings, a.bridge)

	switch a.cfg.Mode {
	case config.ModeLocal:
		fmt.Print("🎥 Opening local camera and microphone... ")
		rig, err := newLocalRig(ctx, a.cfg.Local, a.gopts, a.logger)
		if err != nil {
			fmt.Println("❌")
			return fmt.Errorf("local peripherals: %w", err)
		}
		a.rig = rig
		if err := a.ctrl.Bind(rig.peripherals()); err != nil {
			return fmt.Errorf("bind local peripherals: %w", err)
		}
		fmt.Println("✅")
	default:
		a.bridge.OnConnect(a.deviceConnected)
		a.bridge.OnDisconnect(a.deviceDisconnected)
		a.bridge.RegisterRoutes(a.web.App())
		fmt.Println("📱 Waiting for a device on /ws/device")
	}
	return nil
}

func (a *App) initSettings() error {
	var (
		store *settings.JSONStore
		err   error
	)
	if a.cfg.Settings.Path != "" {
		store, err = settings.NewJSONStore(a.cfg.Settings.Path)
	} else {
		store, err = settings.NewDefaultStore()
	}
	if err != nil {
		return err
	}
	a.settings = store
	fmt.Printf("⚙️  Settings: %s\n", store.Path())

	a.images, err = capture.NewStore(a.cfg.Settings.CaptureDir)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.images)
	return nil
}

func (a *App) initGoogle(ctx context.Context) {
	opts, creds, err := gcloud.Options(ctx, gcloud.Config{
		CredentialsFile: a.cfg.Google.CredentialsFile,
		APIKey:          a.cfg.Google.APIKey,
	})
	if err != nil {
		fmt.Printf("⚠️  Google Cloud: %v\n", err)
		return
	}
	a.gopts = opts
	fmt.Printf("☁️  Google Cloud credentials: %s\n", creds.Source)
}

func (a *App) initDescribe() {
	a.relay = perception.NewRelay(a.logger)

	var gemini []describe.Option
	gemini = append(gemini, describe.WithLogger(a.logger))
	if a.cfg.Google.GeminiBaseURL != "" {
		gemini = append(gemini, describe.WithBaseURL(a.cfg.Google.GeminiBaseURL))
	}

	var fallbacks []describe.Provider
	if a.cfg.OpenAI.APIKey != "" {
		p, err := describe.NewOpenAI(
			describe.WithAPIKey(a.cfg.OpenAI.APIKey),
			describe.WithModel(a.cfg.OpenAI.VisionModel),
			describe.WithLogger(a.logger),
		)
		if err != nil {
			fmt.Printf("⚠️  OpenAI vision fallback: %v\n", err)
		} else {
			fallbacks = append(fallbacks, p)
			fmt.Printf("🧠 Vision fallback: OpenAI %s\n", a.cfg.OpenAI.VisionModel)
		}
	}

	enrich := []describe.EnricherOption{
		describe.WithLocator(a.relay),
		describe.WithEnricherLogger(a.logger),
	}
	if a.cfg.Weather.Enabled {
		wopts := []weather.Option{weather.WithLogger(a.logger)}
		if a.cfg.Weather.BaseURL != "" {
			wopts = append(wopts, weather.WithBaseURL(a.cfg.Weather.BaseURL))
		}
		if a.cfg.Weather.CacheTTL > 0 {
			wopts = append(wopts, weather.WithCacheTTL(a.cfg.Weather.CacheTTL))
		}
		enrich = append(enrich, describe.WithWeather(weather.NewClient(wopts...)))
	}

	a.describer = describe.NewService(
		describe.ChainFactory(describe.GeminiFactory(gemini...), a.logger, fallbacks...),
		describe.WithAlerter(a.relay),
		describe.WithEnricher(describe.NewEnricher(enrich...)),
		describe.WithServiceLogger(a.logger),
	)
}

func (a *App) initVoice(ctx context.Context) error {
	var providers []tts.Provider

	if a.gopts != nil {
		g, err := tts.NewGoogle(ctx,
			tts.WithClientOptions(a.gopts...),
			tts.WithLanguage(a.cfg.Google.Language),
			tts.WithGender(tts.GenderFemale),
			tts.WithSpeakingRate(a.cfg.Google.SpeakingRate),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			fmt.Printf("⚠️  Google TTS: %v\n", err)
		} else {
			providers = append(providers, g)
		}
	}
	if a.cfg.OpenAI.APIKey != "" {
		o, err := tts.NewOpenAI(
			tts.WithAPIKey(a.cfg.OpenAI.APIKey),
			tts.WithVoice(a.cfg.OpenAI.Voice),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			fmt.Printf("⚠️  OpenAI TTS: %v\n", err)
		} else {
			providers = append(providers, o)
		}
	}

	switch len(providers) {
	case 0:
		return errors.New("no text-to-speech provider configured (set Google credentials or OPENAI_API_KEY)")
	case 1:
		a.voice = providers[0]
	default:
		chain, err := tts.NewChainWithLogger(a.logger, providers...)
		if err != nil {
			return err
		}
		a.voice = chain
	}
	a.closers = append(a.closers, a.voice)
	fmt.Printf("🎙️  TTS: %s\n", a.voice.Name())
	return nil
}

func (a *App) initController() {
	a.ctrl = perception.New(perception.Deps{
		Settings:  a.settings,
		Describer: a.describer,
		Voice:     a.voice,
		Images:    a.images,
		Relay:     a.relay,
	}, perception.WithLogger(a.logger))

	a.ctrl.OnStatus(func(st session.Status) {
		a.web.UpdateStatus(st)
		if d := a.currentDevice(); d != nil {
			d.PushStatus(st)
		}
	})
	a.ctrl.OnAnswer(func(question, answer string) {
		a.web.AddLog("question", question)
		a.web.AddLog("answer", answer)
	})
	a.ctrl.OnFailure(func(err error) {
		a.web.AddLog("error", err.Error())
	})
}

// Run serves the dashboard and, in local mode, focuses the session. It
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🌐 Dashboard on %s\n", a.cfg.Server.Addr)
		errCh <- a.web.Start(ctx)
	}()

	if a.rig != nil {
		if err := a.ctrl.Focus(ctx); err != nil {
			return fmt.Errorf("focus: %w", err)
		}
		fmt.Println("✅ Session focused; tilt past the activation angle to start")
	}
	a.web.AddLog("info", "iSight started")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	}
}

// Shutdown stops the session and releases every component.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.ctrl != nil {
		a.ctrl.Unbind()
	}
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Warn("web shutdown failed", "error", err)
		}
	}
	if a.rig != nil {
		a.rig.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// Controller returns the interaction controller.
func (a *App) Controller() *perception.Controller {
	return a.ctrl
}

func (a *App) currentDevice() *bridge.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// deviceConnected binds the first device to connect and focuses its
// session. Later devices stay connected but idle until it leaves.
func (a *App) deviceConnected(d *bridge.Device) {
	a.mu.Lock()
	if a.device != nil {
		a.mu.Unlock()
		a.logger.Warn("device ignored; another is bound", "device", d.ID, "bound", a.device.ID)
		d.Alert("Busy", "Another device is already connected.")
		return
	}
	a.device = d
	ctx := a.ctx
	a.mu.Unlock()

	err := a.ctrl.Bind(perception.Peripherals{
		Sensor:     d,
		Recognizer: d,
		Camera:     d,
		Haptics:    d,
		Sink:       d.Speaker(),
		Alerter:    d,
		Locator:    d.Location(),
	})
	if err == nil {
		err = a.ctrl.Focus(ctx)
	}
	if err != nil {
		a.logger.Error("failed to start session", "device", d.ID, "error", err)
		a.ctrl.Unbind()
		a.mu.Lock()
		a.device = nil
		a.mu.Unlock()
		return
	}
	fmt.Printf("📱 Device %s connected; session focused\n", d.ID)
	a.web.AddLog("info", "device connected: "+d.ID)
}

func (a *App) deviceDisconnected(d *bridge.Device) {
	a.mu.Lock()
	if a.device != d {
		a.mu.Unlock()
		return
	}
	a.device = nil
	a.mu.Unlock()

	a.ctrl.Unbind()
	fmt.Printf("📴 Device %s disconnected\n", d.ID)
	a.web.AddLog("info", "device disconnected: "+d.ID)
}
