// devicesim stands in for the phone: it connects to isight's device
// websocket, holds the phone flat, tilts it upright and asks a question.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nicholasching/Perception/internal/config"
	"github.com/nicholasching/Perception/internal/log"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "isight base URL")
	id := flag.String("id", "", "Device ID (random when empty)")
	question := flag.String("question", "what is in front of me", "Question to ask once listening starts")
	repeat := flag.Bool("repeat", false, "Ask the question on every recognition start")
	deny := flag.Bool("deny", false, "Refuse the speech recognition permission")
	imagePath := flag.String("image", "", "JPEG or PNG returned for captures (placeholder when empty)")
	tiltAfter := flag.Duration("tilt-after", 2*time.Second, "Hold the phone flat this long before tilting it up")
	upright := flag.Float64("upright", 90, "Tilt in degrees once raised")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	level := os.Getenv("LOG_LEVEL")
	if *debug {
		level = "debug"
	}
	log.Init(level)

	if *id == "" {
		*id = "sim-" + uuid.NewString()[:8]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url := fmt.Sprintf("%s/ws/device/%s", *server, *id)
	fmt.Printf("📱 Connecting to %s\n", url)
	sim, err := Dial(ctx, url, log.L())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer sim.Close()

	sim.Question = *question
	sim.Repeat = *repeat
	sim.Deny = *deny

	if *imagePath != "" {
		if err := loadPhoto(sim, *imagePath); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(*tiltAfter):
			fmt.Printf("⬆️  Tilting to %.0f°\n", *upright)
			sim.SetAngle(*upright)
		}
	}()

	fmt.Println("✅ Connected (Ctrl+C to exit)")
	if err := sim.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n👋 Goodbye!")
}

func loadPhoto(sim *Sim, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	sim.SetPhoto(data, http.DetectContentType(data), cfg.Width, cfg.Height)
	return nil
}
