package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/musiksnip/internal/audio"
	"github.com/petems/musiksnip/internal/config"
	"github.com/petems/musiksnip/internal/encode"
	"github.com/petems/musiksnip/internal/hotkey"
	"github.com/petems/musiksnip/internal/logging"
	"github.com/petems/musiksnip/internal/permissions"
	"github.com/petems/musiksnip/internal/session"
	"github.com/petems/musiksnip/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires explicit microphone + accessibility approval before capture or hotkeys work
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	source, err := audio.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer source.Close()

	// Create the recording session around the source and the MP3 encoder
	sess := session.New(session.Deps{
		Source:  source,
		Encoder: encode.NewMP3(log),
		Logger:  log,
		Spec: audio.StreamSpec{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			BlockSize:  cfg.Audio.BlockSize,
		},
	})

	// Initialize hotkey manager
	hkManager, err := hotkey.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize hotkeys")
	}
	defer hkManager.Close()

	// Create tray UI around the session
	trayUI := tray.New(sess, cfg, Version, Commit, log)

	// Register global start/stop hotkey
	if err := hkManager.Register(cfg.PlatformHotkey(), func(pressed bool) {
		if pressed {
			trayUI.Toggle()
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hotkey")
	}

	log.Info().Str("version", Version).Msg("Musiksnip starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if sess.Active() {
			// Finish the recording so no audio is lost
			stopped := make(chan struct{})
			go func() {
				if err := sess.Stop(); err != nil {
					log.Error().Err(err).Msg("Failed to stop recording on shutdown")
				}
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(30 * time.Second):
				log.Error().Msg("Timed out waiting for recording to finish")
			}
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}
