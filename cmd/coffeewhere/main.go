// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the coffeewhere command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vorlif/spreak"

	"github.com/wneessen/coffeewhere/internal/config"
	"github.com/wneessen/coffeewhere/internal/i18n"
	"github.com/wneessen/coffeewhere/internal/logger"
	"github.com/wneessen/coffeewhere/internal/permission"
	"github.com/wneessen/coffeewhere/internal/server"
	"github.com/wneessen/coffeewhere/internal/service"
	"github.com/wneessen/coffeewhere/internal/session"
)

const (
	modeOnce  = "once"
	modeWatch = "watch"
	modeServe = "serve"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	mode := flag.String("mode", modeOnce, "run mode: once, watch (waybar module) or serve (JSON API)")
	shopID := flag.String("shop", "", "print the details of the shop with this ID (once mode)")
	asJSON := flag.Bool("json", false, "print JSON instead of text (once mode)")
	listen := flag.String("listen", "", "address the API listens on (serve mode)")
	revisit := flag.Bool("request-permission", false, "ask for location access again, even if it was denied")
	flag.Parse()

	// Values from .env only fill variables not set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("failed to load .env file", logger.Err(err))
		os.Exit(1)
	}

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if *listen != "" {
		conf.Server.Listen = *listen
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	prompter := &permission.TerminalPrompter{
		Question: t.Get("Allow coffeewhere to access your location?"),
		In:       os.Stdin,
		Out:      os.Stderr,
	}
	sess, err := session.FromConfig(conf, t, prompter, log)
	if err != nil {
		log.Error("failed to initialize session", logger.Err(err))
		os.Exit(1)
	}

	log.Info(t.Get("starting coffeewhere"), slog.String("mode", *mode), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = run(ctx, *mode, conf, log, t, sess, *shopID, *asJSON, *revisit); err != nil {
		log.Error(t.Get("failed to run coffeewhere"), logger.Err(err))
		sess.Close()
		os.Exit(1)
	}
	log.Info(t.Get("shutting down coffeewhere"))
}

func run(ctx context.Context, mode string, conf *config.Config, log *logger.Logger, t *spreak.Localizer,
	sess *session.Session, shopID string, asJSON, revisit bool,
) error {
	if revisit {
		state, err := sess.RequestPermission(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to request location permission: %w", err)
		}
		log.Info("location permission requested", slog.String("state", state.String()))
	}

	switch mode {
	case modeOnce, modeWatch:
		serv, err := service.New(conf, log, t, sess)
		if err != nil {
			return fmt.Errorf("failed to initialize service: %w", err)
		}
		if mode == modeOnce {
			return serv.Once(ctx, shopID, asJSON)
		}

		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()
		return serv.Run(ctx)
	case modeServe:
		srv, err := server.New(conf, log, t, sess)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		return srv.Run(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", mode)
	}
}

// loadConfig reads the config from path, from the default location or, without any file, from
// the defaults and the environment.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromFile(filepath.Dir(path), filepath.Base(path))
	}
	if dir, file := findConfigFile(); dir != "" && file != "" {
		return config.NewFromFile(dir, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "coffeewhere", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
