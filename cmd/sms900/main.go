// Package main provides the entry point for the sms900 gateway.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/graaaaa/sms900/internal/appinfo"
	"github.com/graaaaa/sms900/internal/config"
	"github.com/graaaaa/sms900/internal/version"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		slog.Error("sms900 failed", "error", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    appinfo.AppName,
		Usage:   "IRC to SMS/MMS gateway bot",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"f"},
				Value:   appinfo.ConfigFileName,
				Usage:   "path to the JSON configuration file",
				EnvVars: []string{"SMS900_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log_level)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfigFrom(c.String("config"))
			if err != nil {
				return err
			}
			if lvl := c.String("log-level"); lvl != "" {
				cfg.LogLevel = lvl
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting sms900", "version", version.String(), "server", cfg.IRCAddr(), "channel", cfg.Channel)
			return run(ctx, cfg, logger)
		},
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
