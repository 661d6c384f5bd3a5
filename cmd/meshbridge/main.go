// Copyright 2025-2026 Tigro14

// Command meshbridge keeps two mesh radios (a packet-oriented network and
// an event-oriented companion network) connected over serial or TCP,
// normalizes their traffic into one stream and routes bot commands with
// per-network isolation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Tigro14/meshbot-sub004/pkg/bridge"
	"github.com/Tigro14/meshbot-sub004/pkg/config"
	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
	"github.com/Tigro14/meshbot-sub004/pkg/meshcore"
	"github.com/Tigro14/meshbot-sub004/pkg/meshtastic"
	"github.com/Tigro14/meshbot-sub004/pkg/router"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:     "meshbridge",
	Short:   "Dual-network mesh radio bridge for a command-processing bot",
	Version: fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file loaded before the config")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "override the configured log file")
}

func run(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	b, err := bridge.New(bridge.Options{
		Config:  cfg,
		Handler: builtinHandler{},
		Decoder: meshtastic.JSONDecoder{},
		Encoders: map[mesh.Network]bridge.Encoder{
			mesh.NetMeshtastic: meshtastic.TextEncoder{},
			mesh.NetMeshCore:   meshcore.TextEncoder{},
		},
		Log: log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Shutting down")

	cancel()
	b.Stop()
	return nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// builtinHandler answers the bridge's own maintenance commands. Bot
// features (weather, stats, maps) plug in as external handlers.
type builtinHandler struct{}

func (builtinHandler) Handle(_ context.Context, p *mesh.Packet) (string, error) {
	switch strings.Fields(p.Text)[0] {
	case "/ping":
		return "pong", nil
	case "/help":
		return "commands: /ping /help", nil
	default:
		return "", nil
	}
}

// builtinHandler must satisfy the router contract.
var _ router.CommandHandler = builtinHandler{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
