// cmd/server/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/bkv/internal/protocol"
	"github.com/DeltaLaboratory/bkv/internal/server"
	alog "github.com/lesismal/arpc/log"
)

type Config struct {
	NodeID  string
	Addr    string
	DataDir string
	Peers   []protocol.NodeInfo
}

// SetLevel(lvl int)
// Debug(format string, v ...interface{})
// Info(format string, v ...interface{})
// Warn(format string, v ...interface{})
// Error(format string, v ...interface{})
type ALogAdapter struct {
	logger zerolog.Logger
}

func (a *ALogAdapter) SetLevel(level int) {
	switch level {
	case alog.LevelDebug:
		a.logger = a.logger.Level(zerolog.DebugLevel)
	case alog.LevelInfo:
		a.logger = a.logger.Level(zerolog.InfoLevel)
	case alog.LevelWarn:
		a.logger = a.logger.Level(zerolog.WarnLevel)
	case alog.LevelError:
		a.logger = a.logger.Level(zerolog.ErrorLevel)
	}
}

func (a *ALogAdapter) Debug(format string, v ...interface{}) {
	a.logger.Debug().Msgf(format, v...)
}

func (a *ALogAdapter) Info(format string, v ...interface{}) {
	a.logger.Info().Msgf(format, v...)
}

func (a *ALogAdapter) Warn(format string, v ...interface{}) {
	a.logger.Warn().Msgf(format, v...)
}

func (a *ALogAdapter) Error(format string, v ...interface{}) {
	a.logger.Error().Msgf(format, v...)
}

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	alog.DefaultLogger = &ALogAdapter{logger: logger}

	cfg := parseFlags()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create data directory")
	}

	logger.Info().
		Str("node_id", cfg.NodeID).
		Str("addr", cfg.Addr).
		Str("data_dir", cfg.DataDir).
		Int("peers", len(cfg.Peers)).
		Msg("Starting node")

	srv, err := server.NewServer(cfg.NodeID, cfg.DataDir, cfg.Peers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create node")
	}

	go func() {
		if err := srv.Start(cfg.Addr); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start node")
		}
	}()

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
	<-terminate

	logger.Info().Msg("Shutting down node")
	if err := srv.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop node")
	}
}

func parseFlags() *Config {
	cfg := &Config{}
	var peers string

	flag.StringVar(&cfg.NodeID, "id", "", "Node ID (required)")
	flag.StringVar(&cfg.Addr, "addr", "localhost:8000", "Listen TCP address")
	flag.StringVar(&cfg.DataDir, "data-dir", "data", "Directory to store data")
	flag.StringVar(&peers, "peers", "", "Cluster members as id=addr,id=addr (defaults to this node only)")

	flag.Parse()

	if cfg.NodeID == "" {
		log.Fatal("Node ID is required")
	}

	if peers == "" {
		cfg.Peers = []protocol.NodeInfo{{ID: cfg.NodeID, Address: cfg.Addr}}
		return cfg
	}

	parsed, err := parsePeers(peers)
	if err != nil {
		log.Fatalf("Invalid peers: %v", err)
	}
	cfg.Peers = parsed
	return cfg
}

func parsePeers(spec string) ([]protocol.NodeInfo, error) {
	var peers []protocol.NodeInfo
	for _, entry := range strings.Split(spec, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("expected id=addr, got %q", entry)
		}
		peers = append(peers, protocol.NodeInfo{ID: id, Address: addr})
	}
	return peers, nil
}
