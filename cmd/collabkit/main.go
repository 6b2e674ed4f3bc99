// Command collabkit runs the collaborative session broker: a TCP server
// that accepts editor-client connections, identifies them through a
// handshake, and relays cursor/content/request frames between them.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/johnjansen/collabkit/broker"
	"github.com/johnjansen/collabkit/config"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "collabkit"
	myApp.Usage = "collaborative live-editing session broker"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "port",
			Value: config.DefaultPort,
			Usage: "TCP port to listen on, all interfaces",
		},
		cli.IntFlag{
			Name:  "outbox-capacity",
			Value: config.DefaultOutboxCapacity,
			Usage: "per-client outbound frame queue depth; overflow drops the newest frame",
		},
		cli.IntFlag{
			Name:  "max-frame-bytes",
			Value: config.DefaultMaxFrameBytes,
			Usage: "maximum inbound frame size, terminator included",
		},
		cli.DurationFlag{
			Name:  "request-timeout",
			Value: config.DefaultRequestTimeout,
			Usage: "how long a host-directed request waits before the requester gets a Timeout error",
		},
		cli.IntFlag{
			Name:  "max-connections",
			Value: config.DefaultMaxConnections,
			Usage: "cap on concurrent accepted connections, 0 disables the cap",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: config.DefaultLogLevel,
			Usage: "debug, info, warn, or error",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.FromEnv()
	cfg.Port = c.Int("port")
	cfg.OutboxCapacity = c.Int("outbox-capacity")
	cfg.MaxFrameBytes = c.Int("max-frame-bytes")
	cfg.RequestTimeout = c.Duration("request-timeout")
	cfg.MaxConnections = c.Int("max-connections")
	cfg.LogLevel = c.String("log-level")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("collabkit: building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return fmt.Errorf("collabkit: failed to bind port %d: %w", cfg.Port, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	b := broker.New(cfg, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		_ = b.Close()
	}()

	logger.Infow("listening", "port", cfg.Port, "max_connections", cfg.MaxConnections)
	if err := b.Serve(ln); err != nil {
		return fmt.Errorf("collabkit: serve: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	var zlevel zap.AtomicLevel
	switch level {
	case "debug":
		zlevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zlevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zlevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zlevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zlevel
	zcfg.EncoderConfig.TimeKey = "ts"

	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
