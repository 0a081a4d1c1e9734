package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/packet"
	"github.com/sadewadee/m2proxy/internal/pool"
	"github.com/sadewadee/m2proxy/internal/server"
	"github.com/sadewadee/m2proxy/internal/sink"
	"github.com/sadewadee/m2proxy/internal/websocket"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "start":
		serve()
	case "decode":
		os.Exit(decode(os.Args[2:]))
	case "version":
		fmt.Printf("m2proxy v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve() {
	cfgPath := "m2proxy.yaml"
	if len(os.Args) > 2 {
		cfgPath = os.Args[2]
	}

	logger := setupLogger("info", "json", os.Stderr)
	logger.Info("m2proxy starting", "version", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	logOut, logCloser := resolveLogOutput(cfg.Logging.Output)
	if logCloser != nil {
		defer logCloser.Close()
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format, logOut)
	slog.SetDefault(logger)

	out, outCloser, err := resolveOutput(cfg.Output.Target)
	if err != nil {
		logger.Error("failed to open output", "target", cfg.Output.Target, "error", err)
		os.Exit(1)
	}
	if outCloser != nil {
		defer outCloser.Close()
	}
	s, err := sink.New(cfg.Output, out)
	if err != nil {
		logger.Error("failed to create sink", "error", err)
		os.Exit(1)
	}

	decodePool := pool.New(cfg.Pool, cfg.Ingest.MaxMessageSize, s, logger)
	if err := decodePool.Start(); err != nil {
		logger.Error("failed to start decode pool", "error", err)
		os.Exit(1)
	}

	var wsManager *websocket.Manager
	if cfg.Ingest.WebSocketPath != "" {
		wsManager = websocket.NewManager(logger)
	}
	srv := server.New(cfg, decodePool, wsManager, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	logger.Info("m2proxy ready", "address", cfg.Server.Address)

	<-quit
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := decodePool.Stop(); err != nil {
		logger.Error("pool shutdown error", "error", err)
	}

	logger.Info("m2proxy stopped")
}

// decode runs the decode command and returns the exit code.
func decode(args []string) int {
	in := io.Reader(os.Stdin)
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "decode: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}
	return runDecode(in, os.Stdout, os.Stderr)
}

func runDecode(in io.Reader, out, errOut io.Writer) int {
	msg, err := io.ReadAll(in)
	if err != nil {
		fmt.Fprintf(errOut, "decode: reading input: %v\n", err)
		return 1
	}

	p, err := packet.Decode(msg)
	if err != nil {
		fmt.Fprintf(errOut, "decode: %s: %v\n", packet.Kind(err), err)
		return 2
	}

	s := sink.NewJSONSink(out)
	s.SetIndent("", "  ")
	if err := s.Deliver(p); err != nil {
		fmt.Fprintf(errOut, "decode: %v\n", err)
		return 1
	}
	return 0
}

func setupLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// resolveLogOutput falls back to stderr when the log file cannot be opened.
func resolveLogOutput(output string) (io.Writer, io.Closer) {
	w, c, err := resolveOutput(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log output %q unavailable, using stderr: %v\n", output, err)
		return os.Stderr, nil
	}
	return w, c
}

// resolveOutput maps stdout, stderr or a file path to a writer. Files are
// opened for appending and must be closed by the caller.
func resolveOutput(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", target, err)
	}
	return f, f, nil
}

func printUsage() {
	fmt.Println(`m2proxy - Mongrel2 request decoder

Usage:
  m2proxy <command> [options]

Commands:
  serve [config]   Start the ingest server (default config: m2proxy.yaml)
  start [config]   Alias for serve
  decode [file]    Decode one raw message from file or stdin, print JSON
  version          Show version
  help             Show this help

Signals:
  SIGINT/SIGTERM   Graceful shutdown

Examples:
  m2proxy serve
  m2proxy serve /etc/m2proxy/m2proxy.yaml
  m2proxy decode request.bin
  m2proxy version`)
}
