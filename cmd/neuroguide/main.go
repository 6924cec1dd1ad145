package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"neuroguide/internal/infra/config"
	"neuroguide/internal/infra/logger"
	"neuroguide/internal/infra/tracer"
)

func main() {
	cmd := ""
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "":
		if hasFlag("-h", "--help") {
			showUsage()
			return
		}
		err = run()
	case "help":
		showUsage()
		return
	case "doctor":
		err = runDoctor()
	case "encrypt":
		err = runEncrypt()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'neuroguide --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		name := cmd
		if name == "" {
			name = "fatal"
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`neuroguide - ML research assistant gateway

USAGE:
    neuroguide [COMMAND] [FLAGS]

COMMANDS:
    doctor      Check configuration and upstream reachability
    encrypt     Encrypt a secret read from stdin for use in config.yaml

    (no command) - Serve the HTTP gateway

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional; defaults apply when absent)
    Environment: NEUROGUIDE_* variables override config
    Secrets:     values prefixed "enc:" are decrypted with NEUROGUIDE_CONFIG_KEY`)
}

func hasFlag(names ...string) bool {
	for _, arg := range os.Args[1:] {
		for _, n := range names {
			if arg == n {
				return true
			}
		}
	}
	return false
}

// configPath resolves --config, then NEUROGUIDE_CONFIG, then ./config.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if p := os.Getenv("NEUROGUIDE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Gateway
	srv, err := newGateway(cfg, log)
	if err != nil {
		return err
	}

	log.Info("neuroguide starting",
		"addr", cfg.Server.Addr,
		"upstream", cfg.Upstream.BaseURL,
		"auth", cfg.Auth.Type,
		"critic", cfg.Orchestrator.EnableCritic,
	)

	// 4. Serve until signalled
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("neuroguide stopped")
	return nil
}

// runEncrypt reads one secret line from stdin and prints its enc: form.
func runEncrypt() error {
	key := os.Getenv("NEUROGUIDE_CONFIG_KEY")
	if key == "" {
		return errors.New("NEUROGUIDE_CONFIG_KEY must be set")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("empty secret")
	}
	enc, err := config.EncryptValue(secret, key)
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}
