package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/k1832/speedtest-logger/internal/adapters/observability"
	"github.com/k1832/speedtest-logger/internal/adapters/source"
	"github.com/k1832/speedtest-logger/internal/adapters/transport"
	"github.com/k1832/speedtest-logger/internal/app/collector"
	"github.com/k1832/speedtest-logger/internal/app/config"
	"github.com/k1832/speedtest-logger/internal/app/service"
	"github.com/k1832/speedtest-logger/internal/ports"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "collect":
		err = collectCommand(os.Args[2:])
	case "serve":
		err = serveCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("speedtest-logger %s: %v", cmd, err)
	}
}

// collectCommand runs exactly one collection tick. The external scheduler
// (cron, launchd, a systemd timer) provides periodicity; note that such
// schedulers run with a minimal environment, so the speed-test utility must
// be reachable via the PATH the scheduler actually exports.
func collectCommand(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	obs := observability.NewPromObs(observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}
	sender := transport.NewClient(cfg.Transport.Endpoint, cfg.Transport.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Collector.Timeout)
	defer cancel()

	return collector.New(src, sender, obs).RunOnce(ctx)
}

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := service.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func buildSource(cfg *config.Config) (ports.MeasurementSource, error) {
	switch cfg.Collector.Source {
	case "speedtest":
		return source.NewSpeedtestSource(cfg.Collector.Command)
	case "ping":
		return source.NewPingSource(cfg.Collector.PingHost)
	default:
		return nil, fmt.Errorf("unknown collector source %q", cfg.Collector.Source)
	}
}

func printUsage() {
	fmt.Printf(`speedtest-logger

Usage:
  speedtest-logger <command> [flags]

Commands:
  collect    Run one collection tick: measure, normalize, and post the sample
  serve      Run the ingestion service (HTTP endpoint + append-only store)
  validate   Load and validate a config file without running anything

Examples:
  speedtest-logger collect -config ./config.yaml
  speedtest-logger serve -config ./config.yaml
  speedtest-logger validate -config ./config.yaml
`)
}
