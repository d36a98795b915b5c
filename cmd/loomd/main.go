package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/ohitslaurence/loom/internal/config"
	"github.com/ohitslaurence/loom/internal/loom"
)

var (
	configPath = flag.String("config", "/etc/loom/loom.toml", "Path to the TOML configuration file")
	logFormat  = flag.String("log_format", "", "Log format to use (json or text)")
	logLevel   = flag.String("log_level", "", "Log level to use")
)

func main() {
	flag.Parse()
	configureLogging()

	if err := run(); err != nil {
		log.Fatal(trace.Wrap(err))
	}
}

func configureLogging() {
	switch *logFormat {
	case "": // OK, use defaults
		log.SetFormatter(&trace.TextFormatter{})
	case "json":
		log.SetFormatter(&trace.JSONFormatter{})
	case "text":
		log.SetFormatter(&trace.TextFormatter{})
	default:
		log.Warnf("Invalid log_format flag: %q", *logFormat)
	}
	if ll := *logLevel; ll != "" {
		switch level, err := log.ParseLevel(ll); {
		case err != nil:
			log.WithError(err).Warn("Invalid -log_level flag")
		default:
			log.SetLevel(level)
		}
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return trace.Wrap(err)
	}

	// SessionRepo, JobRepo, AuditStore, and EmailSender are persistence-
	// and SMTP-layer collaborators that this module deliberately leaves
	// unimplemented (non-goals); a production deployment supplies
	// them here, e.g. from a separate internal/postgres package. With
	// nil deps, Runtime still wires the in-process-only components
	// (audit fan-out to configured sinks, flags, keys, query) and skips
	// the retention daemon and job scheduler, which both require a
	// store.
	rt, err := loom.New(cfg, loom.Deps{}, nil)
	if err != nil {
		return trace.Wrap(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithField("listen_addr", cfg.Server.ListenAddr).Info("loomd starting")
	if err := rt.Run(ctx); err != nil {
		return trace.Wrap(err)
	}
	log.Info("loomd stopped")
	return nil
}
