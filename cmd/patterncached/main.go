// Command patterncached is the process-wide pattern-cache daemon: it loads
// configuration, starts the Reclamation Worker, and serves the read-only
// metrics facade over HTTP. It mirrors src/main.go's flag/init/graceful-
// shutdown shape (SPEC_FULL.md's "Process lifecycle" ambient-stack section)
// without any of the teacher's cluster/Redis/project machinery, none of
// which this module's scope includes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebwi11/patterncache/internal/cache"
	"github.com/ebwi11/patterncache/internal/config"
	"github.com/ebwi11/patterncache/internal/dispatch"
	"github.com/ebwi11/patterncache/internal/logging"
)

// shutdownTimeout matches src/main.go's own constant: the bounded window
// within which the Reclamation Worker must stop, PC must drain into DRQ,
// and DRQ must force-flush before the process gives up and exits anyway.
const shutdownTimeout = 60 * time.Second

const buildVersion = "v0.1.0"

func main() {
	var (
		configPath = flag.String("config", "", "path to a cache configuration YAML file (optional; defaults used if omitted)")
		port       = flag.Int("port", 8080, "HTTP listen port for the metrics/health facade")
		logPath    = flag.String("log-file", "", "path to a rotating log file (stderr if omitted)")
		showVer    = flag.Bool("version", false, "show version")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(buildVersion)
		return
	}

	logging.Init(logging.FileConfig{Path: *logPath, Level: slog.LevelInfo})

	cfg := config.DefaultCacheConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			logging.Error("failed to read configuration file", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg, err = config.LoadYAML(data)
		if err != nil {
			logging.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
	}

	c, err := cache.Init(cfg)
	if err != nil {
		logging.Error("failed to initialize pattern cache", "error", err)
		os.Exit(1)
	}

	d := dispatch.NewDispatcher(c, 4096)

	e := newServer(d)
	addr := fmt.Sprintf("0.0.0.0:%d", *port)
	go startServer(e, addr)
	logging.Info("patterncached started", "address", addr, "version", buildVersion)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	logging.Info("shutdown signal received, starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Shutdown(ctx); err != nil {
			logging.Warn("metrics server did not shut down cleanly", "error", err)
		}
		c.Shutdown()
	}()

	select {
	case <-done:
		logging.Info("shutdown completed within timeout")
	case <-ctx.Done():
		logging.Error("shutdown timeout exceeded, forcing exit")
	}
	logging.Info("patterncached shutdown complete")
}
