// Term store HTTP server
// Serves a source-controlled terminology working copy over a command API
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glossarium/termstore/internal/logger"
	"github.com/glossarium/termstore/internal/metrics"
	"github.com/glossarium/termstore/internal/server"
)

var (
	port        = flag.Int("port", 8080, "The API server port")
	obsPort     = flag.Int("observability-port", 9090, "The metrics/pprof server port")
	workingCopy = flag.String("working-copy", "termstore-data", "Working copy directory path")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logPretty   = flag.Bool("log-pretty", false, "Pretty-print logs for development")
	watch       = flag.Bool("watch", true, "Watch the working copy for external edits")
)

func main() {
	flag.Parse()

	logger.InitGlobalLogger(logger.Config{
		Level:  *logLevel,
		Pretty: *logPretty,
	})
	log := logger.GetGlobalLogger()

	log.LogServerStart(*port, *workingCopy)

	m := metrics.NewMetrics()

	apiServer, err := server.NewServer(server.Config{
		Port:            *port,
		WorkingCopyPath: *workingCopy,
	}, log, m)
	if err != nil {
		log.Fatal("Failed to create server").Err(err).Send()
	}

	// Pick up edits made directly in the working copy, e.g. by a
	// git pull or a text editor.
	if *watch {
		stop, err := apiServer.WorkingCopy().Watch()
		if err != nil {
			log.Fatal("Failed to watch working copy").Err(err).Send()
		}
		defer stop()
	}

	obsServer := server.NewObservabilityServer(*obsPort, log)
	go func() {
		if err := obsServer.Start(); err != nil {
			log.Error("Observability server failed").Err(err).Send()
		}
	}()

	go func() {
		log.LogServerReady(*port)
		if err := apiServer.Start(); err != nil {
			log.Fatal("Server failed").Err(err).Send()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.LogServerShutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("Shutdown failed").Err(err).Send()
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		log.Error("Observability shutdown failed").Err(err).Send()
	}
}
