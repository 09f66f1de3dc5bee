package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigbridge/internal/config"
	"sigbridge/internal/directory"
	"sigbridge/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "directory:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (TOML, YAML or JSON)")
	listen := flag.String("listen", "", "listen address (overrides directory.listen)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.Path(config.DefaultHome())
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Directory.Listen = *listen
	}

	log, closer, err := logging.New(cfg.LoggingConfig("directory"))
	if err != nil {
		return err
	}
	defer closer.Close()

	srv := &http.Server{
		Addr:              cfg.Directory.Listen,
		Handler:           directory.NewServer(directory.NewMemory(), log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("directory listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
