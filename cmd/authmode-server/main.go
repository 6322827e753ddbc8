// Command authmode-server runs the authentication engine as a
// standalone HTTP service. Configuration comes from the environment,
// optionally layered over a YAML file named by -config.
//
//	AUTH_MODE=single-tenant \
//	SESSION_SECRET=$(openssl rand -hex 32) \
//	ENCRYPTION_SALT=$(openssl rand -hex 16) \
//	SINGLE_TENANT_KEY='Str0ng!Key12345' \
//	SINGLE_TENANT_DB_PATH=db-1 \
//	authmode-server -addr :8080
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	authmode "github.com/authmode/authmode"
	"github.com/authmode/authmode/csrf"
	"github.com/authmode/authmode/httpapi"
	promexport "github.com/authmode/authmode/metrics/export/prometheus"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "optional YAML config file")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if err := run(*addr, *configPath, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(addr, configPath string, log zerolog.Logger) error {
	cfg, err := authmode.NewConfigService(configPath).Load()
	if err != nil {
		return err
	}

	factory, err := authmode.NewFactory(cfg, authmode.WithLogger(log))
	if err != nil {
		return err
	}
	defer factory.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := factory.Mode(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("mode", mode.Name()).Msg("auth mode ready")

	protection, err := csrf.NewProtection(csrf.Config{
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.CSRFTTL,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(promexport.NewCollector(factory)); err != nil {
		return err
	}

	api := httpapi.New(mode, factory.Tokens(), protection, log,
		httpapi.WithCSRFRejectionHook(factory.CSRFRejected))

	mux := http.NewServeMux()
	mux.Handle("/auth/", api.Router())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
