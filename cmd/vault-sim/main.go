// Package main runs the in-memory vault simulator as a SOAP endpoint for
// local development and end-to-end checks of vaultctl.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"cardvault/internal/platform/config"
	"cardvault/internal/platform/health"
	"cardvault/internal/platform/logger"
	"cardvault/internal/vault/simulator"
	"cardvault/pkg/platform/middleware/request"
	"cardvault/pkg/secrets"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	var opts []simulator.Option
	opts = append(opts, simulator.WithLogger(log))
	if cfg.SimGlobalUniqueness {
		opts = append(opts, simulator.WithGlobalCardUniqueness())
	}
	vault := simulator.New(opts...)

	if cfg.ClientCode != "" {
		password := cfg.Password
		if password == "" {
			if password, err = secrets.Generate(); err != nil {
				log.Error("could not generate merchant password", "error", err)
				os.Exit(1)
			}
			fmt.Printf("generated password for client %s: %s\n", cfg.ClientCode, password)
		}
		if err := vault.RegisterMerchant(cfg.ClientCode, cfg.UserName, password); err != nil {
			log.Error("could not register merchant", "error", err)
			os.Exit(1)
		}
	}

	probes := health.New("vault-sim")
	probes.RegisterCheck("vault", func() error { return nil })

	srv := &http.Server{
		Addr: cfg.SimAddr,
		Handler: simulator.NewHandler(vault,
			simulator.WithNamespace(cfg.Namespace),
			simulator.WithHandlerLogger(log),
			simulator.WithHealth(probes),
			simulator.WithRequestMetrics(request.NewMetrics()),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting vault simulator",
		"addr", cfg.SimAddr,
		"wsdl_path", simulator.DefaultPath+"?wsdl",
		"authenticated", cfg.ClientCode != "",
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down vault simulator")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("vault simulator stopped")
}
