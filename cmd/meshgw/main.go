package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	meshgateway "github.com/ferro-labs/mesh-gateway"
	"github.com/ferro-labs/mesh-gateway/internal/version"
	"github.com/ferro-labs/mesh-gateway/registry"
)

func main() {
	cfgPath := os.Getenv("MESHGW_CONFIG")
	if cfgPath == "" {
		log.Fatal("MESHGW_CONFIG is required: path to the gateway config file (.json, .yaml, or .yml)")
	}
	cfg, err := meshgateway.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := meshgateway.ValidateConfig(*cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Environment overrides for the bits operators tune per deployment.
	if mode := os.Getenv("MESHGW_MODE"); mode != "" {
		cfg.Mode = meshgateway.Mode(mode)
	}
	if mc := os.Getenv("MESHGW_MAX_CONCURRENCY"); mc != "" {
		n, err := strconv.Atoi(mc)
		if err != nil {
			log.Fatalf("Invalid MESHGW_MAX_CONCURRENCY: %v", err)
		}
		cfg.MaxConcurrency = n
	}

	gw, closeRegistry, err := buildGateway(*cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	defer closeRegistry()

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(gw, corsOrigins)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("MeshGateway %s listening on %s (mode=%s, %d service(s))",
		version.Short(), addr, effectiveMode(cfg.Mode), len(cfg.Registry.Services))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// buildGateway selects the registry backend from REGISTRY_DB and assembles
// the gateway. The in-memory backend serves the config document directly;
// sqlite and postgres backends are seeded from it when REGISTRY_SEED=1.
func buildGateway(cfg meshgateway.Config) (*meshgateway.Gateway, func(), error) {
	backend := strings.ToLower(os.Getenv("REGISTRY_DB"))

	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, nil, err
	}

	var (
		reg     registry.Registry
		cleanup = func() {}
	)
	switch backend {
	case "", "memory":
		gw, err := meshgateway.NewFromConfig(cfg)
		return gw, cleanup, err
	case "sqlite":
		sqlReg, err := registry.NewSQLite(os.Getenv("REGISTRY_DSN"))
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = sqlReg.Close() }
		reg = sqlReg
		if os.Getenv("REGISTRY_SEED") == "1" {
			if err := sqlReg.Seed(context.Background(), &cfg.Registry); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
	case "postgres":
		sqlReg, err := registry.NewPostgres(os.Getenv("REGISTRY_DSN"))
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = sqlReg.Close() }
		reg = sqlReg
		if os.Getenv("REGISTRY_SEED") == "1" {
			if err := sqlReg.Seed(context.Background(), &cfg.Registry); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
	default:
		log.Fatalf("Unknown REGISTRY_DB %q: use memory, sqlite, or postgres", backend)
	}

	gw, err := meshgateway.New(meshgateway.Options{
		Registry:        reg,
		Mode:            cfg.Mode,
		MaxConcurrency:  cfg.MaxConcurrency,
		UpstreamTimeout: timeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return gw, cleanup, nil
}

func effectiveMode(m meshgateway.Mode) meshgateway.Mode {
	if m == "" {
		return meshgateway.ModeSequential
	}
	return m
}
