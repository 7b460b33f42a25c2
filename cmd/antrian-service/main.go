package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"antrian/antrian-service/internal/auth"
	"antrian/antrian-service/internal/config"
	"antrian/antrian-service/internal/httpapi"
	"antrian/antrian-service/internal/queue"
	"antrian/antrian-service/internal/store"
	"antrian/antrian-service/internal/store/memory"
	"antrian/antrian-service/internal/store/postgres"
	"antrian/antrian-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "time/tzdata"
)

const serviceName = "antrian-service"

var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	shutdownTelemetry := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName: serviceName,
		Version:     version,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Printf("store driver=memory: data is kept in process and lost on restart")
		st = memory.New()
	default:
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pool.Ping(pingCtx); err != nil {
			log.Printf("db ping failed, serving anyway: %v", err)
		}
		cancel()
		st = postgres.NewStore(pool)
	}

	var verifier auth.TokenVerifier
	if cfg.AuthDisabled {
		log.Printf("WARNING: AUTH_DISABLED=true, mutating routes accept requests without a token")
	} else {
		verifier = auth.NewDomainVerifier(cfg.Auth0Domain, cfg.Auth0Audience, auth.KeySetOptions{
			TTL:              cfg.JWKSCacheTTL,
			FetchesPerMinute: cfg.JWKSRequestsPerMinute,
		})
	}

	service := queue.NewService(st, queue.Options{Location: location})
	handler := httpapi.NewHandler(service, st, httpapi.Options{
		Verifier:     verifier,
		AuthDisabled: cfg.AuthDisabled,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		TenantPerMinute: cfg.TenantRateLimitPerMinute,
		TenantBurst:     cfg.TenantRateLimitBurst,
	})

	routes := httpapi.TimeoutMiddleware(cfg.RequestTimeout, handler.Routes())
	chain := httpapi.RequestIDMiddleware(httpapi.LoggingMiddleware(httpapi.SecurityHeadersMiddleware(
		httpapi.CORSMiddleware(cfg.AppOrigin, limiter.Middleware(routes)),
	)))
	otelHandler := otelhttp.NewHandler(chain, serviceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s timezone=%s origin=%s", serviceName, server.Addr, location, cfg.AppOrigin)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
