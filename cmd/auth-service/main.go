// cmd/auth-service/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lineauth/internal/authapi"
	"lineauth/internal/federation"
	"lineauth/internal/line"
	"lineauth/internal/policy"
	"lineauth/internal/session"
	"lineauth/pkg/accounts"
	"lineauth/pkg/config"
	"lineauth/pkg/db"
	"lineauth/pkg/logger"
	"lineauth/pkg/middleware"
	"lineauth/pkg/tenants"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)
	if err := cfg.Validate(); err != nil {
		appLog.Fatalw("invalid configuration", "err", err)
	}
	ctx := context.Background()

	tracing, shutdownTracing := middleware.InitTracing(ctx, "lineauth", appLog)

	// 2. Optional backing services; nil means dev fallback.
	dbPool := db.MustConnect(cfg, appLog)
	rdb := db.MustRedis(cfg, appLog)

	// 3. Directories: Postgres when configured, otherwise YAML-seeded memory.
	var (
		tenantDir tenants.Provider
		users     accounts.Users
		staff     accounts.Staff
	)
	if dbPool != nil {
		if err := tenants.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("tenant schema", "err", err)
		}
		if err := accounts.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("account schema", "err", err)
		}
		if err := tenants.SeedFromFile(ctx, dbPool, cfg.TenantSeedFile); err != nil {
			appLog.Warnw("tenant seed", "err", err)
		}
		if err := accounts.SeedFromFile(ctx, dbPool, cfg.AccountSeedFile); err != nil {
			appLog.Warnw("account seed", "err", err)
		}
		tenantDir = tenants.NewPostgresProvider(dbPool, appLog)
		pg := accounts.NewPostgres(dbPool, appLog)
		users, staff = pg, pg
	} else {
		tseed, err := tenants.LoadSeedFile(cfg.TenantSeedFile)
		if err != nil {
			appLog.Fatalw("tenant seed", "err", err)
		}
		aseed, err := accounts.LoadSeedFile(cfg.AccountSeedFile)
		if err != nil {
			appLog.Fatalw("account seed", "err", err)
		}
		tenantDir = tenants.NewMemoryProvider(appLog, tseed)
		mem := accounts.NewMemory(aseed)
		users, staff = mem, mem
	}
	tenantDir = tenants.WithFallbackDefaults(tenantDir, tenants.SystemDefaults{
		DefaultTenantID:   cfg.DefaultTenantID,
		LineChannelID:     cfg.LineChannelID,
		LineChannelSecret: cfg.LineChannelSecret,
		LineRedirectURI:   cfg.LineRedirectURI,
	})

	// 4. Session issuer, tenant move policy, provider client.
	issuer, err := session.NewIssuer(session.Config{
		Key:      []byte(cfg.SessionSigningKey),
		KeyFile:  cfg.SessionSigningKeyFile,
		Alg:      cfg.SessionSigningAlg,
		Issuer:   cfg.SessionIssuer,
		Audience: cfg.SessionAudience,
		TTL:      cfg.SessionTTL,
	})
	if err != nil {
		appLog.Fatalw("session issuer", "err", err)
	}
	moves, err := policy.New(ctx, cfg.TenantMovePolicy, cfg.TenantMoveRegoFile)
	if err != nil {
		appLog.Fatalw("tenant move policy", "err", err)
	}
	metrics := federation.NewMetrics(prometheus.DefaultRegisterer)
	lineClient := line.NewClient(line.Config{
		Endpoints: line.Endpoints{
			AuthorizeURL: cfg.LineAuthorizeURL,
			TokenURL:     cfg.LineTokenURL,
			VerifyURL:    cfg.LineVerifyURL,
			Issuer:       cfg.LineIssuer,
		},
		Timeout: cfg.ProviderTimeout,
		Observe: metrics.ObserveProvider,
	})

	svc := federation.New(federation.Options{
		Tenants:    tenantDir,
		Users:      users,
		Staff:      staff,
		Provider:   lineClient,
		Sessions:   issuer,
		TenantMove: moves,
		Metrics:    metrics,
		Introspect: cfg.IntrospectAccess,
		Log:        appLog,
	})

	var nonces authapi.NonceStore = authapi.NewMemoryNonces()
	if rdb != nil {
		nonces = authapi.NewRedisNonces(rdb)
	}

	// 5. HTTP router.
	handler := authapi.NewHandler(svc, nonces, cfg.AllowedRedirectOrigins, cfg.StateTTL, appLog)
	router := authapi.NewRouter(handler, authapi.RouterOptions{
		Sessions:      issuer,
		CORSOrigins:   cfg.CORSOrigins,
		RatePerMinute: cfg.RateLimitPerMinute,
		Gatherer:      prometheus.DefaultGatherer,
		Tracing:       tracing,
		TrustProxy:    cfg.TrustForwardedHost,
		Log:           appLog,
	})

	// 6. Configure and start HTTP server asynchronously.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		appLog.Infow("auth-service listening", "addr", cfg.HTTPAddr, "introspect", cfg.IntrospectAccess, "tenant_move", cfg.TenantMovePolicy)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 7. Wait for termination signal (SIGINT/SIGTERM) to begin graceful shutdown.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	// 8. Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = shutdownTracing(shutdownCtx)
	if dbPool != nil {
		dbPool.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	appLog.Infow("auth-service stopped")
	_ = appLog.Sync()
}
