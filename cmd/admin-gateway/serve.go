package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/cloudcompute/admin-gateway/pkg/adminactions"
	"github.com/cloudcompute/admin-gateway/pkg/adminapi"
	"github.com/cloudcompute/admin-gateway/pkg/compute"
	"github.com/cloudcompute/admin-gateway/pkg/config"
	"github.com/cloudcompute/admin-gateway/pkg/database"
)

// app holds the wired components of a running gateway.
type app struct {
	db        *gorm.DB
	handler   http.Handler
	conductor *compute.Conductor
	retention *adminactions.RetentionWorker
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildApp opens the database and wires every component from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	db, err := database.Open(database.Options{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	var locker database.MigrationLocker
	if cfg.Database.MigrationLock {
		locker = database.NewMigrationLocker(db)
	}
	if err := database.Migrate(ctx, db, locker, logger); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	instances := compute.NewInstanceStore(db)
	hosts := compute.NewHostStore(db)
	images := compute.NewImageStore(db)
	networks := compute.NewNetworkStore(db)
	floatingIPs := compute.NewFloatingIPStore(db)

	if cfg.FixturesPath != "" {
		fixtures, err := compute.LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		if err := fixtures.Apply(ctx, hosts, instances); err != nil {
			return nil, fmt.Errorf("apply fixtures: %w", err)
		}
		if err := fixtures.ApplyNetworks(ctx, networks, floatingIPs); err != nil {
			return nil, fmt.Errorf("apply network fixtures: %w", err)
		}
		logger.Info("loaded fixtures", "path", cfg.FixturesPath,
			"hosts", len(fixtures.Hosts), "instances", len(fixtures.Instances))
	}

	lifecycle := compute.NewLifecycle()
	conductor := compute.NewConductor(instances, lifecycle, cfg.Compute.ConductorQueue, cfg.Compute.TaskDelay,
		logger.With("component", "conductor"))
	orchestrator := compute.NewLocalOrchestrator(instances, hosts, images, conductor, lifecycle,
		compute.LocalOrchestratorConfig{DiagnosticsSupported: cfg.Compute.DiagnosticsSupported},
		logger.With("component", "orchestrator"))

	authorizer, err := newAuthorizer(ctx, cfg.Authz)
	if err != nil {
		return nil, err
	}
	principals, err := newPrincipalExtractor(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	history := adminactions.NewHistoryStore(db)
	gateway := adminactions.NewGateway(adminactions.NewDefaultRegistry(), instances, orchestrator,
		adminactions.WithAuthorizer(authorizer),
		adminactions.WithQuotaChecker(compute.MetadataQuota{MaxItems: cfg.Compute.MetadataItemsQuota}),
		adminactions.WithRecorder(history),
		adminactions.WithMetrics(adminactions.NewMetrics(reg)),
		adminactions.WithLogger(logger.With("component", "gateway")),
		adminactions.WithBaseURL(cfg.Server.BaseURL),
		adminactions.WithDelegationTimeout(cfg.Gateway.DelegationTimeout),
	)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	server := adminapi.NewServer(gateway, logger,
		adminapi.WithPrincipalExtractor(principals),
		adminapi.WithHistory(history, instances),
		adminapi.WithHosts(hosts),
		adminapi.WithNetworks(networks, floatingIPs),
		adminapi.WithMetricsGatherer(reg),
		adminapi.WithReadinessCheck(sqlDB.PingContext),
	)

	return &app{
		db:        db,
		handler:   server.MountRoutes(),
		conductor: conductor,
		retention: adminactions.NewRetentionWorker(history, cfg.History.RetentionDays, cfg.History.CleanupInterval,
			logger.With("component", "retention")),
	}, nil
}

func newAuthorizer(ctx context.Context, cfg config.AuthzConfig) (adminactions.Authorizer, error) {
	switch cfg.Mode {
	case "opa":
		return adminactions.LoadOPAAuthorizer(ctx, cfg.PolicyPath)
	case "role", "":
		return adminactions.RoleAuthorizer{}, nil
	default:
		return nil, fmt.Errorf("unknown authz mode %q (expected role or opa)", cfg.Mode)
	}
}

func newPrincipalExtractor(cfg config.AuthConfig, logger *slog.Logger) (adminapi.PrincipalExtractor, error) {
	switch cfg.Mode {
	case "jwt":
		return adminapi.NewJWTPrincipalExtractor(adminapi.JWTPrincipalConfig{
			RoleClaim:         cfg.JWT.RoleClaim,
			UserClaim:         cfg.JWT.UserClaim,
			GroupsClaim:       cfg.JWT.GroupsClaim,
			ProjectClaim:      cfg.JWT.ProjectClaim,
			AdminRoleValue:    cfg.JWT.AdminRoleValue,
			OperatorRoleValue: cfg.JWT.OperatorRoleValue,
			PublicKeyPath:     cfg.JWT.PublicKeyPath,
			Issuer:            cfg.JWT.Issuer,
			Audience:          cfg.JWT.Audience,
			Logger:            logger,
		})
	case "header", "":
		logger.Info("using header-based caller identification (X-Remote-User, X-User-Role)")
		return adminapi.DefaultPrincipalExtractor, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q (expected header or jwt)", cfg.Mode)
	}
}

// serve runs until SIGINT or SIGTERM, then shuts down gracefully.
func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := a.db.DB(); err == nil {
		defer sqlDB.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("admin gateway listening", "listen", cfg.Server.Listen, "baseURL", cfg.Server.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		a.conductor.Run(gctx, cfg.Compute.ConductorWorkers)
		return nil
	})
	g.Go(func() error {
		a.retention.Run(gctx)
		return nil
	})

	err = g.Wait()
	logger.Info("admin gateway stopped")
	return err
}

// printActions writes the action table served by the gateway.
func printActions(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tMETHOD\tMODE\tROLE\tSTATES")
	for _, d := range adminactions.NewDefaultRegistry().Descriptors() {
		method := http.MethodPost
		if d.ReadOnly {
			method = http.MethodGet
		}
		states := "any"
		if !d.AnyState {
			names := make([]string, 0, d.CompatibleStates.Cardinality())
			for _, s := range d.States() {
				names = append(names, string(s))
			}
			states = strings.Join(names, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, method, d.Mode, adminactions.RequiredRole(d), states)
	}
	tw.Flush()
}
