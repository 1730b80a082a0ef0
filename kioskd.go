// Package kioskd assembles the command gateway: authorization policy,
// bounded executor, operation registry and HTTP server, wired from a single
// configuration.
package kioskd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/victoralfred/kioskd/config"
	"github.com/victoralfred/kioskd/executor"
	"github.com/victoralfred/kioskd/kiosk"
	"github.com/victoralfred/kioskd/observability"
	"github.com/victoralfred/kioskd/policy"
	"github.com/victoralfred/kioskd/registry"
	"github.com/victoralfred/kioskd/resilience"
	"github.com/victoralfred/kioskd/server"
)

const drainTimeout = 10 * time.Second

// Gateway is a fully wired gateway instance.
type Gateway struct {
	cfg      config.Config
	logger   *slog.Logger
	executor executor.Executor
	server   *server.Server
	audit    observability.AuditLogger
}

// New assembles a gateway from configuration. Nothing starts listening until
// Run is called.
func New(cfg config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	decider, err := buildDecider(cfg, logger)
	if err != nil {
		return nil, err
	}

	telemetry, err := observability.NewTelemetry(observability.DefaultTelemetryConfig())
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		telemetry = observability.Noop()
	}

	builder := executor.NewBuilder().
		WithAuthorizer(decider).
		WithMaxConcurrent(cfg.MaxConcurrent).
		WithDefaultTimeout(cfg.DefaultTimeout).
		WithForceShell(cfg.PolicyOverride).
		WithLogger(logger).
		WithTelemetry(telemetry)

	var audit observability.AuditLogger
	if cfg.AuditPath != "" {
		dir, file := filepath.Split(cfg.AuditPath)
		auditCfg := observability.DefaultAuditConfig()
		auditCfg.BasePath = filepath.Clean(dir)
		auditCfg.FilePath = file
		audit, err = observability.NewFileAuditLogger(auditCfg)
		if err != nil {
			return nil, fmt.Errorf("audit logger: %w", err)
		}
		builder = builder.WithHooks(observability.NewAuditHook(audit))
	}

	exec, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("building executor: %w", err)
	}

	reg := registry.New()
	ops := kiosk.NewOperations(exec, decider, logger)
	if err := ops.Register(reg); err != nil {
		return nil, fmt.Errorf("registering operations: %w", err)
	}
	reg.Freeze()

	srv := server.New(reg, server.Options{
		BearerToken:       cfg.BearerToken,
		AllowUserCommands: cfg.AllowUserCommands,
		Limiter:           resilience.NewRequestLimiter(resilience.DefaultRequestLimiterConfig()),
		Logger:            logger,
		Telemetry:         telemetry,
	})

	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		executor: exec,
		server:   srv,
		audit:    audit,
	}, nil
}

// buildDecider selects the authorization engine. The override flag wins, then
// a policy file, then an inline whitelist over the built-in defaults.
func buildDecider(cfg config.Config, logger *slog.Logger) (policy.Decider, error) {
	if cfg.PolicyOverride {
		logger.Warn("policy override enabled, all commands are permitted")
		return policy.Permissive(), nil
	}

	if cfg.PolicyPath != "" {
		dir, file := filepath.Split(cfg.PolicyPath)
		loader, err := policy.NewLoader(filepath.Clean(dir), file)
		if err != nil {
			return nil, fmt.Errorf("policy loader: %w", err)
		}
		compiled, err := loader.Load(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		return compiled, nil
	}

	compiled, err := policy.Compile(policy.Config{Whitelist: cfg.Whitelist})
	if err != nil {
		return nil, fmt.Errorf("compiling policy: %w", err)
	}
	return compiled, nil
}

// Executor exposes the gateway's executor, mainly for tests and embedding.
func (g *Gateway) Executor() executor.Executor {
	return g.executor
}

// Run serves HTTP until ctx is canceled, then drains in-flight commands.
func (g *Gateway) Run(ctx context.Context) error {
	serveErr := g.server.Serve(ctx, g.cfg.Addr())

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := g.executor.Shutdown(drainCtx); err != nil {
		g.logger.Warn("shutdown incomplete", "error", err)
	}
	if g.audit != nil {
		_ = g.audit.Close()
	}
	return serveErr
}
