package registry

import (
	"context"

	"go.uber.org/zap"

	"torrens/internal/config"
	"torrens/internal/domain"
	"torrens/internal/infra/authz"
	"torrens/internal/infra/authzopa"
	"torrens/internal/infra/cachemem"
	"torrens/internal/infra/cacheredis"
	"torrens/internal/usecase"
)

// NewFromConfig wires a Service from environment configuration. A
// configured rego policy is consulted before fallback, composed with it
// as an ordered chain; the verification cache is Redis when an address
// is configured, in-process otherwise, and absent with a zero TTL.
// fallback may be nil when a policy path is set.
func NewFromConfig(ctx context.Context, cfg config.Config, workflow usecase.WorkflowStore, audit usecase.AuditStore, fallback usecase.AuthorizationProvider, logger *zap.Logger, metrics usecase.MetricsRecorder) (*Service, error) {
	tables, err := usecase.LoadTables(cfg.TablesDir)
	if err != nil {
		return nil, err
	}

	provider := fallback
	if cfg.AuthzPolicyPath != "" {
		policy, err := authzopa.NewFromPath(ctx, cfg.AuthzPolicyPath)
		if err != nil {
			return nil, domain.SystemError("AUTHZ_POLICY_LOAD_FAILED", err)
		}
		if provider != nil {
			provider = authz.NewChain(policy, provider)
		} else {
			provider = policy
		}
	}

	var cache usecase.IntegrityCache
	if cfg.VerifyCacheTTL > 0 {
		if cfg.RedisAddr != "" {
			redisCache, err := cacheredis.NewFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.VerifyCacheTTL, logger)
			if err != nil {
				return nil, domain.SystemError("VERIFY_CACHE_INIT_FAILED", err)
			}
			cache = redisCache
		} else {
			cache = cachemem.New(cfg.VerifyCacheTTL)
		}
	}

	return NewService(workflow, audit, provider, Options{
		Tables:      tables,
		BypassRole:  domain.Role(cfg.BypassRole),
		Logger:      logger,
		Metrics:     metrics,
		VerifyCache: cache,
	})
}
