package app

import (
	"errors"
	"fmt"
	"log/slog"

	"gateway/config"
	"gateway/logging"
	"gateway/metrics"
	"gateway/session"
	"gateway/target"

	"github.com/redis/go-redis/v9"
)

// Gateway represents the main application structure.
// It holds the configuration, the ordered targets, the optional session
// coordinator and the shared clients. It is immutable once built.
type Gateway struct {
	Config      *config.GatewayConfig
	Logger      *slog.Logger
	RedisClient *redis.Client
	Targets     *target.Registry
	Sessions    *session.Coordinator // nil when session support is off
}

// New builds a gateway from a prepared configuration. Every configuration
// error, including session policy conflicts, surfaces here.
//
// Parameters:
// - cfg: The prepared configuration.
// - logger: The logger instance; nil uses the package-wide logger.
// - redisClient: The Redis client backing the redis session store, or nil.
//
// Returns:
// - *Gateway: The gateway.
// - error: Any construction error.
func New(cfg *config.GatewayConfig, logger *slog.Logger, redisClient *redis.Client) (*Gateway, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	gw := &Gateway{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
	}

	if cfg.Metrics.Enabled {
		metrics.InitMetrics()
	}

	if cfg.Session.Enabled {
		var store session.Store
		switch cfg.Session.Store {
		case config.StoreRedis:
			if redisClient == nil {
				return nil, errors.New("session store redis requires a redis client")
			}
			store = session.NewRedisStore(redisClient)
		default:
			store = session.NewMemoryStore()
		}

		manager, err := session.NewManager(cfg.Session, store)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		gw.Sessions = session.NewCoordinator(manager)
	}

	registry, err := target.NewRegistry(cfg.Targets, target.Env{
		Logger:         logger,
		SessionEnabled: cfg.Session.Enabled,
	})
	if err != nil {
		return nil, err
	}
	gw.Targets = registry

	logger.Info("Gateway ready",
		slog.Int("targets", len(registry.Targets())),
		slog.Int("upgrade_targets", len(registry.UpgradeTargets())),
		slog.Bool("sessions", gw.Sessions != nil))

	return gw, nil
}

// Close releases the resources held by the targets.
func (g *Gateway) Close() error {
	return g.Targets.Close()
}
