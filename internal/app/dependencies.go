package app

import (
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// cacheDependencies: кэш за circuit breaker'ом и его health-проверка.
type cacheDependencies struct {
	cache   *cache.Breaker
	checker healthcheck.Checker
	closeFn func() error
}

func initCache(cfg Config, logger *log.Entry) (cacheDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.CacheDriver))
	if driver == "" {
		driver = CacheDriverMemory
	}

	var (
		inner   cache.Cache
		closeFn func() error
	)
	switch driver {
	case CacheDriverMemory:
		inner = cache.NewMemoryCache()
		logger.Info("using in-memory cache")
	case CacheDriverRedis:
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		inner, closeFn = redisCache, redisCache.Close
		logger.WithField("addr", cfg.RedisAddr).Info("using redis cache")
	default:
		return cacheDependencies{}, fmt.Errorf("unsupported cache driver: %s", cfg.CacheDriver)
	}

	breaker := cache.NewBreaker(inner, cfg.CacheBreakerFailures, cfg.CacheBreakerResetTime, logger.WithField("component", "cache-breaker"))
	return cacheDependencies{
		cache: breaker,
		// Недоступный кэш не мешает обслуживать запросы из базы.
		checker: healthcheck.NewOptionalChecker("cache", breaker.Ping),
		closeFn: closeFn,
	}, nil
}

// Dependencies содержит сервисы, которые обслуживают HTTP API.
type Dependencies struct {
	Accounts *auth.Service
	Catalog  *catalog.Service
	Orders   *orders.Service
	Metrics  *metrics.ShopMetrics
	Logger   *log.Entry
}

// NewDependencies собирает сервисы поверх репозиториев и кэша.
func NewDependencies(cfg Config, rt runtimeDependencies, c cache.Cache, m *metrics.ShopMetrics, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	layer := cache.NewLayer(c, logger.WithField("component", "cache"), m)

	retry := orders.DefaultRetryConfig()
	if cfg.TxMaxAttempts > 0 {
		retry.MaxAttempts = cfg.TxMaxAttempts
	}
	coordinator := orders.NewCoordinator(
		rt.txRunner,
		orders.WithRetryConfig(retry),
		orders.WithMetrics(m),
		orders.WithLogger(logger.WithField("component", "order-coordinator")),
	)

	return &Dependencies{
		Accounts: auth.NewService(rt.users, rt.tokens, auth.WithLogger(logger.WithField("component", "auth"))),
		Catalog:  catalog.NewService(rt.products, layer, logger.WithField("component", "catalog")),
		Orders:   orders.NewService(coordinator, rt.orders, rt.products, layer, logger.WithField("component", "order-service")),
		Metrics:  m,
		Logger:   logger,
	}
}

// Router собирает HTTP API поверх сервисов.
func (d *Dependencies) Router(idempotency domain.IdempotencyRepository) http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Accounts:    d.Accounts,
		Catalog:     d.Catalog,
		Orders:      d.Orders,
		Idempotency: idempotency,
		Metrics:     d.Metrics,
		Logger:      d.Logger.WithField("component", "http-api"),
	})
}
