package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит метрики заказов, кэша и HTTP API.
// Все методы безопасно вызывать на nil.
type ShopMetrics struct {
	// Счётчики операций с заказами
	ordersCreated     prometheus.Counter
	ordersUpdated     prometheus.Counter
	ordersCancelled   prometheus.Counter
	ordersFailed      *prometheus.CounterVec
	insufficientStock prometheus.Counter

	// Транзакции
	txDuration *prometheus.HistogramVec
	txRetries  *prometheus.CounterVec

	// Кэш
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheErrors      *prometheus.CounterVec
	cacheInvalidated *prometheus.CounterVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewShopMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_updated_total",
			Help: "Total number of orders whose items were rebuilt",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_failed_total",
			Help: "Total number of failed order operations by operation and reason",
		}, []string{"operation", "reason"}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_insufficient_stock_total",
			Help: "Total number of order operations rejected for insufficient stock",
		}),
		txDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_tx_duration_seconds",
			Help:    "Duration of order transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		txRetries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_tx_retries_total",
			Help: "Total number of order transactions retried after deadlock or serialization failure",
		}, []string{"operation"}),
		cacheHits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cache_hits_total",
			Help: "Total number of read-through cache hits",
		}),
		cacheMisses: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cache_misses_total",
			Help: "Total number of read-through cache misses",
		}),
		cacheErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_cache_errors_total",
			Help: "Total number of cache faults served in degraded mode",
		}, []string{"operation"}),
		cacheInvalidated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_cache_invalidated_keys_total",
			Help: "Total number of cache keys purged by invalidation",
		}, []string{"entity"}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, prometheus.NewCounter(opts), opts.Name)
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, prometheus.NewCounterVec(opts, labels), opts.Name)
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, prometheus.NewHistogramVec(opts, labels), opts.Name)
}

// register возвращает уже зарегистрированный коллектор того же типа,
// если метрика с таким именем есть в registerer.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C, name string) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *ShopMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderUpdated увеличивает счётчик изменённых заказов.
func (m *ShopMetrics) RecordOrderUpdated() {
	if m == nil {
		return
	}
	m.ordersUpdated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *ShopMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordOrderFailed фиксирует неуспешную операцию с заказом.
func (m *ShopMetrics) RecordOrderFailed(operation, reason string) {
	if m == nil {
		return
	}
	m.ordersFailed.WithLabelValues(operation, reason).Inc()
}

func (m *ShopMetrics) RecordInsufficientStock() {
	if m == nil {
		return
	}
	m.insufficientStock.Inc()
}

// RecordTxDuration записывает время транзакции заказа, включая повторы.
func (m *ShopMetrics) RecordTxDuration(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *ShopMetrics) RecordTxRetry(operation string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation).Inc()
}

func (m *ShopMetrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *ShopMetrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordCacheError фиксирует сбой кэша, после которого запрос обслужен без него.
func (m *ShopMetrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(operation).Inc()
}

// RecordInvalidatedKeys добавляет число удалённых при инвалидации ключей.
func (m *ShopMetrics) RecordInvalidatedKeys(entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cacheInvalidated.WithLabelValues(entity).Add(float64(count))
}

// RecordHTTPRequest фиксирует обработанный HTTP-запрос.
func (m *ShopMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
