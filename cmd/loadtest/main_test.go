package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	layer := cache.NewLayer(cache.NewMemoryCache(), nil, nil)
	products := memory.NewProductRepository(store)
	coordinator := orders.NewCoordinator(memory.NewTxRunner(store))

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Accounts: auth.NewService(
			memory.NewUserRepository(store),
			memory.NewTokenRepository(store),
			auth.WithBcryptCost(bcrypt.MinCost),
		),
		Catalog:     catalog.NewService(products, layer, nil),
		Orders:      orders.NewService(coordinator, memory.NewOrderRepository(store), products, layer, nil),
		Idempotency: memory.NewIdempotencyRepository(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config {
	return config{
		baseURL:     baseURL,
		total:       12,
		concurrency: 4,
		timeout:     5 * time.Second,
		mode:        modeCreate,
		stock:       5,
		quantity:    1,
		price:       decimal.RequireFromString("9.90"),
	}
}

func TestRun_NeverOversells(t *testing.T) {
	srv := newShopServer(t)

	result, err := run(context.Background(), testConfig(srv.URL), srv.Client())
	require.NoError(t, err)

	require.Equal(t, int64(12), result.TotalScenarios)
	require.Equal(t, int64(5), result.SuccessScenarios)
	require.Equal(t, int64(7), result.FailedScenarios)
	require.Equal(t, int64(7), result.OutOfStock)
	require.Equal(t, stockReport{Initial: 5, Ordered: 5, Remaining: 0, Consistent: true}, result.Stock)

	create := result.Endpoints["POST /api/pedidos"]
	require.Equal(t, int64(12), create.Calls)
	require.Equal(t, int64(5), create.Statuses["201"])
	require.Equal(t, int64(7), create.Statuses["422"])
}

func TestRun_CreateCancel(t *testing.T) {
	srv := newShopServer(t)

	cfg := testConfig(srv.URL)
	cfg.mode = modeCreateCancel
	cfg.cancelRate = 100
	cfg.total = 4
	cfg.stock = 10
	cfg.quantity = 2

	result, err := run(context.Background(), cfg, srv.Client())
	require.NoError(t, err)

	require.Equal(t, int64(4), result.SuccessScenarios)
	require.Equal(t, int64(4), result.Endpoints["POST /api/pedidos/{id}/cancel"].Success)
	// Отмена не возвращает товар на склад.
	require.Equal(t, stockReport{Initial: 10, Ordered: 8, Remaining: 2, Consistent: true}, result.Stock)
}

func TestRun_FailsWhenServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := run(context.Background(), testConfig(srv.URL), &http.Client{})
	require.ErrorContains(t, err, "register load-test user")
}

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseConfig(nil, io.Discard)
		require.NoError(t, err)
		require.Equal(t, "http://localhost:8080", cfg.baseURL)
		require.Equal(t, modeCreate, cfg.mode)
		require.Equal(t, 400, cfg.total)
		require.False(t, cfg.totalSet)
		require.True(t, cfg.price.Equal(decimal.RequireFromString("9.90")))
	})

	t.Run("explicit total with duration", func(t *testing.T) {
		cfg, err := parseConfig([]string{"-duration", "1m", "-total", "10", "-addr", "http://shop:8080/"}, io.Discard)
		require.NoError(t, err)
		require.True(t, cfg.totalSet)
		require.Equal(t, time.Minute, cfg.duration)
		require.Equal(t, "http://shop:8080", cfg.baseURL)
	})

	invalid := map[string][]string{
		"mode":        {"-mode", "create-pay"},
		"concurrency": {"-concurrency", "0"},
		"quantity":    {"-quantity", "0"},
		"price":       {"-price", "0"},
		"bad price":   {"-price", "abc"},
		"cancel rate": {"-cancel-rate", "101"},
		"stock":       {"-stock", "-1"},
		"total":       {"-total", "0"},
	}
	for name, args := range invalid {
		t.Run("invalid "+name, func(t *testing.T) {
			_, err := parseConfig(args, io.Discard)
			require.Error(t, err)
		})
	}
}

func TestDispatchJobs_CountMode(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 3})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestDispatchJobs_DurationModeRespectsExplicitTotal(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 2, totalSet: true, duration: time.Minute})

	count := 0
	for range jobs {
		count++
	}
	require.Equal(t, 2, count)
}

func TestShouldCancelScenario(t *testing.T) {
	require.False(t, shouldCancelScenario(0, 0))
	require.True(t, shouldCancelScenario(99, 100))
	require.True(t, shouldCancelScenario(10, 25))
	require.False(t, shouldCancelScenario(30, 25))
	require.True(t, shouldCancelScenario(110, 25))
}

func TestBuildLatencySummary(t *testing.T) {
	require.Equal(t, latencySummary{}, buildLatencySummary(nil))

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 4.0, summary.Max)
	require.Equal(t, 2.5, summary.Avg)
	require.Equal(t, 2.5, summary.P50)
	require.InDelta(t, 3.85, summary.P95, 1e-9)
}

func TestCollectorBuildReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 2*time.Millisecond, http.StatusOK)
	col.record(scenarioMethod, 4*time.Millisecond, http.StatusUnprocessableEntity)
	col.record("POST /api/pedidos", time.Millisecond, 0)

	result := col.buildReport(time.Now(), time.Second)
	require.Equal(t, int64(2), result.TotalScenarios)
	require.Equal(t, int64(1), result.OutOfStock)
	require.Equal(t, 0.5, result.ErrorRate)
	require.Equal(t, 2.0, result.RPS)
	require.Equal(t, int64(1), result.Endpoints["POST /api/pedidos"].Statuses[transportError])
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3}))

	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, int64(3), decoded.TotalScenarios)

	require.Error(t, writeJSONReport("../escape.json", report{}))
	require.Error(t, writeJSONReport(".", report{}))
}

func TestPrintReport(t *testing.T) {
	var out strings.Builder
	printReport(&out, report{
		TotalScenarios: 1,
		Endpoints:      map[string]endpointReport{"POST /api/pedidos": {Calls: 1}, scenarioMethod: {Calls: 1}},
		Stock:          stockReport{Initial: 1, Ordered: 1, Consistent: true},
	}, config{mode: modeCreate, total: 1})

	require.Contains(t, out.String(), "mode=create run=count:1")
	require.Contains(t, out.String(), "consistent=true")
	require.Contains(t, out.String(), "POST /api/pedidos: calls=1")
	require.NotContains(t, out.String(), "scenario: calls")
}
