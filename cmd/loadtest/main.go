package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	idempotencyHeader = "Idempotency-Key"
	scenarioMethod    = "scenario"
	transportError    = "transport_error"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateCancel loadMode = "create-cancel"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	stock       int
	quantity    int
	price       decimal.Decimal
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport сверяет остаток товара с числом успешно созданных заказов.
type stockReport struct {
	Initial    int  `json:"initial"`
	Ordered    int  `json:"ordered"`
	Remaining  int  `json:"remaining"`
	Consistent bool `json:"consistent"`
}

type report struct {
	StartedAt         time.Time                 `json:"started_at"`
	DurationSeconds   float64                   `json:"duration_seconds"`
	TotalScenarios    int64                     `json:"total_scenarios"`
	SuccessScenarios  int64                     `json:"success_scenarios"`
	FailedScenarios   int64                     `json:"failed_scenarios"`
	OutOfStock        int64                     `json:"out_of_stock"`
	ErrorRate         float64                   `json:"error_rate"`
	RPS               float64                   `json:"rps"`
	ScenarioLatencyMs latencySummary            `json:"scenario_latency_ms"`
	Endpoints         map[string]endpointReport `json:"endpoints"`
	Stock             stockReport               `json:"stock"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

// record учитывает вызов; status=0 означает сетевую ошибку.
func (c *collector) record(endpoint string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.endpoints[endpoint]
	if !ok {
		stats = &endpointStats{statuses: make(map[string]int64)}
		c.endpoints[endpoint] = stats
	}

	stats.calls++
	if status >= 200 && status < 300 {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[statusLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func statusLabel(status int) string {
	if status == 0 {
		return transportError
	}
	return strconv.Itoa(status)
}

func (s *endpointStats) report() endpointReport {
	statuses := make(map[string]int64, len(s.statuses))
	for code, count := range s.statuses {
		statuses[code] = count
	}
	return endpointReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Statuses:  statuses,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Endpoints:       make(map[string]endpointReport, len(c.endpoints)),
	}

	if scenario := c.endpoints[scenarioMethod]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.OutOfStock = scenario.statuses[strconv.Itoa(http.StatusUnprocessableEntity)]
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.endpoints {
		result.Endpoints[name] = stats.report()
	}
	return result
}

func parseConfig(args []string, out io.Writer) (config, error) {
	var (
		cfg      config
		mode     string
		priceRaw string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "shop API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "load mode: create | create-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 100, "cancel probability in percent for create-cancel mode (0..100)")
	fs.IntVar(&cfg.stock, "stock", 1000, "initial stock of the load-test product")
	fs.IntVar(&cfg.quantity, "quantity", 1, "units per order")
	fs.StringVar(&priceRaw, "price", "9.90", "unit price of the load-test product")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	parsedMode, err := parseMode(mode)
	if err != nil {
		return cfg, err
	}
	cfg.mode = parsedMode

	price, err := decimal.NewFromString(strings.TrimSpace(priceRaw))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.stock < 0:
		return cfg, errors.New("stock must be >= 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateCancel:
		return modeCreateCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, &http.Client{})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if !result.Stock.Consistent || result.FailedScenarios > result.OutOfStock {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	api := &apiClient{baseURL: cfg.baseURL, http: httpClient, timeout: cfg.timeout}

	if err := api.register(ctx, runID); err != nil {
		return report{}, fmt.Errorf("register load-test user: %w", err)
	}
	productID, err := api.createProduct(ctx, runID, cfg.stock, cfg.price)
	if err != nil {
		return report{}, fmt.Errorf("create load-test product: %w", err)
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var (
		ordered atomic.Int64
		wg      sync.WaitGroup
	)

	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if runScenario(ctx, api, cfg, productID, index, runID, col) {
					ordered.Add(int64(cfg.quantity))
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	remaining, err := api.productStock(ctx, productID)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	result.Stock = stockReport{
		Initial:    cfg.stock,
		Ordered:    int(ordered.Load()),
		Remaining:  remaining,
		Consistent: remaining >= 0 && remaining == cfg.stock-int(ordered.Load()),
	}
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario создаёт заказ и при необходимости отменяет его.
// Возвращает true, если заказ был создан.
func runScenario(ctx context.Context, api *apiClient, cfg config, productID int64, index int, runID string, col *collector) bool {
	started := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record(scenarioMethod, time.Since(started), scenarioStatus)
	}()

	key := fmt.Sprintf("lt-create-%s-%d", runID, index)
	orderID, status := api.createOrder(ctx, productID, cfg.quantity, key, col)
	if status != http.StatusCreated {
		scenarioStatus = status
		return false
	}

	if cfg.mode == modeCreateCancel && shouldCancelScenario(index, cfg.cancelRate) {
		if status := api.cancelOrder(ctx, orderID, col); status != http.StatusOK {
			scenarioStatus = status
		}
	}
	return true
}

type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   string
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// do выполняет запрос и декодирует поле data ответа в out.
func (c *apiClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

func (c *apiClient) register(ctx context.Context, runID string) error {
	var session struct {
		Token string `json:"token"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/register", map[string]string{
		"name":                  "Load Test",
		"email":                 fmt.Sprintf("load-%s@example.com", runID),
		"password":              "load-test-" + runID,
		"password_confirmation": "load-test-" + runID,
	}, nil, &session)
	if err != nil {
		return err
	}
	if status != http.StatusCreated || session.Token == "" {
		return fmt.Errorf("unexpected register status %d", status)
	}
	c.token = session.Token
	return nil
}

func (c *apiClient) createProduct(ctx context.Context, runID string, stock int, price decimal.Decimal) (int64, error) {
	var product struct {
		ID int64 `json:"id"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/produtos", map[string]any{
		"nome":      "load-test-" + runID,
		"preco":     price,
		"estoque":   stock,
		"categoria": "loadtest",
	}, nil, &product)
	if err != nil {
		return 0, err
	}
	if status != http.StatusCreated || product.ID == 0 {
		return 0, fmt.Errorf("unexpected create product status %d", status)
	}
	return product.ID, nil
}

func (c *apiClient) productStock(ctx context.Context, productID int64) (int, error) {
	var product struct {
		Stock int `json:"estoque"`
	}
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/produtos/%d", productID), nil, nil, &product)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("unexpected get product status %d", status)
	}
	return product.Stock, nil
}

func (c *apiClient) createOrder(ctx context.Context, productID int64, quantity int, key string, col *collector) (int64, int) {
	var order struct {
		ID int64 `json:"id"`
	}
	started := time.Now()
	status, err := c.do(ctx, http.MethodPost, "/api/pedidos", map[string]any{
		"items": []map[string]any{{"produto_id": productID, "quantidade": quantity}},
	}, map[string]string{idempotencyHeader: key}, &order)
	if err != nil {
		status = 0
	}
	col.record("POST /api/pedidos", time.Since(started), status)
	return order.ID, status
}

func (c *apiClient) cancelOrder(ctx context.Context, orderID int64, col *collector) int {
	started := time.Now()
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/pedidos/%d/cancel", orderID), nil, nil, nil)
	if err != nil {
		status = 0
	}
	col.record("POST /api/pedidos/{id}/cancel", time.Since(started), status)
	return status
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом -output.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d out_of_stock=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.OutOfStock, result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min, result.ScenarioLatencyMs.Avg, result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max,
	)
	_, _ = fmt.Fprintf(w, "stock: initial=%d ordered=%d remaining=%d consistent=%t\n",
		result.Stock.Initial, result.Stock.Ordered, result.Stock.Remaining, result.Stock.Consistent,
	)

	names := make([]string, 0, len(result.Endpoints))
	for name := range result.Endpoints {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Endpoints[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
