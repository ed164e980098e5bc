// Команда loadtest нагружает HTTP API книжного магазина типовыми сценариями покупателей.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookshop/internal/transport/httpapi"
)

type scenario string

const (
	// scenarioBrowse читает справочник статусов и список заказов.
	scenarioBrowse scenario = "browse"
	// scenarioCart кладёт книгу в корзину, применяет купон и отменяет заказ.
	scenarioCart scenario = "cart"
)

const cancelledStatusID = 20

type config struct {
	baseURL     string
	jwtSecret   string
	users       []string
	bookID      string
	coupon      string
	scenario    scenario
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	outputPath  string
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg         config
		users       string
		scenarioRaw string
	)
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "book-shop API base URL")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "HS256 secret for test tokens (fallback: BOOKSHOP_JWT_SECRET)")
	fs.StringVar(&users, "users", "alice,bob", "comma-separated customer ids; each worker sticks to one user")
	fs.StringVar(&cfg.bookID, "book", "dune", "book id for the cart scenario")
	fs.StringVar(&cfg.coupon, "coupon", "SAVE10", "coupon for the cart scenario, empty to skip")
	fs.StringVar(&scenarioRaw, "scenario", string(scenarioBrowse), "scenario: browse | cart")
	fs.IntVar(&cfg.total, "total", 200, "scenarios to run; with -duration only applied when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration")
	fs.IntVar(&cfg.concurrency, "concurrency", 2, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		cfg.jwtSecret = getenv("BOOKSHOP_JWT_SECRET")
	}
	for _, u := range strings.Split(users, ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.users = append(cfg.users, u)
		}
	}
	cfg.scenario = scenario(strings.TrimSpace(scenarioRaw))

	var errs []error
	if cfg.baseURL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required (-jwt-secret or BOOKSHOP_JWT_SECRET)"))
	}
	if len(cfg.users) == 0 {
		errs = append(errs, errors.New("at least one user is required"))
	}
	switch cfg.scenario {
	case scenarioBrowse:
	case scenarioCart:
		if strings.TrimSpace(cfg.bookID) == "" {
			errs = append(errs, errors.New("book is required for the cart scenario"))
		}
		if cfg.concurrency > len(cfg.users) {
			errs = append(errs, errors.New("cart scenario needs a distinct user per worker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported scenario %q", cfg.scenario))
	}
	if cfg.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if (cfg.duration == 0 || cfg.totalSet) && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

// apiClient вызывает API от имени одного пользователя и пишет замеры в collector.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func (c *apiClient) call(ctx context.Context, name, method, path string, body any, out any) (int, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(httpapi.IdempotencyKeyHeader, uuid.NewString())
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), 0)
		return 0, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	c.col.record(name, time.Since(start), res.StatusCode)
	if err != nil {
		return res.StatusCode, err
	}
	if res.StatusCode >= 400 {
		return res.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, res.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return res.StatusCode, fmt.Errorf("decode %s response: %w", name, err)
		}
	}
	return res.StatusCode, nil
}

func runScenario(ctx context.Context, cfg config, c *apiClient) error {
	start := time.Now()
	code := http.StatusOK
	defer func() { c.col.record(scenarioMethod, time.Since(start), code) }()

	err := func() error {
		switch cfg.scenario {
		case scenarioCart:
			var order struct {
				ID string `json:"id"`
			}
			if _, err := c.call(ctx, "AddItem", http.MethodPost, "/book-shop-orders/items", map[string]string{"book_id": cfg.bookID}, &order); err != nil {
				return err
			}
			if cfg.coupon != "" {
				if _, err := c.call(ctx, "ApplyCoupon", http.MethodPost, "/book-shop-orders/coupon", map[string]string{"coupon_code": cfg.coupon}, nil); err != nil {
					return err
				}
			}
			_, err := c.call(ctx, "Cancel", http.MethodPatch, "/book-shop-orders/"+order.ID, map[string]int{"status_id": cancelledStatusID}, nil)
			return err
		default:
			if _, err := c.call(ctx, "ListStatuses", http.MethodGet, "/book-shop-order-statuses", nil, nil); err != nil {
				return err
			}
			_, err := c.call(ctx, "ListOrders", http.MethodGet, "/book-shop-orders", nil, nil)
			return err
		}
	}()
	if err != nil {
		code = http.StatusInternalServerError
	}
	return err
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	auth := httpapi.NewAuthenticator(cfg.jwtSecret)
	col := newCollector()
	clients := make([]*apiClient, 0, cfg.concurrency)
	for i := 0; i < cfg.concurrency; i++ {
		token, err := auth.Issue(cfg.users[i%len(cfg.users)], time.Hour)
		if err != nil {
			return report{}, fmt.Errorf("issue token: %w", err)
		}
		clients = append(clients, &apiClient{baseURL: cfg.baseURL, token: token, http: httpClient, timeout: cfg.timeout, col: col})
	}

	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(c *apiClient) {
			defer wg.Done()
			for range jobs {
				_ = runScenario(ctx, cfg, c)
			}
		}(client)
	}
	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
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
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}
