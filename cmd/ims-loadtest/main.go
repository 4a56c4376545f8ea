package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type loadMode string

const (
	modePlace       loadMode = "place"
	modePlaceCancel loadMode = "place-cancel"
)

const (
	methodPlaceOrder  = "place_order"
	methodCancelOrder = "cancel_order"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	stock       int
	price       float64
	qty         int
	outputPath  string
}

func (c config) validate() error {
	if strings.TrimSpace(c.addr) == "" {
		return errors.New("addr is required")
	}
	if c.duration < 0 {
		return errors.New("duration must be >= 0")
	}
	if c.duration == 0 && c.total <= 0 {
		return errors.New("total must be > 0 when duration is not set")
	}
	if c.duration > 0 && c.totalSet && c.total <= 0 {
		return errors.New("total must be > 0 when explicitly set with duration")
	}
	if c.concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.mode != modePlace && c.mode != modePlaceCancel {
		return fmt.Errorf("unsupported mode: %s", c.mode)
	}
	if c.cancelRate < 0 || c.cancelRate > 100 {
		return errors.New("cancel-rate must be between 0 and 100")
	}
	if c.stock < 0 {
		return errors.New("stock must be >= 0")
	}
	if c.price <= 0 {
		return errors.New("price must be > 0")
	}
	if c.qty <= 0 {
		return errors.New("qty must be > 0")
	}
	return nil
}

func (c config) shouldCancel(index int) bool {
	if c.mode == modePlaceCancel {
		return true
	}
	return index%100 < c.cancelRate
}

func newRootCmd() *cobra.Command {
	var (
		cfg  config
		mode string
	)

	cmd := &cobra.Command{
		Use:   "ims-loadtest",
		Short: "Нагрузочный прогон оформления и отмены заказов через HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.mode = loadMode(strings.TrimSpace(mode))
			cfg.totalSet = cmd.Flags().Changed("total")
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			result, err := run(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), result, cfg)
			if cfg.outputPath != "" {
				if err := writeJSONReport(cfg.outputPath, result); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
			}
			if result.Stock != nil && !result.Stock.Consistent {
				return errors.New("stock is inconsistent with placed and cancelled orders")
			}
			if result.FailedScenarios > 0 {
				return fmt.Errorf("%d scenarios failed", result.FailedScenarios)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.addr, "addr", "localhost:8080", "HTTP API address")
	flags.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flags.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	flags.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flags.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	flags.StringVar(&mode, "mode", string(modePlace), "load mode: place | place-cancel")
	flags.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel share in percent for place mode (0..100)")
	flags.IntVar(&cfg.stock, "stock", 100, "initial stock of the load-test product")
	flags.Float64Var(&cfg.price, "price", 10, "price of the load-test product")
	flags.IntVar(&cfg.qty, "qty", 1, "quantity per order line")
	flags.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")

	return cmd
}

type runCounters struct {
	placed    atomic.Int64
	rejected  atomic.Int64
	cancelled atomic.Int64
}

// run создаёт покупателя и товар с ограниченным остатком, гоняет сценарии
// и сверяет итоговый остаток с числом оформленных и отменённых заказов.
func run(ctx context.Context, cfg config) (report, error) {
	client := newAPIClient(cfg.addr, cfg.timeout)
	runID := uuid.NewString()[:8]
	logger := log.WithFields(log.Fields{"component": "loadtest", "run_id": runID})

	customerID, err := client.createCustomer(ctx, "customer-"+runID)
	if err != nil {
		return report{}, fmt.Errorf("setup: %w", err)
	}
	productID, err := client.createProduct(ctx, "product-"+runID, cfg.price, cfg.stock)
	if err != nil {
		return report{}, fmt.Errorf("setup: %w", err)
	}
	logger.WithFields(log.Fields{
		"customer_id": customerID,
		"product_id":  productID,
		"stock":       cfg.stock,
	}).Info("load test fixtures created")

	startedAt := time.Now()
	col := newCollector()
	var counters runCounters

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				runScenario(ctx, client, cfg, index, customerID, productID, col, &counters)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	actual, err := client.productQuantity(context.WithoutCancel(ctx), productID)
	if err != nil {
		return result, fmt.Errorf("verify stock: %w", err)
	}
	placed := int(counters.placed.Load())
	cancelled := int(counters.cancelled.Load())
	expected := cfg.stock - (placed-cancelled)*cfg.qty
	result.Stock = &stockCheck{
		Initial:    cfg.stock,
		Placed:     placed,
		Cancelled:  cancelled,
		Expected:   expected,
		Actual:     actual,
		Consistent: actual == expected && actual >= 0,
	}

	logger.WithFields(log.Fields{
		"placed":    placed,
		"rejected":  counters.rejected.Load(),
		"cancelled": cancelled,
	}).Info("load test finished")
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
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
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario оформляет заказ и при необходимости отменяет его.
// Отказ по остатку (409) считается ожидаемым исходом, а не ошибкой сценария.
func runScenario(
	ctx context.Context,
	client *apiClient,
	cfg config,
	index int,
	customerID, productID string,
	col *collector,
	counters *runCounters,
) {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	scenarioOK := true
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioStatus, scenarioOK)
	}()

	callStart := time.Now()
	resp, err := client.placeOrder(ctx, customerID, productID, cfg.qty)
	switch {
	case err != nil:
		col.record(methodPlaceOrder, time.Since(callStart), 0, false)
		scenarioStatus, scenarioOK = 0, false
		return
	case resp.status == http.StatusConflict:
		col.record(methodPlaceOrder, time.Since(callStart), resp.status, true)
		counters.rejected.Add(1)
		return
	case resp.status != http.StatusCreated:
		col.record(methodPlaceOrder, time.Since(callStart), resp.status, false)
		scenarioStatus, scenarioOK = resp.status, false
		return
	}
	col.record(methodPlaceOrder, time.Since(callStart), resp.status, true)
	counters.placed.Add(1)

	if !cfg.shouldCancel(index) {
		return
	}

	orderID, err := decodeCreated(resp, http.StatusCreated, "place order")
	if err != nil {
		scenarioStatus, scenarioOK = resp.status, false
		return
	}

	callStart = time.Now()
	resp, err = client.cancelOrder(ctx, orderID)
	switch {
	case err != nil:
		col.record(methodCancelOrder, time.Since(callStart), 0, false)
		scenarioStatus, scenarioOK = 0, false
	case resp.status != http.StatusNoContent:
		col.record(methodCancelOrder, time.Since(callStart), resp.status, false)
		scenarioStatus, scenarioOK = resp.status, false
	default:
		col.record(methodCancelOrder, time.Since(callStart), resp.status, true)
		counters.cancelled.Add(1)
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	return cmd.ExecuteContext(ctx)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
