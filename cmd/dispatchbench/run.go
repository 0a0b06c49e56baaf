package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	dispatch "github.com/ravynsoft/go-dispatch"
	"github.com/ravynsoft/go-dispatch/config"
	"github.com/ravynsoft/go-dispatch/core"
	"github.com/ravynsoft/go-dispatch/observability/history"
	dispatchprom "github.com/ravynsoft/go-dispatch/observability/prometheus"
)

// benchOptions describes one load run.
type benchOptions struct {
	Queues    int
	Producers int
	Items     int
	Rate      float64
	Work      time.Duration
	Timeout   time.Duration
}

// benchReport is the outcome of a load run.
type benchReport struct {
	Submitted int
	Elapsed   time.Duration
	Queues    []core.QueueStats
	Pool      core.PoolStats
	History   []history.Record
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "submit synthetic work to serial and concurrent queues",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "queues", Value: 8, Usage: "serial queues to create"},
			&cli.IntFlag{Name: "producers", Value: 4, Usage: "concurrent producer goroutines"},
			&cli.IntFlag{Name: "items", Value: 10000, Usage: "items per producer"},
			&cli.Float64Flag{Name: "rate", Usage: "items per second per producer, 0 for unlimited"},
			&cli.DurationFlag{Name: "work", Usage: "time each item spends working"},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "give up waiting after this long"},
			&cli.IntFlag{Name: "workers", Usage: "override pool.workers"},
			&cli.IntFlag{Name: "max-overcommit", Usage: "override pool.max_overcommit"},
			&cli.BoolFlag{Name: "bind", Usage: "override pool.bind_os_threads"},
			&cli.IntFlag{Name: "cache-limit", Usage: "override engine.cache_limit"},
			&cli.BoolFlag{Name: "history", Usage: "override engine.instrumentation"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "override metrics.addr"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	opts := benchOptions{
		Queues:    c.Int("queues"),
		Producers: c.Int("producers"),
		Items:     c.Int("items"),
		Rate:      c.Float64("rate"),
		Work:      c.Duration("work"),
		Timeout:   c.Duration("timeout"),
	}
	report, err := runBench(c.Context, cfg, opts, os.Stderr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bench failed: %v", err), 1)
	}
	return printReport(c.App.Writer, report)
}

// runBench builds an engine from cfg, drives it with opts and waits for
// every item to finish.
func runBench(ctx context.Context, cfg *config.Config, opts benchOptions, logOut io.Writer) (*benchReport, error) {
	if opts.Queues < 1 || opts.Producers < 1 || opts.Items < 0 {
		return nil, errors.New("queues and producers must be positive")
	}
	logger, err := cfg.Logger(logOut)
	if err != nil {
		return nil, err
	}
	engineConfig := cfg.EngineConfig(logger)

	var recorder *history.Recorder
	if cfg.Engine.Instrumentation {
		recorder = history.New(16)
		engineConfig.Hook = recorder
	}

	var poller *dispatchprom.SnapshotPoller
	if cfg.Metrics.Addr != "" {
		reg := prom.NewRegistry()
		exporter, err := dispatchprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, dispatchprom.ExporterOptions{})
		if err != nil {
			return nil, err
		}
		engineConfig.Metrics = exporter
		if poller, err = dispatchprom.NewSnapshotPoller(reg, cfg.Metrics.PollInterval); err != nil {
			return nil, err
		}
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Err().Err(err).Str("addr", srv.Addr).Log("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	eng, pool := dispatch.NewEngine("bench", cfg.PoolConfig(logger), engineConfig)
	pool.Start(ctx)

	queues := make([]*core.Queue, 0, opts.Queues+1)
	for i := range opts.Queues {
		queues = append(queues, eng.NewQueue(fmt.Sprintf("serial-%d", i), core.SerialAttr(benchQoS(i))))
	}
	queues = append(queues, eng.NewQueue("concurrent", core.ConcurrentAttr(core.QoSUtility)))
	defer func() {
		for _, q := range queues {
			if poller != nil {
				poller.RemoveQueue(q.Label())
			}
			q.Release()
		}
	}()

	if poller != nil {
		for _, q := range queues {
			poller.AddQueue(q.Label(), q)
		}
		poller.AddPool(pool.ID(), pool)
		poller.Start(ctx)
		defer poller.Stop()
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	done := core.NewGroup()
	producers, pctx := errgroup.WithContext(waitCtx)
	for p := range opts.Producers {
		producers.Go(func() error {
			return produce(pctx, p, queues, opts, done)
		})
	}
	if err := producers.Wait(); err != nil {
		pool.Stop()
		return nil, fmt.Errorf("producers: %w", err)
	}
	if err := done.Wait(waitCtx); err != nil {
		pool.Stop()
		return nil, fmt.Errorf("%d items still pending: %w", done.Pending(), err)
	}

	report := &benchReport{
		Submitted: opts.Producers * opts.Items,
		Elapsed:   time.Since(start),
		Pool:      pool.Stats(),
	}
	for _, q := range queues {
		report.Queues = append(report.Queues, q.Stats())
	}
	if recorder != nil {
		report.History = recorder.Recent(0)
	}
	if err := pool.StopGraceful(opts.Timeout); err != nil {
		return report, err
	}
	return report, nil
}

// produce submits opts.Items items, round-robin over queues, each at a
// priority chosen from its index so that queues see overrides.
func produce(ctx context.Context, id int, queues []*core.Queue, opts benchOptions, done *core.Group) error {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i := range opts.Items {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		q := queues[(id+i)%len(queues)]
		p := core.NewPriority(benchQoS(id+i), 0)
		done.Enter()
		q.AsyncWithPriority(ctx, p, func(context.Context) {
			defer done.Leave()
			if opts.Work > 0 {
				time.Sleep(opts.Work)
			}
		})
	}
	return nil
}

// benchQoS cycles through the concrete classes.
func benchQoS(i int) core.QoSClass {
	return core.QoSClass(i%6 + 1)
}

func printReport(out io.Writer, r *benchReport) error {
	perSec := float64(r.Submitted) / r.Elapsed.Seconds()
	fmt.Fprintf(out, "%d items in %v (%.0f/s)\n\n", r.Submitted, r.Elapsed.Round(time.Microsecond), perSec)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tTARGET\tBASE\tOVERRIDE\tEXECUTED\tDISCARDED")
	for _, s := range r.Queues {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", s.Label, s.Target, s.Base, s.Override, s.Executed, s.Discarded)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\npool %s: workers=%d overcommit=%d\n", r.Pool.ID, r.Pool.Workers, r.Pool.Overcommit)
	if len(r.History) > 0 {
		fmt.Fprintln(out, "\nrecent executions:")
		for _, h := range r.History {
			fmt.Fprintf(out, "  %s %s %s\n", h.At.Format(time.RFC3339Nano), h.Queue, h.Priority)
		}
	}
	return nil
}
