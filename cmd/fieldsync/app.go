package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kimhsiao/fieldsync/backend/internal/config"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/delivery"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/drain"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/backend/internal/telemetry"
)

// app wires the queue, delivery client and metrics for one command run.
type app struct {
	cfg      *config.Config
	queue    *queue.Queue
	client   *delivery.Client
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
}

// newApp opens the configured store. The delivery client is only built when
// a backend URL is configured.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := cfg.NewStore()
	if err != nil {
		return nil, err
	}
	q := queue.New(store)
	if err := q.Open(ctx); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		queue:    q,
		registry: reg,
		metrics:  telemetry.NewMetrics(reg),
	}

	if cfg.Delivery.BaseURL != "" {
		a.client, err = delivery.NewClient(delivery.Config{
			BaseURL:       cfg.Delivery.BaseURL,
			AuthToken:     cfg.Delivery.AuthToken,
			Timeout:       cfg.Delivery.Timeout,
			RatePerSecond: cfg.Delivery.RatePerSecond,
			UserAgent:     "fieldsync/" + Version,
		}, nil)
		if err != nil {
			q.Close()
			return nil, err
		}
	}
	return a, nil
}

// drainer returns nil when no backend URL is configured.
func (a *app) drainer() *drain.Drainer {
	if a.client == nil {
		return nil
	}
	return drain.New(a.queue, a.client, drain.Config{
		Concurrency: a.cfg.Drain.Concurrency,
		MaxRetries:  a.cfg.Drain.MaxRetries,
	}, a.metrics)
}

func (a *app) Close() error {
	return a.queue.Close()
}
