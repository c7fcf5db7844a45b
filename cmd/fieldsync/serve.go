package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/backend/cmd/fieldsync/handlers"
	"github.com/kimhsiao/fieldsync/backend/internal/errors"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
	"github.com/kimhsiao/fieldsync/backend/internal/sync/trigger"
)

const shutdownTimeout = 10 * time.Second

// newServeCommand creates the serve command.
func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API and drain the queue whenever the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, opts, func(a *app) error {
				return serve(ctx, a, nil)
			})
		},
	}
}

// eventSource builds the trigger's signal sources. ui receives lifecycle
// events posted to the local API.
func eventSource(a *app, ui *trigger.ManualSource) trigger.EventSource {
	var others []trigger.EventSource
	if a.cfg.Trigger.Signals {
		others = append(others, trigger.NewSignalSource())
	}
	if a.client == nil {
		return trigger.NewMultiSource(ui, others...)
	}
	others = append(others, ui)
	return trigger.NewMultiSource(trigger.NewProbeSource(a.client, a.cfg.Trigger.ProbeInterval), others...)
}

// serve runs until ctx is done. onListen, if set, receives the bound address
// once the API accepts connections.
func serve(ctx context.Context, a *app, onListen func(net.Addr)) error {
	ui := trigger.NewManualSource(false)
	source := eventSource(a, ui)

	var drainer handlers.Drainer
	d := a.drainer()
	if d != nil {
		drainer = d
	} else {
		logging.Warn("No backend URL configured; queued submissions will not be delivered", nil)
	}

	if n, err := a.queue.Count(ctx); err == nil {
		a.metrics.SetQueueDepth(n)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(
		handlers.NewQueueHandler(a.queue, drainer, a.metrics),
		handlers.NewLifecycleHandler(ui, source.Online),
		a.registry,
	)

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The API accepts offline submissions before the trigger's first
	// connectivity probe.
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to listen", err)
	}

	if onListen != nil {
		onListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("fieldsync API listening", map[string]interface{}{
			"addr":    ln.Addr().String(),
			"backend": a.cfg.Backend,
		})
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if d != nil {
		t := trigger.New(source, a.metrics)
		t.Start(ctx, func(ctx context.Context, reason string) {
			if _, err := d.Drain(ctx); err != nil {
				logging.ErrorWithCode("Triggered drain failed", string(errors.CodeOf(err)), err,
					map[string]interface{}{"reason": reason})
			}
		})
		defer t.Stop()
	}

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(errors.ErrInternal, "local API failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to shut down local API", err)
	}
	logging.Info("fieldsync API stopped", nil)
	return nil
}
