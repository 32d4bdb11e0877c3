// Package shutdown coordinates graceful process termination: wait for a
// cancellation signal, then run each component's cleanup in order under a
// bounded timeout so a hung cleanup can't block the process past its
// container's grace period.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aire-platform/eventbus/internal/logging"
)

// defaultTimeout leaves a buffer before Kubernetes sends SIGKILL at its
// default 30s terminationGracePeriodSeconds.
const defaultTimeout = 25 * time.Second

// Coordinator runs cleanup functions once a shutdown signal arrives,
// bounding their combined execution by a timeout.
type Coordinator struct {
	timeout time.Duration
	log     logging.Logger
}

// NewCoordinator builds a Coordinator. A zero timeout uses defaultTimeout.
func NewCoordinator(timeout time.Duration, log logging.Logger) *Coordinator {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Coordinator{timeout: timeout, log: log}
}

// WaitForShutdown blocks until ctx is cancelled (typically by
// signal.NotifyContext on SIGTERM/SIGINT), then runs cleanupFuncs in order
// against a fresh context bounded by the coordinator's timeout. A service's
// bus.Stop and an HTTP server's Shutdown are typical cleanupFuncs.
func (c *Coordinator) WaitForShutdown(ctx context.Context, cleanupFuncs ...func(context.Context) error) error {
	<-ctx.Done()
	c.log.Info("shutdown signal received, starting graceful shutdown")

	cleanupCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var errs []error
	for i, cleanupFunc := range cleanupFuncs {
		c.log.With("step", i+1).With("total", len(cleanupFuncs)).Debug("running cleanup function")
		if err := cleanupFunc(cleanupCtx); err != nil {
			c.log.With("step", i+1).Errorf("cleanup function failed", err)
			errs = append(errs, fmt.Errorf("cleanup %d: %w", i+1, err))
		}
	}

	if cleanupCtx.Err() == context.DeadlineExceeded {
		c.log.With("timeout", c.timeout).Error("shutdown timeout exceeded")
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded: %w", cleanupCtx.Err()))
	}

	if len(errs) == 0 {
		c.log.Info("graceful shutdown completed successfully")
		return nil
	}

	c.log.With("error_count", len(errs)).Error("graceful shutdown completed with errors")
	return errors.Join(errs...)
}
