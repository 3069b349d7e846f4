package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
)

// Handler manages graceful shutdown of the application
type Handler struct {
	shutdownFuncs []func() error
	mu            sync.Mutex
	once          sync.Once
	err           error
	logger        *logger.Logger
}

// NewHandler creates a new graceful shutdown handler
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		shutdownFuncs: make([]func() error, 0),
		logger:        log.WithComponent("shutdown"),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (h *Handler) RegisterShutdownFunc(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, fn)
}

// WatchSignals returns a context that is cancelled on SIGINT or SIGTERM, or when cancel is called
func (h *Handler) WatchSignals(parent context.Context) (context.Context, context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := h.watch(parent, sigChan)
	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func (h *Handler) watch(parent context.Context, sigChan <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		select {
		case sig := <-sigChan:
			h.logger.Infow("Received signal, cancelling scan", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Shutdown executes all registered shutdown functions in reverse order. Only the first call
// has any effect.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		var errs []error
		for i := len(h.shutdownFuncs) - 1; i >= 0; i-- {
			if err := h.shutdownFuncs[i](); err != nil {
				h.logger.Warnw("Error during shutdown", "error", err)
				errs = append(errs, err)
			}
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}

// ShutdownWithTimeout runs Shutdown but stops waiting after timeout. Exporter flushes can hang
// on an unreachable collector.
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	result := make(chan error, 1)

	go func() {
		result <- h.Shutdown()
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
