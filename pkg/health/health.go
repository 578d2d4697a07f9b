// Package health provides the liveness endpoint shared by all bridges.
// Components register Check functions; the health endpoint runs them
// concurrently and answers with a plain OK or FAIL.
package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Status represents the health state of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check is a function that checks a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status
	Message string
}

// Up and Down build ComponentHealth values.
func Up() ComponentHealth { return ComponentHealth{Status: StatusUp} }

func Down(format string, args ...any) ComponentHealth {
	return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf(format, args...)}
}

// Pinger is a store connection that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports a store as down while its Ping fails.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return Down("ping: %v", err)
		}
		return Up()
	}
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks concurrently and returns the result of
// each. A panicking check counts as down.
func (c *Checker) Run(ctx context.Context) map[string]ComponentHealth {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch Check) {
			defer wg.Done()
			result := runCheck(ctx, ch)
			mu.Lock()
			results[n] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}

func runCheck(ctx context.Context, ch Check) (result ComponentHealth) {
	defer func() {
		if r := recover(); r != nil {
			result = Down("check panicked: %v", r)
		}
	}()
	return ch(ctx)
}

// Healthy reports whether every registered check is up.
func (c *Checker) Healthy(ctx context.Context) bool {
	healthy := true
	for name, result := range c.Run(ctx) {
		if result.Status != StatusUp {
			c.logger.Warn("health check failed", "check", name, "message", result.Message)
			healthy = false
		}
	}
	return healthy
}

// Handler serves the health check at endpoint: GET answers 200 "OK" or 503 "FAIL",
// other methods get 405 and other paths 404.
func (c *Checker) Handler(endpoint string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(endpoint, c.serveStatus).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusMethodNotAllowed, "")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, "")
	})
	return r
}

func (c *Checker) serveStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if c.Healthy(ctx) {
		writeText(w, http.StatusOK, "OK")
		return
	}
	writeText(w, http.StatusServiceUnavailable, "FAIL")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if body != "" {
		io.WriteString(w, body)
	}
}

// StartServer serves the health check on port in the background and returns the
// server's shutdown function.
func StartServer(port int, endpoint string, checker *Checker) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      checker.Handler(endpoint),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", server.Addr, "endpoint", endpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	return server.Shutdown
}
