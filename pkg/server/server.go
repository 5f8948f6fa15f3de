// Package server implements the HTTP update endpoint speaking the DynDNS
// plaintext protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bkero/dynr53/pkg/credstore"
	"github.com/bkero/dynr53/pkg/reconcile"
)

// credentialSource supplies the single administrative credential pair.
type credentialSource interface {
	Get(ctx context.Context) (credstore.Credential, error)
}

// zoneResolver maps a fully-qualified hostname to a hosted zone ID.
type zoneResolver interface {
	Resolve(ctx context.Context, hostname string) (string, error)
}

// reconciler converges a hostname's A record onto a target IP.
type reconciler interface {
	Reconcile(ctx context.Context, hostname, zoneID, ip string) (reconcile.Outcome, error)
}

// Config holds server tuning parameters.
type Config struct {
	// Listen is the address the HTTP server binds to. Default: ":8080".
	Listen string
	// ForwardedHeader is the proxy header consulted for the client IP when
	// myip is absent. Default: "X-Forwarded-For".
	ForwardedHeader string
	// TrustedProxies restricts which peers may supply ForwardedHeader.
	// Empty means the header is trusted from any peer, matching a deployment
	// behind a presumed-trusted edge proxy.
	TrustedProxies []netip.Prefix
	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.ForwardedHeader == "" {
		c.ForwardedHeader = "X-Forwarded-For"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server serves the DynDNS update endpoint.
type Server struct {
	cfg   Config
	creds credentialSource
	zones zoneResolver
	rec   reconciler
	log   *slog.Logger
}

// New returns a Server wired with the given collaborators and config.
func New(cfg Config, creds credentialSource, zones zoneResolver, rec reconciler, log *slog.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, creds: creds, zones: zones, rec: rec, log: log}
}

// Handler builds the http.Handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Go 1.21's ServeMux lacks method patterns ("GET /path"); this wrapper
	// reproduces the Go 1.22 behavior of 405 + Allow on a non-GET request.
	getOnly := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
				return
			}
			h.ServeHTTP(w, r)
		})
	}

	mux.Handle("/nic/update", getOnly(http.HandlerFunc(s.handleUpdate)))
	mux.Handle("/healthz", getOnly(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})))
	mux.Handle("/metrics", getOnly(promhttp.Handler()))

	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("update endpoint listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", s.cfg.Listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
