// Command dynr53 serves a DynDNS-compatible update endpoint that reconciles
// hostname→IP reports against an AWS Route53 hosted zone, authenticating
// callers against a credential stored in AWS Secrets Manager.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	sm "github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/bkero/dynr53/pkg/credstore"
	"github.com/bkero/dynr53/pkg/endpoint"
	"github.com/bkero/dynr53/pkg/provider/route53"
	"github.com/bkero/dynr53/pkg/reconcile"
	"github.com/bkero/dynr53/pkg/server"
	"github.com/bkero/dynr53/pkg/zone"
)

func main() {
	// ---- Server flags ----
	listen := flag.String("listen",
		envOr("DYNR53_LISTEN", ":8080"),
		"Address for the HTTP update endpoint")
	secretName := flag.String("secret-name",
		envOr("DYNR53_SECRET_NAME", "dynr53/users/admin"),
		"Secrets Manager secret holding the admin username/password JSON")
	ttl := flag.Int64("ttl",
		envOrInt64("DYNR53_TTL", endpoint.DefaultTTL),
		"TTL in seconds for upserted A records")
	forwardedHeader := flag.String("forwarded-header",
		envOr("DYNR53_FORWARDED_HEADER", "X-Forwarded-For"),
		"Proxy header consulted for the client IP when myip is absent")
	trustedProxies := flag.String("trusted-proxies",
		envOr("DYNR53_TRUSTED_PROXIES", ""),
		"Comma-separated CIDRs allowed to supply the forwarded header (empty = trust any peer)")

	// ---- Shutdown flags ----
	shutdownTimeout := flag.Duration("shutdown-timeout",
		envOrDuration("DYNR53_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Maximum time to wait for graceful shutdown after SIGTERM")

	// ---- Logging flags ----
	logLevel := flag.String("log-level",
		envOr("DYNR53_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error")

	flag.Parse()

	log := newLogger(*logLevel)

	proxies, err := parsePrefixes(*trustedProxies)
	if err != nil {
		log.Error("invalid --trusted-proxies", "err", err)
		os.Exit(1)
	}

	// ---- AWS clients, constructed once for the process lifetime ----
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Error("failed to load AWS configuration", "err", err)
		os.Exit(1)
	}
	prov := route53.New(r53.NewFromConfig(awsCfg), log)
	creds := credstore.New(sm.NewFromConfig(awsCfg), *secretName, log)

	// ---- Wire the update pipeline ----
	srv := server.New(server.Config{
		Listen:          *listen,
		ForwardedHeader: *forwardedHeader,
		TrustedProxies:  proxies,
		ShutdownTimeout: *shutdownTimeout,
	},
		creds,
		zone.New(prov, log),
		reconcile.New(prov, *ttl, log),
		log,
	)

	// ---- Graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	log.Info("starting dynr53",
		"listen", *listen,
		"secret-name", *secretName,
		"ttl", *ttl,
		"forwarded-header", *forwardedHeader,
	)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// parsePrefixes parses a comma-separated list of CIDRs. Bare addresses are
// accepted as single-host prefixes.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("parsing %q: %w", part, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// newLogger returns a JSON logger writing to stderr at the given level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// envOr returns the value of the environment variable named key, or fallback
// if the variable is unset or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrInt64 returns the environment variable named key parsed as int64, or fallback.
func envOrInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// envOrDuration returns the environment variable named key parsed as
// time.Duration, or fallback.
func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
