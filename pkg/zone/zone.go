// Package zone maps a fully-qualified hostname to its authoritative hosted
// zone identifier.
package zone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miekg/dns"

	"github.com/bkero/dynr53/pkg/provider"
)

// NotFoundError indicates the candidate zone is not registered with the
// DNS backend.
type NotFoundError struct {
	// Zone is the candidate zone name that could not be resolved.
	Zone string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("hosted zone %s not found", e.Zone)
}

// Resolver resolves hostnames to hosted zone IDs. Zones are looked up fresh
// on every call; nothing is cached across requests, so the backend's zone
// list is always the current authority.
type Resolver struct {
	provider provider.Provider
	log      *slog.Logger
}

// New returns a Resolver backed by the given provider.
func New(p provider.Provider, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{provider: p, log: log}
}

// Resolve strips exactly one label from hostname to obtain the candidate zone
// name and returns the ID of the hosted zone whose name matches it exactly.
//
// Only a single-level suffix match is attempted: a hostname whose zone would
// require stripping more than one label fails with NotFoundError. The
// permission model is scoped per allowed record name, so walking further up
// the tree here would silently broaden what the service can touch.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (string, error) {
	candidate := candidateZone(hostname)
	if candidate == "" {
		return "", &NotFoundError{Zone: hostname}
	}
	r.log.Debug("resolving hosted zone", "hostname", hostname, "candidate", candidate)

	zones, err := r.provider.Zones(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("resolving zone for %s: %w", hostname, err)
	}

	want := dns.CanonicalName(candidate)
	for _, z := range zones {
		if dns.CanonicalName(z.Name) == want {
			r.log.Debug("resolved hosted zone", "zone", z.Name, "id", z.ID)
			return z.ID, nil
		}
	}
	return "", &NotFoundError{Zone: candidate}
}

// candidateZone returns hostname minus its leftmost label, or "" when there
// is no label to strip.
func candidateZone(hostname string) string {
	name := strings.TrimSuffix(hostname, ".")
	_, rest, ok := strings.Cut(name, ".")
	if !ok || rest == "" {
		return ""
	}
	return rest
}
