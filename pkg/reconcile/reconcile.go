// Package reconcile decides whether a reported hostname→IP intent requires a
// DNS write and issues the upsert when it does.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bkero/dynr53/pkg/endpoint"
	"github.com/bkero/dynr53/pkg/provider"
)

// Outcome is the result of reconciling one update intent.
type Outcome struct {
	// Changed is true when an upsert was issued, false when the record
	// already matched.
	Changed bool
	// IP is the published address in canonical textual form.
	IP string
}

// Reconciler converges a hostname's A record onto a target IP.
type Reconciler struct {
	provider provider.Provider
	ttl      int64
	log      *slog.Logger
}

// New returns a Reconciler writing records with the given TTL
// (endpoint.DefaultTTL when ttl is 0).
func New(p provider.Provider, ttl int64, log *slog.Logger) *Reconciler {
	if ttl == 0 {
		ttl = endpoint.DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{provider: p, ttl: ttl, log: log}
}

// Reconcile queries the current A records for hostname in the zone and, when
// none already carries ip, upserts a single-value A record. Repeated reports
// of the same IP never generate a write: the comparison is by the provider's
// canonical textual form, so ip must already be canonicalized by the caller.
func (r *Reconciler) Reconcile(ctx context.Context, hostname, zoneID, ip string) (Outcome, error) {
	sets, err := r.provider.Records(ctx, zoneID, hostname)
	if err != nil {
		return Outcome{}, fmt.Errorf("querying records for %s: %w", hostname, err)
	}

	for _, rs := range sets {
		if rs.HasValue(ip) {
			r.log.Info("record already matches, no change required", "hostname", hostname, "ip", ip)
			return Outcome{Changed: false, IP: ip}, nil
		}
	}

	rs := endpoint.NewRecordSet(hostname, endpoint.RecordTypeA, r.ttl, []string{ip})
	if err := r.provider.UpsertRecordSet(ctx, zoneID, rs); err != nil {
		return Outcome{}, fmt.Errorf("upserting %s: %w", hostname, err)
	}
	r.log.Info("record upserted", "hostname", hostname, "ip", ip, "ttl", r.ttl)
	return Outcome{Changed: true, IP: ip}, nil
}
