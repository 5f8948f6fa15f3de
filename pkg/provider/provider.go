// Package provider defines the Provider interface for DNS backends.
package provider

import (
	"context"
	"errors"

	"github.com/bkero/dynr53/pkg/endpoint"
)

// ErrUnauthorized indicates the DNS backend rejected a call because the
// service's identity lacks permission for it. Callers must never conflate
// this with a missing zone or record: the permission boundary is scoped per
// record name, and reporting it as "not found" would mask a policy problem.
var ErrUnauthorized = errors.New("provider authorization denied")

// Zone is a hosted zone as the DNS backend reports it.
type Zone struct {
	// Name is the zone name with trailing dot (e.g. "example.com.").
	Name string
	// ID is the backend's opaque zone identifier, without any path prefix.
	ID string
}

// Provider is implemented by every DNS backend.
type Provider interface {
	// Zones lists hosted zones, starting the backend's ordered listing at
	// nameHint. The implementation owns pagination; callers see a single
	// slice. The result may contain zones other than nameHint — exact
	// matching is the caller's concern.
	Zones(ctx context.Context, nameHint string) ([]Zone, error)

	// Records returns the A record sets named exactly name within the zone.
	Records(ctx context.Context, zoneID, name string) ([]*endpoint.RecordSet, error)

	// UpsertRecordSet creates or replaces a record set in the zone.
	UpsertRecordSet(ctx context.Context, zoneID string, rs *endpoint.RecordSet) error
}
