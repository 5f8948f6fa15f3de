// Package fake provides an in-memory Provider implementation for testing.
package fake

import (
	"context"
	"sync"

	"github.com/miekg/dns"

	"github.com/bkero/dynr53/pkg/endpoint"
	"github.com/bkero/dynr53/pkg/provider"
)

// UpsertRecord is a snapshot of a single UpsertRecordSet call, kept for
// test assertions.
type UpsertRecord struct {
	ZoneID    string
	RecordSet *endpoint.RecordSet
}

// Provider is an in-memory DNS provider for testing. It tracks every call so
// tests can assert that specific backend operations did or did not happen.
type Provider struct {
	mu      sync.Mutex
	zones   []provider.Zone
	records map[string][]*endpoint.RecordSet // keyed by zoneID|name
	history []UpsertRecord

	zonesCalls   int
	recordsCalls int

	// ZonesErr, RecordsErr, and UpsertErr, when set, are returned by the
	// corresponding call instead of the in-memory result.
	ZonesErr   error
	RecordsErr error
	UpsertErr  error
}

// New returns a Provider pre-loaded with the given hosted zones.
func New(zones ...provider.Zone) *Provider {
	return &Provider{
		zones:   zones,
		records: make(map[string][]*endpoint.RecordSet),
	}
}

// Zones returns the zones whose names sort at or after nameHint.
func (p *Provider) Zones(_ context.Context, nameHint string) ([]provider.Zone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zonesCalls++
	if p.ZonesErr != nil {
		return nil, p.ZonesErr
	}
	hint := dns.CanonicalName(nameHint)
	out := make([]provider.Zone, 0, len(p.zones))
	for _, z := range p.zones {
		if dns.CanonicalName(z.Name) >= hint {
			out = append(out, z)
		}
	}
	return out, nil
}

// Records returns the stored A record sets for name in the zone.
func (p *Provider) Records(_ context.Context, zoneID, name string) ([]*endpoint.RecordSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordsCalls++
	if p.RecordsErr != nil {
		return nil, p.RecordsErr
	}
	return p.records[key(zoneID, name)], nil
}

// UpsertRecordSet replaces the record set in the in-memory store and appends
// an UpsertRecord to the history for later inspection.
func (p *Provider) UpsertRecordSet(_ context.Context, zoneID string, rs *endpoint.RecordSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.UpsertErr != nil {
		p.history = append(p.history, UpsertRecord{ZoneID: zoneID, RecordSet: rs})
		return p.UpsertErr
	}
	p.records[key(zoneID, rs.Name)] = []*endpoint.RecordSet{rs}
	p.history = append(p.history, UpsertRecord{ZoneID: zoneID, RecordSet: rs})
	return nil
}

// SetRecords seeds the store with record sets for name in the zone.
func (p *Provider) SetRecords(zoneID, name string, sets ...*endpoint.RecordSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[key(zoneID, name)] = sets
}

// History returns all UpsertRecordSet calls made so far, oldest first.
func (p *Provider) History() []UpsertRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]UpsertRecord, len(p.history))
	copy(out, p.history)
	return out
}

// ZonesCalls returns how many times Zones has been called.
func (p *Provider) ZonesCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zonesCalls
}

// RecordsCalls returns how many times Records has been called.
func (p *Provider) RecordsCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordsCalls
}

// Calls returns the total number of provider calls of any kind.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zonesCalls + p.recordsCalls + len(p.history)
}

func key(zoneID, name string) string {
	return zoneID + "|" + dns.CanonicalName(name)
}
