// Package endpoint defines the RecordSet type that represents a DNS record set
// and the name/address canonicalization helpers shared across the service.
package endpoint

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
)

// DNS record type constants.
const (
	RecordTypeA = "A"

	// DefaultTTL is the TTL in seconds applied to records the service writes
	// when none is configured.
	DefaultTTL = int64(60)
)

// RecordSet represents a DNS record set as the provider reports it.
type RecordSet struct {
	// Name is the fully-qualified DNS name with trailing dot (e.g. "app.example.com.").
	Name string
	// Type is the DNS record type (only "A" is ever written by this service).
	Type string
	// TTL is the time-to-live in seconds.
	TTL int64
	// Values holds the record values (IP addresses for A records).
	Values []string
}

// NewRecordSet returns a RecordSet with the name trailing-dot normalized and
// TTL defaulting to DefaultTTL.
func NewRecordSet(name, recordType string, ttl int64, values []string) *RecordSet {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &RecordSet{
		Name:   dns.Fqdn(name),
		Type:   recordType,
		TTL:    ttl,
		Values: values,
	}
}

// String returns a human-readable representation of the record set.
func (rs *RecordSet) String() string {
	return fmt.Sprintf("%s %s %s (TTL %d)", rs.Name, rs.Type, strings.Join(rs.Values, ","), rs.TTL)
}

// HasValue reports whether the record set contains exactly the given value.
// Comparison is by the provider's textual form, not binary address equality.
func (rs *RecordSet) HasValue(value string) bool {
	for _, v := range rs.Values {
		if v == value {
			return true
		}
	}
	return false
}

// CanonicalIP parses s as an IP address literal and returns its canonical
// textual form. The parse is strict: forms that the provider would store
// differently than given (e.g. IPv4 octets with leading zeros such as
// "192.168.001.1") are rejected rather than silently rewritten, so a value the
// service wrote is always string-equal to the value the provider returns.
func CanonicalIP(s string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid IP address %q: %w", s, err)
	}
	return addr.String(), nil
}

// NamesEqual reports whether two DNS names refer to the same record,
// ignoring trailing-dot and case differences.
func NamesEqual(a, b string) bool {
	return dns.CanonicalName(a) == dns.CanonicalName(b)
}
