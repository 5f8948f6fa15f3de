package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bkero/dynr53/pkg/credstore"
	"github.com/bkero/dynr53/pkg/endpoint"
	"github.com/bkero/dynr53/pkg/provider"
	"github.com/bkero/dynr53/pkg/provider/fake"
	"github.com/bkero/dynr53/pkg/reconcile"
	"github.com/bkero/dynr53/pkg/zone"
)

// ---- Test helpers ----

const (
	testUser = "admin"
	testPass = "secret12345"
)

// fakeCreds is an in-memory credentialSource.
type fakeCreds struct {
	cred  credstore.Credential
	err   error
	calls int
}

func (f *fakeCreds) Get(_ context.Context) (credstore.Credential, error) {
	f.calls++
	if f.err != nil {
		return credstore.Credential{}, f.err
	}
	return f.cred, nil
}

func adminCreds() *fakeCreds {
	return &fakeCreds{cred: credstore.Credential{Username: testUser, Password: testPass}}
}

// newTestServer wires a Server over the fake provider with a registered
// example.com zone.
func newTestServer(cfg Config, creds *fakeCreds, p *fake.Provider) *Server {
	return New(cfg, creds, zone.New(p, nil), reconcile.New(p, 0, nil), nil)
}

// get performs a request against the handler. user == "" skips basic auth.
func get(t *testing.T, s *Server, target, user, pass string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func body(rr *httptest.ResponseRecorder) string {
	return strings.TrimSpace(rr.Body.String())
}

// ---- Authentication ----

func TestUpdate_NoAuth_Returns401(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", "", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if body(rr) != "badauth" {
		t.Errorf("body = %q, want badauth", body(rr))
	}
	if got := rr.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Basic") {
		t.Errorf("WWW-Authenticate = %q, want Basic challenge", got)
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0 (auth precedes all backend work)", p.Calls())
	}
}

func TestUpdate_WrongCredentials_Returns401(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
	}{
		{"wrong user", "eve", testPass},
		{"wrong password", testUser, "wrong"},
		{"both wrong", "eve", "wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
			s := newTestServer(Config{}, adminCreds(), p)

			rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", tt.user, tt.pass, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
			if body(rr) != "badauth" {
				t.Errorf("body = %q, want badauth", body(rr))
			}
			if p.Calls() != 0 {
				t.Errorf("provider calls = %d, want 0", p.Calls())
			}
		})
	}
}

// ---- Request validation ----

func TestUpdate_MissingHostname_Returns400(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", p.Calls())
	}
}

func TestUpdate_NoIPSource_Returns400(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com", testUser, testPass, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(body(rr), "X-Forwarded-For") {
		t.Errorf("body = %q, want the missing header named", body(rr))
	}
	if p.ZonesCalls() != 0 {
		t.Errorf("zone queries = %d, want 0", p.ZonesCalls())
	}
}

func TestUpdate_LeadingZeroOctets_Rejected(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=192.168.001.1", testUser, testPass, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", p.Calls())
	}
}

// ---- Happy paths ----

func TestUpdate_ExplicitIP_CreatesRecord(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, body(rr))
	}
	if body(rr) != "good 1.1.1.1" {
		t.Errorf("body = %q, want good 1.1.1.1", body(rr))
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}

	hist := p.History()
	if len(hist) != 1 {
		t.Fatalf("got %d upserts, want 1", len(hist))
	}
	rs := hist[0].RecordSet
	if rs.Type != endpoint.RecordTypeA || rs.TTL != 60 {
		t.Errorf("record set = %v, want type A TTL 60", rs)
	}
	if len(rs.Values) != 1 || rs.Values[0] != "1.1.1.1" {
		t.Errorf("Values = %v, want exactly [1.1.1.1]", rs.Values)
	}
}

func TestUpdate_SameIPTwice_GoodThenNochg(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	first := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	second := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)

	if body(first) != "good 1.1.1.1" {
		t.Errorf("first body = %q, want good 1.1.1.1", body(first))
	}
	if body(second) != "nochg 1.1.1.1" {
		t.Errorf("second body = %q, want nochg 1.1.1.1", body(second))
	}
	if got := len(p.History()); got != 1 {
		t.Errorf("got %d upserts, want 1 (repeat report must not write)", got)
	}
}

func TestUpdate_ExistingRecord_NoWrite(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	p.SetRecords("Z111", "www.example.com.",
		endpoint.NewRecordSet("www.example.com", endpoint.RecordTypeA, 60, []string{"1.1.1.1"}))
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if body(rr) != "nochg 1.1.1.1" {
		t.Errorf("body = %q, want nochg 1.1.1.1", body(rr))
	}
	if got := len(p.History()); got != 0 {
		t.Errorf("got %d upserts, want 0", got)
	}
}

func TestUpdate_ForwardedHeader_FirstValueWins(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	hdr := http.Header{}
	hdr.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
	rr := get(t, s, "/nic/update?hostname=www.example.com", testUser, testPass, hdr)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rr.Code, body(rr))
	}
	if body(rr) != "good 5.6.7.8" {
		t.Errorf("body = %q, want good 5.6.7.8", body(rr))
	}
}

func TestUpdate_ExplicitIPBeatsForwardedHeader(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	hdr := http.Header{}
	hdr.Set("X-Forwarded-For", "5.6.7.8")
	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, hdr)
	if body(rr) != "good 1.1.1.1" {
		t.Errorf("body = %q, want good 1.1.1.1", body(rr))
	}
}

// ---- Zone resolution boundary ----

func TestUpdate_ZoneBoundary_SingleLabelStripOnly(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=a.b.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if body(rr) != "hosted zone b.example.com not found" {
		t.Errorf("body = %q, want hosted zone b.example.com not found", body(rr))
	}
}

// ---- Trusted proxies ----

func TestUpdate_UntrustedPeer_HeaderIgnored(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	cfg := Config{TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}}
	s := newTestServer(cfg, adminCreds(), p)

	// httptest requests arrive from 192.0.2.1, outside the allow-list.
	hdr := http.Header{}
	hdr.Set("X-Forwarded-For", "5.6.7.8")
	rr := get(t, s, "/nic/update?hostname=www.example.com", testUser, testPass, hdr)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (header from untrusted peer)", rr.Code)
	}
}

func TestUpdate_TrustedPeer_HeaderHonored(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	cfg := Config{TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}}
	s := newTestServer(cfg, adminCreds(), p)

	req := httptest.NewRequest(http.MethodGet, "/nic/update?hostname=www.example.com", nil)
	req.SetBasicAuth(testUser, testPass)
	req.RemoteAddr = "10.1.2.3:4444"
	req.Header.Set("X-Forwarded-For", "5.6.7.8")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if body(rr) != "good 5.6.7.8" {
		t.Errorf("body = %q, want good 5.6.7.8", body(rr))
	}
}

// ---- Backend failures ----

func TestUpdate_ProviderUnauthorized_Returns403(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	p.UpsertErr = fmt.Errorf("%w: policy scope", provider.ErrUnauthorized)
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
	if body(rr) != "dnserr" {
		t.Errorf("body = %q, want dnserr", body(rr))
	}
}

func TestUpdate_TransientProviderError_Returns502(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	p.ZonesErr = errors.New("throttled")
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
	if body(rr) != "911" {
		t.Errorf("body = %q, want 911", body(rr))
	}
}

func TestUpdate_SecretUnavailable_Returns503(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	creds := &fakeCreds{err: fmt.Errorf("%w: store down", credstore.ErrSecretUnavailable)}
	s := newTestServer(Config{}, creds, p)

	rr := get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if body(rr) != "911" {
		t.Errorf("body = %q, want 911", body(rr))
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", p.Calls())
	}
}

// ---- Metrics and health ----

func TestUpdate_IncrementsResultMetric(t *testing.T) {
	p := fake.New(provider.Zone{Name: "example.com.", ID: "Z111"})
	s := newTestServer(Config{}, adminCreds(), p)

	before := testutil.ToFloat64(updatesTotal.WithLabelValues(resultGood))
	get(t, s, "/nic/update?hostname=www.example.com&myip=1.1.1.1", testUser, testPass, nil)
	after := testutil.ToFloat64(updatesTotal.WithLabelValues(resultGood))

	if after != before+1 {
		t.Errorf("good counter went %v → %v, want +1", before, after)
	}
}

func TestHealthz(t *testing.T) {
	p := fake.New()
	s := newTestServer(Config{}, adminCreds(), p)

	rr := get(t, s, "/healthz", "", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
