package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bkero/dynr53/pkg/credstore"
	"github.com/bkero/dynr53/pkg/provider"
	"github.com/bkero/dynr53/pkg/zone"
)

// handleUpdate orchestrates one update request: authentication, client-IP
// determination, zone resolution, and record reconciliation, in that strict
// order. Authentication always comes first so unauthenticated callers learn
// nothing about zone existence, and no backend call happens before it passes.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { updateDuration.Observe(time.Since(start).Seconds()) }()

	ctx := r.Context()

	cred, err := s.creds.Get(ctx)
	if err != nil {
		s.log.Error("credential fetch failed", "err", err)
		providerErrorsTotal.WithLabelValues("secret").Inc()
		s.plain(w, http.StatusServiceUnavailable, "911", resultError)
		return
	}

	if !s.authenticate(r, cred) {
		w.Header().Set("WWW-Authenticate", `Basic realm="dynr53"`)
		s.plain(w, http.StatusUnauthorized, "badauth", resultBadAuth)
		return
	}

	hostname := r.URL.Query().Get("hostname")
	if hostname == "" {
		s.plain(w, http.StatusBadRequest, "hostname is required", resultBadRequest)
		return
	}

	ip, err := s.clientIP(r)
	if err != nil {
		var noIP *errNoClientIP
		if errors.As(err, &noIP) {
			s.plain(w, http.StatusBadRequest, noIP.Error(), resultBadRequest)
			return
		}
		s.plain(w, http.StatusBadRequest, "invalid myip address", resultBadRequest)
		return
	}

	zoneID, err := s.zones.Resolve(ctx, hostname)
	if err != nil {
		s.fail(w, err)
		return
	}

	outcome, err := s.rec.Reconcile(ctx, hostname, zoneID, ip)
	if err != nil {
		s.fail(w, err)
		return
	}

	if outcome.Changed {
		s.plain(w, http.StatusOK, fmt.Sprintf("good %s", outcome.IP), resultGood)
	} else {
		s.plain(w, http.StatusOK, fmt.Sprintf("nochg %s", outcome.IP), resultNoChange)
	}
}

// authenticate checks HTTP basic credentials against the stored identity.
// Both factors are compared in constant time and unconditionally, so response
// timing reveals neither which factor failed nor whether the username exists.
func (s *Server) authenticate(r *http.Request, cred credstore.Credential) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cred.Username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(cred.Password))
	return userOK&passOK == 1
}

// fail translates domain errors from zone resolution and reconciliation into
// the fixed plaintext vocabulary. Internal detail never reaches the client.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var notFound *zone.NotFoundError
	switch {
	case errors.As(err, &notFound):
		s.plain(w, http.StatusBadRequest, notFound.Error(), resultBadRequest)
	case errors.Is(err, provider.ErrUnauthorized):
		s.log.Error("provider rejected call for lack of permission", "err", err)
		providerErrorsTotal.WithLabelValues("unauthorized").Inc()
		s.plain(w, http.StatusForbidden, "dnserr", resultError)
	case errors.Is(err, credstore.ErrSecretUnavailable):
		providerErrorsTotal.WithLabelValues("secret").Inc()
		s.plain(w, http.StatusServiceUnavailable, "911", resultError)
	default:
		s.log.Error("provider call failed", "err", err)
		providerErrorsTotal.WithLabelValues("transient").Inc()
		s.plain(w, http.StatusBadGateway, "911", resultError)
	}
}

// plain writes a plaintext status line and records the result metric.
func (s *Server) plain(w http.ResponseWriter, status int, body, result string) {
	updatesTotal.WithLabelValues(result).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}
