package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/bkero/dynr53/pkg/endpoint"
)

// errNoClientIP indicates neither myip nor a usable forwarding header was
// present on the request.
type errNoClientIP struct {
	header string
}

func (e *errNoClientIP) Error() string {
	return fmt.Sprintf("IP can not be determined from %s header", e.header)
}

// clientIP determines the address to publish. An explicit myip parameter wins
// so that a caller can report on behalf of a host behind NAT; otherwise the
// first value of the configured forwarding header is used, provided the peer
// is allowed to supply it.
func (s *Server) clientIP(r *http.Request) (string, error) {
	if myip := r.URL.Query().Get("myip"); myip != "" {
		ip, err := endpoint.CanonicalIP(myip)
		if err != nil {
			return "", err
		}
		return ip, nil
	}

	forwarded := r.Header.Get(s.cfg.ForwardedHeader)
	if forwarded == "" || !s.peerTrusted(r.RemoteAddr) {
		return "", &errNoClientIP{header: s.cfg.ForwardedHeader}
	}

	first, _, _ := strings.Cut(forwarded, ",")
	ip, err := endpoint.CanonicalIP(first)
	if err != nil {
		return "", &errNoClientIP{header: s.cfg.ForwardedHeader}
	}
	return ip, nil
}

// peerTrusted reports whether the connecting peer may supply the forwarding
// header. An empty allow-list trusts every peer.
func (s *Server) peerTrusted(remoteAddr string) bool {
	if len(s.cfg.TrustedProxies) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	for _, p := range s.cfg.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
