package models

import (
	"net/textproto"
	"time"
)

// TLSInfo carries the TLS handshake parameters observed on the connection.
// Populated by the middleware when the listener terminates TLS; nil otherwise.
type TLSInfo struct {
	Version     string `json:"version"`     // "TLS1.2", "TLS1.3"
	CipherSuite string `json:"cipherSuite"` // IANA name of the negotiated suite
	JA3         string `json:"ja3"`         // JA3-style client hello fingerprint
	ALPN        string `json:"alpn"`        // Negotiated protocol ("h2", "http/1.1", "h3")
	SNI         string `json:"sni"`         // Server name from ClientHello
}

// TransportInfo carries connection-level features below the HTTP layer.
// All fields are optional: a reverse proxy that forwards only HTTP sees none
// of them, and contributors gated on the corresponding signals simply skip.
type TransportInfo struct {
	TLS        *TLSInfo `json:"tls,omitempty"`
	TCPWindow  int      `json:"tcpWindow,omitempty"`  // Initial TCP window size
	TCPTTL     int      `json:"tcpTtl,omitempty"`     // Observed IP TTL
	TCPMSS     int      `json:"tcpMss,omitempty"`     // TCP maximum segment size
	H2Settings string   `json:"h2Settings,omitempty"` // AKAMAI-style HTTP/2 SETTINGS fingerprint
	QUICParams string   `json:"quicParams,omitempty"` // QUIC transport parameter fingerprint
}

// RequestSnapshot is the read-only input to the detection engine. It is
// created by the middleware from the live request and never mutated.
type RequestSnapshot struct {
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Query      string              `json:"query"`
	Proto      string              `json:"proto"` // "HTTP/1.1", "HTTP/2", "HTTP/3"
	Scheme     string              `json:"scheme"`
	Host       string              `json:"host"`
	ClientIP   string              `json:"clientIp"` // post reverse-proxy resolution
	Headers    map[string][]string `json:"headers"`  // canonical MIME keys, ordered values
	Transport  *TransportInfo      `json:"transport,omitempty"`
	ReceivedAt time.Time           `json:"receivedAt"`
}

// Header returns the first value of a header, case-insensitively.
// Empty string when the header is absent.
func (r *RequestSnapshot) Header(name string) string {
	vals := r.HeaderValues(name)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// HeaderValues returns all values of a header, case-insensitively.
func (r *RequestSnapshot) HeaderValues(name string) []string {
	if r.Headers == nil {
		return nil
	}
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// HasHeader reports whether the header is present at all.
func (r *RequestSnapshot) HasHeader(name string) bool {
	if r.Headers == nil {
		return false
	}
	_, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// UserAgent is a convenience accessor for the User-Agent header.
func (r *RequestSnapshot) UserAgent() string {
	return r.Header("User-Agent")
}

// HeaderCount returns the number of distinct header names.
func (r *RequestSnapshot) HeaderCount() int {
	return len(r.Headers)
}
