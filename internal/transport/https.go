package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/internal/repo"
)

const defaultHTTPSPort = "443"

// HTTPSOptions configures an HTTPS transport.
type HTTPSOptions struct {
	// Store is the local object store the transport fetches into and pushes
	// from.
	Store *repo.Store

	// URL is the https:// remote.
	URL string

	// Username and Password form the basic-auth pair. For bearer-token
	// providers leave Username empty and put the token in Password.
	Username string
	Password string

	// Pin is the operator-supplied certificate fingerprint. Nil skips
	// pinning; standard TLS certificate validation still applies.
	Pin *hostkey.Fingerprint

	// InsecureSkipVerify disables CA certificate validation. Pinning, when
	// configured, is enforced regardless.
	InsecureSkipVerify bool

	// Branch is the single branch this transport operates on.
	Branch string

	// Logger receives transport-level events. Nil falls back to
	// slog.Default().
	Logger *slog.Logger
}

// HTTPS is the HTTPS transport variant. Certificate pinning is enforced on
// every connection through a per-host TLS policy consulted by the process
// wide git HTTP client, in addition to (never instead of) CA validation.
type HTTPS struct {
	base
	host string
	pin  *hostkey.Fingerprint
}

// NewHTTPS builds an HTTPS transport and registers the host's TLS policy.
func NewHTTPS(opts HTTPSOptions) (*HTTPS, error) {
	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing HTTPS remote URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("HTTPS transport requires an https:// URL, got %q", parsed.Scheme)
	}

	installHTTPSClient()
	if err := registerHostPolicy(parsed.Hostname(), &hostPolicy{
		pin:      opts.Pin,
		insecure: opts.InsecureSkipVerify,
	}); err != nil {
		return nil, err
	}

	return &HTTPS{
		base: base{
			store:  opts.Store,
			branch: opts.Branch,
			auth:   basicAuth(parsed.Hostname(), opts.Username, opts.Password),
			logger: opts.Logger,
		},
		host: parsed.Host,
		pin:  opts.Pin,
	}, nil
}

// basicAuth builds the auth method for the host. Token-only credentials use
// the provider's conventional username: most hosts accept "token", Bitbucket
// wants "x-token-auth".
func basicAuth(hostname, username, password string) gittransport.AuthMethod {
	if username == "" && password != "" {
		username = "token"
		if strings.HasSuffix(hostname, "bitbucket.org") {
			username = "x-token-auth"
		}
	}
	return &githttp.BasicAuth{Username: username, Password: password}
}

// Verify performs a TLS handshake against the remote with no credentials
// attached and checks the presented certificate against the pin.
func (t *HTTPS) Verify(ctx context.Context) (bool, error) {
	if t.pin == nil {
		t.log().Warn("no certificate fingerprint configured, relying on CA validation only",
			"host", t.host)
		return false, nil
	}

	addr := t.host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultHTTPSPort)
	}

	policy, _ := lookupHostPolicy(hostnameOf(addr))
	dialer := tls.Dialer{Config: policy.tlsConfig(hostnameOf(addr))}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, Classify(err)
	}
	_ = conn.Close()
	return true, nil
}

// FetchHead implements Transport.
func (t *HTTPS) FetchHead(ctx context.Context) (plumbing.Hash, error) {
	return t.fetchHead(ctx)
}

// Push implements Transport.
func (t *HTTPS) Push(ctx context.Context, expectedParent plumbing.Hash) error {
	return t.push(ctx, expectedParent)
}

// hostPolicy is the per-host TLS behavior consulted on every connection.
type hostPolicy struct {
	pin      *hostkey.Fingerprint
	insecure bool
}

// tlsConfig renders the policy as a TLS client config. VerifyPeerCertificate
// runs even with InsecureSkipVerify set, so the pin is checked either way.
func (p *hostPolicy) tlsConfig(serverName string) *tls.Config {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: p.insecure, //nolint:gosec // operator-controlled toggle, pin still enforced
		MinVersion:         tls.VersionTLS12,
	}
	if p.pin != nil {
		pin := p.pin
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: server presented no certificate", hostkey.ErrMismatch)
			}
			return pin.VerifyRaw(rawCerts[0])
		}
	}
	return cfg
}

var (
	installOnce sync.Once

	policyMu sync.RWMutex
	policies = map[string]*hostPolicy{}
)

// registerHostPolicy records the TLS policy for a host. Conflicting policies
// for the same host are a configuration error: the process-wide client can
// only honor one.
func registerHostPolicy(host string, policy *hostPolicy) error {
	policyMu.Lock()
	defer policyMu.Unlock()

	if existing, ok := policies[host]; ok {
		if existing.insecure != policy.insecure || !samePin(existing.pin, policy.pin) {
			return fmt.Errorf("conflicting TLS policy for host %q: already registered with a different fingerprint or verification mode", host)
		}
		return nil
	}
	policies[host] = policy
	return nil
}

func lookupHostPolicy(host string) (*hostPolicy, bool) {
	policyMu.RLock()
	defer policyMu.RUnlock()
	p, ok := policies[host]
	if !ok {
		return &hostPolicy{}, false
	}
	return p, true
}

func samePin(a, b *hostkey.Fingerprint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

func hostnameOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// installHTTPSClient swaps go-git's process-wide https client for one whose
// TLS dialer consults the host policy table. go-git resolves transports
// through a global protocol registry, so this is installed once.
func installHTTPSClient() {
	installOnce.Do(func() {
		netDialer := &net.Dialer{Timeout: 30 * time.Second}
		httpTransport := &http.Transport{
			DialContext:           netDialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   15 * time.Second,
			ExpectContinueTimeout: time.Second,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				policy, _ := lookupHostPolicy(hostnameOf(addr))
				dialer := tls.Dialer{NetDialer: netDialer, Config: policy.tlsConfig(hostnameOf(addr))}
				return dialer.DialContext(ctx, network, addr)
			},
		}
		client.InstallProtocol("https", githttp.NewClient(&http.Client{Transport: httpTransport}))
	})
}
