package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/internal/repo"
)

const (
	defaultSSHUser = "git"
	defaultSSHPort = 22
)

// SSHOptions configures an SSH transport.
type SSHOptions struct {
	// Store is the local object store the transport fetches into and pushes
	// from.
	Store *repo.Store

	// URL is the remote in git@host:path or ssh://user@host/path form.
	URL string

	// Branch is the single branch this transport operates on.
	Branch string

	// PrivateKey is the PEM private key, RSA or Ed25519, optionally
	// base64-wrapped (the platform stores key material that way).
	PrivateKey []byte

	// Passphrase unlocks an encrypted private key. Empty for plain keys.
	Passphrase string

	// Pin is the operator-supplied host key fingerprint. Nil skips
	// verification (trust-on-first-use).
	Pin *hostkey.Fingerprint

	// Logger receives transport-level events. Nil falls back to
	// slog.Default().
	Logger *slog.Logger
}

// SSH is the SSH transport variant. Host key verification runs inside every
// handshake through the auth method's HostKeyCallback, so a pinned remote is
// re-verified on fetch and push as well as during Verify.
type SSH struct {
	base
	endpoint *gittransport.Endpoint
	pin      *hostkey.Fingerprint
}

// NewSSH builds an SSH transport. Key material is parsed eagerly so
// malformed credentials fail at configuration time, not mid-run.
func NewSSH(opts SSHOptions) (*SSH, error) {
	endpoint, err := gittransport.NewEndpoint(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH remote URL: %w", err)
	}

	keyPEM, err := normalizeKey(opts.PrivateKey)
	if err != nil {
		return nil, err
	}

	user := endpoint.User
	if user == "" {
		user = defaultSSHUser
	}
	auth, err := gitssh.NewPublicKeys(user, keyPEM, opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("loading SSH private key: %w", err)
	}
	auth.HostKeyCallback = hostkey.Callback(opts.Pin, func(host string) {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("no host key fingerprint configured, trusting host on first use", "host", host)
	})

	return &SSH{
		base: base{
			store:  opts.Store,
			branch: opts.Branch,
			auth:   auth,
			logger: opts.Logger,
		},
		endpoint: endpoint,
		pin:      opts.Pin,
	}, nil
}

// normalizeKey accepts raw PEM or base64-wrapped PEM key material. PEM
// output always ends with a newline, which some key parsers insist on.
func normalizeKey(key []byte) ([]byte, error) {
	trimmed := []byte(strings.TrimSpace(string(key)))
	if len(trimmed) == 0 {
		return nil, errors.New("ssh private key is empty")
	}
	if strings.HasPrefix(string(trimmed), "-----BEGIN") {
		return append(trimmed, '\n'), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("ssh private key is neither PEM nor base64-wrapped PEM: %w", err)
	}
	return decoded, nil
}

// Verify performs a credential-free handshake against the remote and checks
// its host key against the pin. The connection is abandoned before any
// authentication method is offered beyond the protocol-mandated "none"
// attempt, so no credential leaves the process on mismatch.
func (t *SSH) Verify(ctx context.Context) (bool, error) {
	if t.pin == nil {
		t.log().Warn("no host key fingerprint configured, skipping verification",
			"host", t.endpoint.Host)
		return false, nil
	}

	addr := net.JoinHostPort(t.endpoint.Host, strconv.Itoa(t.port()))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, Classify(err)
	}
	defer conn.Close() //nolint:errcheck // read-only probe connection

	var pinErr error
	cfg := &ssh.ClientConfig{
		User: defaultSSHUser,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			pinErr = t.pin.VerifySSH(key)
			return pinErr
		},
	}

	c, _, _, err := ssh.NewClientConn(conn, addr, cfg)
	if err == nil {
		// Server accepted "none" auth; nothing sensitive was sent.
		_ = c.Close()
		return true, nil
	}
	if pinErr != nil {
		return false, pinErr
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		// Key exchange finished and the pin matched; only the expected
		// no-credential rejection remains.
		return true, nil
	}
	return false, Classify(err)
}

func (t *SSH) port() int {
	if t.endpoint.Port > 0 {
		return t.endpoint.Port
	}
	return defaultSSHPort
}

// FetchHead implements Transport.
func (t *SSH) FetchHead(ctx context.Context) (plumbing.Hash, error) {
	return t.fetchHead(ctx)
}

// Push implements Transport.
func (t *SSH) Push(ctx context.Context, expectedParent plumbing.Hash) error {
	return t.push(ctx, expectedParent)
}
