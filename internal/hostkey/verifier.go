// Package hostkey validates a remote endpoint's identity key against an
// operator-supplied fingerprint before any credential is transmitted.
// It covers both SSH host keys and TLS certificates.
package hostkey

import (
	"crypto/md5"  //nolint:gosec // MD5 fingerprints are a legacy git-host format, not used for integrity
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Algorithm is a supported fingerprint digest algorithm.
type Algorithm string

const (
	// SHA256 fingerprints are "SHA256:" followed by unpadded base64 or hex.
	SHA256 Algorithm = "SHA256"

	// MD5 fingerprints are "MD5:" followed by colon-separated hex pairs.
	MD5 Algorithm = "MD5"
)

// ErrMismatch is returned when the presented key's digest does not equal the
// pinned fingerprint. Security-sensitive: callers must abort before
// authenticating.
var ErrMismatch = errors.New("host key fingerprint mismatch")

// ErrMalformed is returned for fingerprint strings that cannot be parsed.
// This is a configuration error, never a retryable one.
var ErrMalformed = errors.New("malformed fingerprint")

// Fingerprint is a parsed operator-supplied pin.
type Fingerprint struct {
	Algorithm Algorithm
	// digest is the decoded expected digest value.
	digest []byte
}

// Parse parses "SHA256:<base64|hex>" or "MD5:<colon-separated hex pairs>".
// Unrecognized algorithm tags are rejected.
func Parse(s string) (*Fingerprint, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, string(SHA256)+":"):
		value := strings.TrimPrefix(s, string(SHA256)+":")
		digest, err := decodeSHA256(value)
		if err != nil {
			return nil, err
		}
		return &Fingerprint{Algorithm: SHA256, digest: digest}, nil

	case strings.HasPrefix(s, string(MD5)+":"):
		value := strings.TrimPrefix(s, string(MD5)+":")
		digest, err := decodeMD5(value)
		if err != nil {
			return nil, err
		}
		return &Fingerprint{Algorithm: MD5, digest: digest}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized algorithm tag in %q", ErrMalformed, s)
	}
}

func decodeSHA256(value string) ([]byte, error) {
	value = strings.TrimSpace(value)

	// OpenSSH prints unpadded base64; operators sometimes paste hex instead.
	if digest, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "=")); err == nil &&
		len(digest) == sha256.Size {
		return digest, nil
	}
	if digest, err := hex.DecodeString(strings.ToLower(value)); err == nil && len(digest) == sha256.Size {
		return digest, nil
	}
	return nil, fmt.Errorf("%w: SHA256 value is neither base64 nor hex of digest length", ErrMalformed)
}

func decodeMD5(value string) ([]byte, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), ":", ""))
	digest, err := hex.DecodeString(cleaned)
	if err != nil || len(digest) != md5.Size {
		return nil, fmt.Errorf("%w: MD5 value is not %d hex pairs", ErrMalformed, md5.Size)
	}
	return digest, nil
}

// VerifyRaw compares the configured digest of raw key material against the
// pin in constant time. raw is the wire encoding of the presented key (SSH
// public key marshal or DER certificate).
func (f *Fingerprint) VerifyRaw(raw []byte) error {
	var actual []byte
	switch f.Algorithm {
	case SHA256:
		sum := sha256.Sum256(raw)
		actual = sum[:]
	case MD5:
		sum := md5.Sum(raw) //nolint:gosec // legacy fingerprint format
		actual = sum[:]
	default:
		return fmt.Errorf("%w: algorithm %q", ErrMalformed, f.Algorithm)
	}

	if subtle.ConstantTimeCompare(actual, f.digest) != 1 {
		return fmt.Errorf("%w: presented %s, pinned %s",
			ErrMismatch, f.format(actual), f.format(f.digest))
	}
	return nil
}

// VerifySSH checks an SSH host key against the pin.
func (f *Fingerprint) VerifySSH(key ssh.PublicKey) error {
	return f.VerifyRaw(key.Marshal())
}

// format renders a digest in the pin's display convention, for error text.
func (f *Fingerprint) format(digest []byte) string {
	if f.Algorithm == SHA256 {
		return string(SHA256) + ":" + base64.RawStdEncoding.EncodeToString(digest)
	}
	pairs := make([]string, len(digest))
	for i, b := range digest {
		pairs[i] = hex.EncodeToString([]byte{b})
	}
	return string(MD5) + ":" + strings.Join(pairs, ":")
}

// String renders the pinned value the way it was configured.
func (f *Fingerprint) String() string {
	return f.format(f.digest)
}

// Callback builds an ssh.HostKeyCallback enforcing the pin. A nil pin yields
// a trust-on-first-use callback that accepts any key and reports the skip
// through onUnverified, so the caller can surface it instead of silently
// trusting the host.
func Callback(pin *Fingerprint, onUnverified func(host string)) ssh.HostKeyCallback {
	if pin == nil {
		return func(hostname string, _ net.Addr, _ ssh.PublicKey) error {
			if onUnverified != nil {
				onUnverified(hostname)
			}
			return nil
		}
	}
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		if err := pin.VerifySSH(key); err != nil {
			return fmt.Errorf("host %s: %w", hostname, err)
		}
		return nil
	}
}
