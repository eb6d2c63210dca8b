package gitsync

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"

	"github.com/soarsync/gitsync/content"
	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/redact"
	"github.com/soarsync/gitsync/state"
)

// AuthMethod selects the transport protocol and credential kind.
type AuthMethod string

const (
	// AuthSSH authenticates with an SSH private key over git+ssh.
	AuthSSH AuthMethod = "ssh"
	// AuthHTTPS authenticates with basic credentials or a token over HTTPS.
	AuthHTTPS AuthMethod = "https"
)

// DefaultAuthor is used when SyncConfig.Author is empty.
const DefaultAuthor = "GitSync <gitsync@siemplify.co>"

const (
	// DefaultCommitMessage is used when SyncConfig.CommitMessage is empty.
	DefaultCommitMessage = "chore: content sync"

	defaultTimeout           = 5 * time.Minute
	defaultMaxPushRetries    = 3
	defaultMaxNetworkRetries = 3
	defaultRetryBaseDelay    = 2 * time.Second
)

// authorPattern accepts the "Name <email>" form git expects in signatures.
var authorPattern = regexp.MustCompile(`^([^<>]+) <([^<>\s]+@[^<>\s]+)>$`)

// Remote identifies the target repository and how to reach it.
type Remote struct {
	// URL is the remote in ssh (git@host:path, ssh://) or https:// form.
	URL string

	// Branch is the single branch the sync writes to.
	Branch string

	// Auth selects the transport. Empty infers it from the URL scheme.
	Auth AuthMethod

	// PrivateKey is the SSH private key, raw PEM or base64-wrapped PEM.
	PrivateKey []byte
	// Passphrase unlocks PrivateKey when it is encrypted.
	Passphrase string

	// Username and Password are the HTTPS credentials. For token auth leave
	// Username empty and put the token in Password.
	Username string
	Password string

	// Fingerprint pins the remote's identity: the SSH host key fingerprint
	// or the TLS certificate fingerprint, in "SHA256:..." or "MD5:..."
	// form. Empty disables pinning and the first contact is logged.
	Fingerprint string

	// InsecureSkipVerify disables CA validation on HTTPS remotes. A
	// configured Fingerprint is still enforced.
	InsecureSkipVerify bool
}

// SyncConfig describes one content synchronization job.
type SyncConfig struct {
	Remote Remote

	// Author signs the commit, in "Name <email>" form. Empty uses
	// DefaultAuthor.
	Author string

	// CommitMessage is the message for the content commit. Empty uses
	// DefaultCommitMessage.
	CommitMessage string

	// RequireConventionalCommit rejects commit messages that do not parse
	// as a conventional commit.
	RequireConventionalCommit bool

	// Types restricts the export to the named content types. Empty exports
	// everything.
	Types []content.Type

	// Redaction is the secret redaction policy applied to every exported
	// payload.
	Redaction redact.Policy

	// CommitPasswords exports credential fields verbatim instead of
	// redacting them. The remote credential scrub is skipped too; setting
	// it means accepting live credentials in git history.
	CommitPasswords bool

	// SystemVersion is recorded in the repository metadata file.
	SystemVersion string

	// Readme overrides the generated root README body.
	Readme string

	// RepoDir is the on-disk location of the local object store. Empty
	// keeps the store in memory for the duration of the run.
	RepoDir string

	// StatePath is the head record file. Empty uses the XDG state home.
	StatePath string

	// Timeout bounds a whole run including retries.
	Timeout time.Duration

	// MaxPushRetries bounds rebuild attempts after the remote branch moved
	// mid-run.
	MaxPushRetries int

	// MaxNetworkRetries bounds attempts per network operation.
	MaxNetworkRetries int

	// RetryBaseDelay is the first backoff delay. Each retry doubles it.
	RetryBaseDelay time.Duration

	// Logger receives run events. Nil falls back to slog.Default().
	Logger *slog.Logger

	// OnStateChange, when set, observes run state transitions.
	OnStateChange func(RunState)
}

// Validate checks the configuration without touching the network.
// It returns an error wrapping ErrConfiguration on the first problem found.
func (c *SyncConfig) Validate() error {
	if c.Remote.URL == "" {
		return WrapError(ErrConfiguration, "remote URL is required")
	}
	if c.Remote.Branch == "" {
		return WrapError(ErrConfiguration, "remote branch is required")
	}
	if strings.ContainsAny(c.Remote.Branch, " \t\n") {
		return WrapErrorf(ErrConfiguration, "remote branch %q contains whitespace", c.Remote.Branch)
	}

	method, err := c.Remote.method()
	if err != nil {
		return err
	}
	switch method {
	case AuthSSH:
		if len(c.Remote.PrivateKey) == 0 {
			return WrapError(ErrConfiguration, "ssh remote requires a private key")
		}
	case AuthHTTPS:
		if c.Remote.Password == "" {
			return WrapError(ErrConfiguration, "https remote requires a password or token")
		}
	}

	if c.Author != "" && !authorPattern.MatchString(c.Author) {
		return WrapErrorf(ErrConfiguration, "author %q is not in \"Name <email>\" form", c.Author)
	}

	if c.Remote.Fingerprint != "" {
		if _, err := hostkey.Parse(c.Remote.Fingerprint); err != nil {
			return WrapErrorf(ErrConfiguration, "fingerprint %q", c.Remote.Fingerprint)
		}
	}

	for _, typ := range c.Types {
		if !typ.IsValid() {
			return WrapErrorf(ErrConfiguration, "unknown content type %q", typ)
		}
	}

	if c.RequireConventionalCommit {
		msg := c.CommitMessage
		if msg == "" {
			msg = DefaultCommitMessage
		}
		machine := parser.NewMachine(conventionalcommits.WithTypes(conventionalcommits.TypesConventional))
		if _, err := machine.Parse([]byte(msg)); err != nil {
			return WrapErrorf(ErrConfiguration, "commit message %q is not a conventional commit", msg)
		}
	}

	if c.Timeout < 0 || c.MaxPushRetries < 0 || c.MaxNetworkRetries < 0 || c.RetryBaseDelay < 0 {
		return WrapError(ErrConfiguration, "timeouts and retry budgets must not be negative")
	}
	return nil
}

// applyDefaults fills unset fields. Validate must have passed.
func (c *SyncConfig) applyDefaults() {
	if c.Author == "" {
		c.Author = DefaultAuthor
	}
	if c.CommitMessage == "" {
		c.CommitMessage = DefaultCommitMessage
	}
	if c.StatePath == "" {
		c.StatePath = state.DefaultPath()
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxPushRetries == 0 {
		c.MaxPushRetries = defaultMaxPushRetries
	}
	if c.MaxNetworkRetries == 0 {
		c.MaxNetworkRetries = defaultMaxNetworkRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// method resolves the auth method, inferring it from the URL when unset and
// rejecting disagreements between the two.
func (r *Remote) method() (AuthMethod, error) {
	inferred, err := inferMethod(r.URL)
	if err != nil {
		return "", err
	}
	if r.Auth == "" {
		return inferred, nil
	}
	if r.Auth != AuthSSH && r.Auth != AuthHTTPS {
		return "", WrapErrorf(ErrConfiguration, "unknown auth method %q", r.Auth)
	}
	if r.Auth != inferred {
		return "", WrapErrorf(ErrConfiguration, "auth method %q does not match remote URL %q", r.Auth, r.URL)
	}
	return r.Auth, nil
}

func inferMethod(url string) (AuthMethod, error) {
	switch {
	case strings.HasPrefix(url, "ssh://"), strings.HasPrefix(url, "git@"):
		return AuthSSH, nil
	case strings.HasPrefix(url, "https://"):
		return AuthHTTPS, nil
	case strings.HasPrefix(url, "http://"):
		return "", WrapErrorf(ErrConfiguration, "plain http remote %q is not supported", url)
	default:
		return "", WrapErrorf(ErrConfiguration, "cannot infer auth method from remote URL %q", url)
	}
}

// fingerprint parses the configured pin, nil when unpinned.
func (r *Remote) fingerprint() (*hostkey.Fingerprint, error) {
	if r.Fingerprint == "" {
		return nil, nil
	}
	pin, err := hostkey.Parse(r.Fingerprint)
	if err != nil {
		return nil, WrapErrorf(ErrConfiguration, "fingerprint %q", r.Fingerprint)
	}
	return pin, nil
}

// authorSignature splits the validated author into name and email.
func (c *SyncConfig) authorSignature() (name, email string) {
	m := authorPattern.FindStringSubmatch(c.Author)
	if m == nil {
		m = authorPattern.FindStringSubmatch(DefaultAuthor)
	}
	return strings.TrimSpace(m[1]), m[2]
}
