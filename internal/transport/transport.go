// Package transport performs authenticated ref operations (fetch-head and
// conditional push) against a single remote over SSH or HTTPS, with host
// identity pinning enforced before any credential is transmitted.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/internal/repo"
)

// Classification sentinels. The orchestrator maps these onto its public
// error taxonomy.
var (
	// ErrAuth marks a rejected credential.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork marks a transient transport failure worth retrying.
	ErrNetwork = errors.New("network failure")

	// ErrNonFastForward marks a push rejected because the remote head moved.
	ErrNonFastForward = errors.New("push rejected: non-fast-forward")
)

// Transport is the common contract of the SSH and HTTPS variants.
type Transport interface {
	// Verify checks the remote's presented identity key against the
	// configured fingerprint before any credential is transmitted.
	// It returns verified=false with a nil error when no fingerprint is
	// configured (trust-on-first-use).
	Verify(ctx context.Context) (verified bool, err error)

	// FetchHead fetches the remote branch tip into the local store and
	// returns it. A branch that does not exist on the remote (or an empty
	// remote) yields plumbing.ZeroHash.
	FetchHead(ctx context.Context) (plumbing.Hash, error)

	// Push publishes the local branch head on the condition that the remote
	// branch still points at expectedParent. A zero expectedParent asserts
	// the branch is being created.
	Push(ctx context.Context, expectedParent plumbing.Hash) error
}

// base carries the pieces both variants share.
type base struct {
	store  *repo.Store
	branch string
	auth   gittransport.AuthMethod
	logger *slog.Logger
}

func (b *base) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// fetchHead fetches refs/heads/<branch> into refs/remotes/origin/<branch>
// and resolves the result.
func (b *base) fetchHead(ctx context.Context) (plumbing.Hash, error) {
	spec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s",
		b.branch, repo.RemoteName, b.branch))

	err := b.store.Repository().FetchContext(ctx, &git.FetchOptions{
		RemoteName: repo.RemoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       b.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		// Fall through to resolve the fetched ref.
	case isMissingBranch(err):
		return plumbing.ZeroHash, nil
	default:
		return plumbing.ZeroHash, Classify(err)
	}

	return b.store.RemoteHead(b.branch)
}

// push publishes refs/heads/<branch> with compare-and-swap semantics on the
// remote head.
func (b *base) push(ctx context.Context, expectedParent plumbing.Hash) error {
	spec := config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", b.branch, b.branch))
	opts := &git.PushOptions{
		RemoteName: repo.RemoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       b.auth,
	}
	if expectedParent != plumbing.ZeroHash {
		opts.RequireRemoteRefs = []config.RefSpec{
			config.RefSpec(expectedParent.String() + ":refs/heads/" + b.branch),
		}
	}

	err := b.store.Repository().PushContext(ctx, opts)
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return Classify(err)
}

// isMissingBranch recognizes the fetch errors produced by an empty remote or
// an absent remote branch; both mean "no head yet", not failure.
func isMissingBranch(err error) bool {
	if errors.Is(err, gittransport.ErrEmptyRemoteRepository) {
		return true
	}
	var noMatch git.NoMatchingRefSpecError
	if errors.As(err, &noMatch) {
		return true
	}
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

// Classify folds the zoo of go-git, x/crypto and net errors into the
// package's classification sentinels. Fingerprint mismatches pass through
// untouched: they are terminal and security-sensitive, never retried.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hostkey.ErrMismatch) {
		return err
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrNonFastForward) {
		return err
	}

	switch {
	case errors.Is(err, gittransport.ErrAuthenticationRequired),
		errors.Is(err, gittransport.ErrAuthorizationFailed),
		errors.Is(err, gittransport.ErrInvalidAuthMethod):
		return fmt.Errorf("%w: %v", ErrAuth, err)

	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return fmt.Errorf("%w: %v", ErrNonFastForward, err)
	}

	msg := err.Error()
	switch {
	// PushOptions.RequireRemoteRefs rejections surface as plain errors.
	case strings.Contains(msg, "required to be"):
		return fmt.Errorf("%w: %v", ErrNonFastForward, err)
	case strings.Contains(msg, "non-fast-forward"):
		return fmt.Errorf("%w: %v", ErrNonFastForward, err)
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "invalid credentials"),
		strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	// Everything else (dial failures, resets, EOFs, cancellation mid-flight)
	// is treated as transient.
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
