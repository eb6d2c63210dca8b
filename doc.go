// Package gitsync exports security platform content into a git repository
// and keeps a remote branch in sync with it.
//
// A sync run renders a content snapshot (integrations, playbooks, jobs,
// connectors, ontology records, settings) into a deterministic file layout,
// redacts credential material, builds commit objects directly against a bare
// object store, and pushes the result with compare-and-swap semantics so a
// branch that moved mid-run is never overwritten.
//
// # Basic Usage
//
// Configure a remote and run a sync:
//
//	import (
//	    "context"
//	    "github.com/soarsync/gitsync"
//	)
//
//	syncer, err := gitsync.NewSyncer(gitsync.SyncConfig{
//	    Remote: gitsync.Remote{
//	        URL:         "git@github.com:acme/soc-content.git",
//	        Branch:      "main",
//	        PrivateKey:  keyPEM,
//	        Fingerprint: "SHA256:nThbg6kXUpJWGl7E1IGOCspRomTxdCARLviKw6E5SY8",
//	    },
//	    SystemVersion: "6.2.41",
//	}, platformSource)
//	if err != nil {
//	    return err
//	}
//
//	report, err := syncer.Run(context.Background())
//
// The configured fingerprint pins the remote's SSH host key (or, for
// https:// remotes, its TLS certificate). Verification happens before any
// credential is sent; a mismatch aborts the run with
// ErrFingerprintMismatch and is never retried.
//
// # Content Selection and Redaction
//
// SyncConfig.Types restricts a run to a subset of content types, and
// SyncConfig.Redaction declares which payload fields to mask or drop. Fields
// the platform itself flags as sensitive are always masked, and any
// credential value detected during redaction is scrubbed from every exported
// file before it can reach the remote.
//
// # Concurrency and Retries
//
// Runs for the same remote and branch are single-flight: a second Run while
// one is in progress returns ErrAlreadyRunning immediately. Transient
// network failures back off exponentially, and a remote branch that moves
// during the run is refetched and the commit rebuilt on its new head, up to
// the configured retry budgets.
//
// # Error Handling
//
// Terminal errors match the package sentinels under errors.Is():
//
//	report, err := syncer.Run(ctx)
//	if errors.Is(err, gitsync.ErrFingerprintMismatch) {
//	    // The remote is not who the operator said it is.
//	}
//	if errors.Is(err, gitsync.ErrAlreadyRunning) {
//	    // Try again once the in-flight run finishes.
//	}
package gitsync
