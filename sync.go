package gitsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/soarsync/gitsync/content"
	"github.com/soarsync/gitsync/internal/hostkey"
	"github.com/soarsync/gitsync/internal/repo"
	"github.com/soarsync/gitsync/internal/transport"
	"github.com/soarsync/gitsync/redact"
	"github.com/soarsync/gitsync/state"
)

// ContentSource produces the platform content to synchronize. Snapshot is
// called once per run.
type ContentSource interface {
	Snapshot(ctx context.Context) (content.Snapshot, error)
}

// Syncer runs content synchronization jobs against one remote and branch.
// A Syncer is safe for concurrent use; overlapping runs for the same remote
// and branch are refused with ErrAlreadyRunning.
type Syncer struct {
	cfg    SyncConfig
	source ContentSource
	heads  *state.Store

	// Injection points for tests.
	newTransport func(store *repo.Store, pin *hostkey.Fingerprint) (transport.Transport, error)
	openStore    func() (*repo.Store, error)
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

// inflight guards against concurrent runs for the same remote and branch
// across all Syncers in the process.
var inflight = struct {
	sync.Mutex
	keys map[string]struct{}
}{keys: map[string]struct{}{}}

// NewSyncer validates cfg and builds a Syncer reading content from source.
func NewSyncer(cfg SyncConfig, source ContentSource) (*Syncer, error) {
	if source == nil {
		return nil, WrapError(ErrConfiguration, "content source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	s := &Syncer{
		cfg:    cfg,
		source: source,
		heads:  state.NewStore(billyfs.NewBaseOSFS(), cfg.StatePath),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	s.newTransport = s.dialTransport
	s.openStore = s.openRepoStore
	return s, nil
}

// Run executes one synchronization: export, redact, commit, verify, push.
// The returned report is non-nil even on failure. All errors match one of
// the package sentinels under errors.Is().
func (s *Syncer) Run(ctx context.Context) (*RunReport, error) {
	if !acquire(s.cfg.Remote.URL, s.cfg.Remote.Branch) {
		report := &RunReport{Outcome: OutcomeFailed, Err: ErrAlreadyRunning}
		return report, ErrAlreadyRunning
	}
	defer release(s.cfg.Remote.URL, s.cfg.Remote.Branch)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := s.now()
	report := &RunReport{}
	err := s.run(ctx, report)
	report.Duration = s.now().Sub(start)

	if err != nil {
		err = publicError(err)
		report.Outcome = OutcomeFailed
		report.Err = err
		s.setState(StateFailed)
		s.cfg.Logger.Error("sync failed",
			"remote", s.cfg.Remote.URL,
			"branch", s.cfg.Remote.Branch,
			"attempts", report.PushAttempts,
			"error", err)
		return report, err
	}

	s.setState(StateDone)
	s.cfg.Logger.Info("sync finished",
		"remote", s.cfg.Remote.URL,
		"branch", s.cfg.Remote.Branch,
		"outcome", report.Outcome.String(),
		"commit", report.Commit.String(),
		"duration", report.Duration)
	return report, nil
}

func (s *Syncer) run(ctx context.Context, report *RunReport) error {
	log := s.cfg.Logger

	s.setState(StateExporting)
	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		return WrapError(err, "reading content snapshot")
	}
	selected := content.NewTypeSet(s.cfg.Types...)
	if len(selected) == 0 {
		selected = content.NewTypeSet(content.AllTypes()...)
	}
	exporter := &content.Exporter{
		SystemVersion: s.cfg.SystemVersion,
		RootReadme:    s.cfg.Readme,
	}
	tree, err := exporter.Export(snapshot, selected)
	if err != nil {
		return WrapErrorf(ErrSerialization, "exporting content: %v", err)
	}
	log.Debug("content exported", "files", tree.Len(), "types", len(selected))

	s.setState(StateRedacting)
	if s.cfg.CommitPasswords {
		log.Warn("redaction disabled, exporting credential fields verbatim",
			"remote", s.cfg.Remote.URL)
	} else {
		redactor := &redact.Redactor{Policy: s.redactionPolicy(snapshot)}
		tree, err = redactor.Redact(tree)
		if err != nil {
			return WrapErrorf(ErrSerialization, "redacting content: %v", err)
		}
	}

	// Build the tree locally before any network work so an unchanged export
	// can finish without touching the remote.
	store, err := s.openStore()
	if err != nil {
		return WrapError(err, "opening local repository")
	}
	builder := repo.NewBuilder(store)
	builder.Clock = s.now
	treeHash, err := builder.BuildTree(tree)
	if err != nil {
		return WrapError(err, "building tree objects")
	}

	last, known, err := s.heads.Head(s.cfg.Remote.URL, s.cfg.Remote.Branch)
	if err != nil {
		return WrapError(err, "reading recorded head")
	}
	if known && last.Tree == treeHash {
		log.Info("content unchanged since last push, nothing to do",
			"remote", s.cfg.Remote.URL, "branch", s.cfg.Remote.Branch,
			"commit", last.Commit.String())
		report.Outcome = OutcomeUpToDate
		report.Commit = last.Commit
		return nil
	}

	// The remote's identity is checked before any credentialed operation.
	pin, err := s.cfg.Remote.fingerprint()
	if err != nil {
		return err
	}
	tr, err := s.newTransport(store, pin)
	if err != nil {
		return WrapError(ErrConfiguration, err.Error())
	}

	s.setState(StateVerifying)
	verified, err := tr.Verify(ctx)
	if err != nil {
		return err
	}
	if !verified {
		report.UnverifiedHost = hostOf(s.cfg.Remote.URL)
	}

	s.setState(StateFetching)
	var remoteHead plumbing.Hash
	err = s.retryNetwork(ctx, "fetch", func() error {
		var fetchErr error
		remoteHead, fetchErr = tr.FetchHead(ctx)
		return fetchErr
	})
	if err != nil {
		return err
	}

	name, email := s.cfg.authorSignature()
	author := repo.Signature{Name: name, Email: email}

	for attempt := 1; ; attempt++ {
		report.PushAttempts = attempt

		s.setState(StateCommitting)
		commit, commitErr := builder.Commit(treeHash, remoteHead, author, s.cfg.CommitMessage)
		if commitErr != nil {
			return WrapError(commitErr, "building commit object")
		}
		if setErr := store.SetBranch(s.cfg.Remote.Branch, commit); setErr != nil {
			return WrapError(setErr, "updating local branch")
		}

		s.setState(StatePushing)
		pushErr := s.retryNetwork(ctx, "push", func() error {
			return tr.Push(ctx, remoteHead)
		})
		if pushErr == nil {
			report.Outcome = OutcomePushed
			report.Commit = commit
			logPushedChanges(log, store, remoteHead, treeHash, commit)
			if saveErr := s.heads.SetHead(s.cfg.Remote.URL, s.cfg.Remote.Branch, state.Head{
				Commit:   commit,
				Tree:     treeHash,
				PushedAt: s.now(),
			}); saveErr != nil {
				// The push already landed; losing the record only costs the
				// next run its no-op shortcut.
				log.Warn("failed to record pushed head", "error", saveErr)
			}
			return nil
		}
		if !errors.Is(pushErr, transport.ErrNonFastForward) {
			return pushErr
		}
		if attempt >= s.cfg.MaxPushRetries {
			return WrapErrorf(pushErr, "remote branch kept moving after %d attempts", attempt)
		}

		log.Info("remote branch moved during push, rebuilding on its new head",
			"branch", s.cfg.Remote.Branch, "attempt", attempt)
		s.setState(StateFetching)
		previousHead := remoteHead
		err = s.retryNetwork(ctx, "refetch", func() error {
			var fetchErr error
			remoteHead, fetchErr = tr.FetchHead(ctx)
			return fetchErr
		})
		if err != nil {
			return err
		}
		describeBranchMove(log, store, previousHead, remoteHead)
	}
}

// describeBranchMove logs how the remote branch moved between push attempts.
// A head that does not descend from the previous one means the branch was
// rewound or force-pushed underneath the run.
func describeBranchMove(log *slog.Logger, store *repo.Store, from, to plumbing.Hash) {
	if from == to || to.IsZero() {
		return
	}
	descends, err := store.IsDescendant(to, from)
	if err != nil {
		log.Debug("could not inspect moved remote head", "error", err)
		return
	}
	if !descends {
		log.Warn("remote branch no longer descends from its previous head, it was rewound or force-pushed",
			"previous", from.String(), "current", to.String())
		return
	}
	ahead := 0
	if history, logErr := store.Log(to, 32); logErr == nil {
		for i, h := range history {
			if h == from {
				ahead = i
				break
			}
		}
	}
	log.Info("remote branch advanced", "commits", ahead, "current", to.String())
}

// logPushedChanges reports what the pushed commit changed relative to the
// previous remote head. Diagnostic only; diff failures never fail the run.
func logPushedChanges(log *slog.Logger, store *repo.Store, parent, tree plumbing.Hash, commit plumbing.Hash) {
	oldTree := plumbing.ZeroHash
	if !parent.IsZero() {
		if th, err := store.TreeHash(parent); err == nil {
			oldTree = th
		}
	}
	summary, err := store.ChangedPaths(oldTree, tree)
	if err != nil {
		log.Debug("could not summarize pushed changes", "error", err)
		return
	}
	log.Info("pushed content changes",
		"commit", commit.String(),
		"added", len(summary.Added),
		"modified", len(summary.Modified),
		"removed", len(summary.Removed))
}

// retryNetwork runs op, retrying transient network failures with exponential
// backoff. Authentication and identity errors abort immediately.
func (s *Syncer) retryNetwork(ctx context.Context, name string, op func() error) error {
	delay := s.cfg.RetryBaseDelay
	var err error
	for attempt := 1; attempt <= s.cfg.MaxNetworkRetries; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, transport.ErrNetwork) {
			return err
		}
		if attempt == s.cfg.MaxNetworkRetries {
			break
		}
		s.cfg.Logger.Warn("network operation failed, backing off",
			"op", name, "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return WrapError(err, "run cancelled while backing off")
		}
		delay *= 2
	}
	return WrapErrorf(err, "%s failed after %d attempts", name, s.cfg.MaxNetworkRetries)
}

// redactionPolicy extends the configured policy with the fields the snapshot
// itself flags as credential-bearing and with the remote credential values,
// which must never survive into the exported tree wherever they appear.
func (s *Syncer) redactionPolicy(snapshot content.Snapshot) redact.Policy {
	policy := s.cfg.Redaction
	seen := make(map[string]struct{}, len(policy.Flagged))
	for _, f := range policy.Flagged {
		seen[f] = struct{}{}
	}
	flagged := append([]string(nil), policy.Flagged...)
	for _, item := range snapshot {
		for _, f := range item.SensitiveFields {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			flagged = append(flagged, f)
		}
	}
	policy.Flagged = flagged

	secrets := append([][]byte(nil), policy.KnownSecrets...)
	for _, cred := range [][]byte{
		[]byte(s.cfg.Remote.Password),
		[]byte(s.cfg.Remote.Passphrase),
		s.cfg.Remote.PrivateKey,
	} {
		if len(cred) > 0 {
			secrets = append(secrets, cred)
		}
	}
	policy.KnownSecrets = secrets
	return policy
}

func (s *Syncer) openRepoStore() (*repo.Store, error) {
	if s.cfg.RepoDir != "" {
		return repo.OpenOS(s.cfg.RepoDir, s.cfg.Remote.URL, repo.DefaultStorerCacheSize)
	}
	return repo.OpenMemory(s.cfg.Remote.URL)
}

func (s *Syncer) dialTransport(store *repo.Store, pin *hostkey.Fingerprint) (transport.Transport, error) {
	method, err := s.cfg.Remote.method()
	if err != nil {
		return nil, err
	}
	switch method {
	case AuthSSH:
		return transport.NewSSH(transport.SSHOptions{
			Store:      store,
			URL:        s.cfg.Remote.URL,
			Branch:     s.cfg.Remote.Branch,
			PrivateKey: s.cfg.Remote.PrivateKey,
			Passphrase: s.cfg.Remote.Passphrase,
			Pin:        pin,
			Logger:     s.cfg.Logger,
		})
	default:
		return transport.NewHTTPS(transport.HTTPSOptions{
			Store:              store,
			URL:                s.cfg.Remote.URL,
			Branch:             s.cfg.Remote.Branch,
			Username:           s.cfg.Remote.Username,
			Password:           s.cfg.Remote.Password,
			Pin:                pin,
			InsecureSkipVerify: s.cfg.Remote.InsecureSkipVerify,
			Logger:             s.cfg.Logger,
		})
	}
}

func (s *Syncer) setState(st RunState) {
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st)
	}
}

// publicError folds internal classification sentinels into the package's
// public taxonomy.
func publicError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hostkey.ErrMismatch):
		return WrapErrorf(ErrFingerprintMismatch, "%v", err)
	case errors.Is(err, transport.ErrAuth):
		return WrapErrorf(ErrAuthFailed, "%v", err)
	case errors.Is(err, transport.ErrNonFastForward):
		return WrapErrorf(ErrNonFastForward, "%v", err)
	case errors.Is(err, transport.ErrNetwork):
		return WrapErrorf(ErrNetwork, "%v", err)
	default:
		return err
	}
}

func acquire(url, branch string) bool {
	inflight.Lock()
	defer inflight.Unlock()
	key := url + "\n" + branch
	if _, held := inflight.keys[key]; held {
		return false
	}
	inflight.keys[key] = struct{}{}
	return true
}

func release(url, branch string) {
	inflight.Lock()
	defer inflight.Unlock()
	delete(inflight.keys, url+"\n"+branch)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// hostOf extracts the host part of a remote URL for reporting.
func hostOf(url string) string {
	endpoint, err := gittransport.NewEndpoint(url)
	if err != nil {
		return url
	}
	return endpoint.Host
}
