package gitsync

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// RunState is the phase a sync run is currently in. States advance linearly;
// a run ends in StateDone or StateFailed.
type RunState int

const (
	// StateIdle is the state before the run starts.
	StateIdle RunState = iota
	// StateExporting renders platform content into the file layout.
	StateExporting
	// StateRedacting applies the redaction policy to the rendered files.
	StateRedacting
	// StateVerifying checks the remote's identity against the fingerprint.
	StateVerifying
	// StateFetching retrieves the current remote head.
	StateFetching
	// StateCommitting builds the tree and commit objects.
	StateCommitting
	// StatePushing transfers the commit to the remote.
	StatePushing
	// StateDone is the terminal state of a successful run, including runs
	// that found nothing to push.
	StateDone
	// StateFailed is the terminal state of an unsuccessful run.
	StateFailed
)

var runStateNames = map[RunState]string{
	StateIdle:       "idle",
	StateExporting:  "exporting",
	StateRedacting:  "redacting",
	StateVerifying:  "verifying",
	StateFetching:   "fetching",
	StateCommitting: "committing",
	StatePushing:    "pushing",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Outcome summarizes how a run ended.
type Outcome int

const (
	// OutcomePushed means a new commit is on the remote.
	OutcomePushed Outcome = iota
	// OutcomeUpToDate means the exported content matched the last pushed
	// head and nothing was sent.
	OutcomeUpToDate
	// OutcomeFailed means the run ended with an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePushed:
		return "pushed"
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunReport is the result of a sync run.
type RunReport struct {
	Outcome Outcome

	// Commit is the head now on the remote. Zero when nothing was pushed.
	Commit plumbing.Hash

	// UnverifiedHost is set when no fingerprint was configured and the
	// remote was contacted on trust-on-first-use terms.
	UnverifiedHost string

	// PushAttempts counts push attempts including rebuilds after the
	// remote moved.
	PushAttempts int

	// Duration is the wall time of the whole run.
	Duration time.Duration

	// Err is the terminal error for failed runs, nil otherwise.
	Err error
}
