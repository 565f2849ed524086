package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PackageSource identifies where a Package's source lives.
type PackageSource string

const (
	SourceRegistry PackageSource = "registry"
	SourceGit      PackageSource = "git"
)

// Package identifies a unit of source under test. Identity is by value
// equality over Name+Version+Source, never by pointer: two Package values
// with the same fields are the same package.
type Package struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Source  PackageSource `json:"source"`
	// Ref is interpreted per Source: a registry tarball checksum/URL for
	// SourceRegistry, a git remote URL for SourceGit.
	Ref string `json:"ref"`
}

// Key returns the opaque identity string used as a map/bucket key.
func (p Package) Key() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

func (p Package) String() string { return p.Key() }

// Toolchain is a pinned compiler identity, e.g. a specific rustc build.
type Toolchain struct {
	ID string `json:"id"`
	// Components are optional named components resolved by the sandbox
	// implementation (e.g. "clippy", "rustfmt"); the graph and registry
	// never interpret these beyond passing them through.
	Components []string `json:"components,omitempty"`
}

func (t Toolchain) Key() string { return t.ID }

// Mode selects which task kinds an experiment's graph contains.
type Mode string

const (
	ModeBuildAndTest Mode = "build-and-test"
	ModeBuildOnly    Mode = "build-only"
	ModeLint         Mode = "lint"
)

// ExperimentStatus is the registry-owned lifecycle state of an Experiment.
type ExperimentStatus string

const (
	StatusQueued    ExperimentStatus = "queued"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
)

// ReportStatus tracks C8's report-rendering side channel independently of
// the experiment's own Queued/Running/Completed lifecycle.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportRendered ReportStatus = "rendered"
	ReportFailed   ReportStatus = "failed"
)

// Experiment is a single baseline-vs-candidate comparison run across a set
// of packages.
type Experiment struct {
	Name      string           `json:"name"`
	Baseline  Toolchain        `json:"baseline"`
	Candidate Toolchain        `json:"candidate"`
	Mode      Mode             `json:"mode"`
	Packages  []Package        `json:"packages"`
	IssueRef  string           `json:"issue_ref,omitempty"`
	Priority  int              `json:"priority,omitempty"`
	Status    ExperimentStatus `json:"status"`
	Agent     string           `json:"agent,omitempty"`
	Report    ReportStatus     `json:"report,omitempty"`
	QueuedAt  time.Time        `json:"queued_at"`
	// LastSeenAt is bumped while the experiment is Running whenever the
	// owning agent calls record-result, or next-experiment again. A
	// coordinator-side sweep uses it to
	// detect agents that have stopped polling and release the experiment
	// back to Queued.
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
}

// NewExperiment builds a Queued experiment ready to enter the registry.
func NewExperiment(name string, baseline, candidate Toolchain, mode Mode, pkgs []Package, issueRef string) Experiment {
	return Experiment{
		Name:      name,
		Baseline:  baseline,
		Candidate: candidate,
		Mode:      mode,
		Packages:  pkgs,
		IssueRef:  issueRef,
		Status:    StatusQueued,
		Report:    ReportPending,
		QueuedAt:  time.Now(),
	}
}

// TaskKind discriminates what a graph node does.
type TaskKind string

const (
	TaskPrepare      TaskKind = "prepare"
	TaskBuildAndTest TaskKind = "build-and-test"
	TaskBuildOnly    TaskKind = "build-only"
	TaskLint         TaskKind = "lint"
	TaskRoot         TaskKind = "root"
)

// TaskState is monotonic: Waiting -> Ready -> Running -> Done|Failed. No
// transition ever moves backward.
type TaskState int

const (
	TaskWaiting TaskState = iota
	TaskReady
	TaskRunning
	TaskDone
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskWaiting:
		return "waiting"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one node of an experiment's task graph.
type Task struct {
	Kind      TaskKind  `json:"kind"`
	Package   Package   `json:"package,omitempty"`
	Toolchain Toolchain `json:"toolchain,omitempty"`
}

// Outcome is the terminal result recorded for a Task.
type Outcome string

const (
	OutcomeBuildFailed   Outcome = "build_failed"
	OutcomeTestFailed    Outcome = "test_failed"
	OutcomeTestPassed    Outcome = "test_passed"
	OutcomeTestSkipped   Outcome = "test_skipped"
	OutcomeCompileError  Outcome = "compile_error"
	OutcomeOverriddenTo  Outcome = "overridden_to"
	OutcomePrepareFailed Outcome = "prepare_failed"
	OutcomeTimedOut      Outcome = "timed_out"
)

// NewID returns a fresh random identifier suitable for agent tokens,
// task-graph node references, and report artifact names.
func NewID() string {
	return uuid.NewString()
}
