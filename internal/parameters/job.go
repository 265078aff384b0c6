// Package parameters runs molecule parameterisation protocols on a background
// worker. Callers block only when they ask for the result; a failed run leaves
// a zip archive of its work directory for inspection.
package parameters

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/mdrun/internal/errdefs"
	"github.com/mattjoyce/mdrun/internal/ledger"
	"github.com/mattjoyce/mdrun/internal/log"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/workspace"
)

// Protocol parameterises a molecule. Run should send one value on result:
// the parameterised molecule, or nil on failure. Only the first value sent
// before Run returns is used; the job supplies nil if Run returns or panics
// without sending.
type Protocol interface {
	Name() string
	// Identity is a canonical encoding of the protocol's settings.
	Identity() []byte
	Run(mol *molecule.Molecule, workDir string, result chan<- *molecule.Molecule)
}

// Recorder persists job outcomes.
type Recorder interface {
	RecordJob(ctx context.Context, req ledger.JobRequest) (string, error)
	CompleteJob(ctx context.Context, id string, status ledger.Status, archive string) error
}

// ErrClosed is returned by Molecule for a job closed before it started.
var ErrClosed = errors.New("parameterisation job closed")

type State int

const (
	StateCreated State = iota
	StateStarted
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Options configures a Job.
type Options struct {
	// WorkDir is created if missing and never removed. Empty means a
	// temporary directory owned by the job and removed by Close.
	WorkDir   string
	AutoStart bool

	// ArchiveDir receives <hash>.zip on failure. Defaults to the current
	// working directory.
	ArchiveDir string

	// Out receives the failure notice. Defaults to stdout.
	Out io.Writer

	// Interactive selects the link form of the failure notice. Nil means
	// detect from the environment.
	Interactive func() bool

	Recorder Recorder
}

// Job is one parameterisation of one molecule. State moves
// created -> started -> finished and never back.
type Job struct {
	mol        *molecule.Molecule
	proto      Protocol
	hash       uint64
	workDir    string
	ownsDir    bool
	archiveDir string
	out        io.Writer
	interact   func() bool
	recorder   Recorder
	logger     *slog.Logger

	mu            sync.Mutex
	state         State
	result        chan *molecule.Molecule
	done          chan struct{}
	recordID      string
	parameterised *molecule.Molecule
	archive       string
	err           error
}

// NewJob prepares a job. The worker is launched now if opts.AutoStart is
// set, otherwise on Start or the first call to Molecule.
func NewJob(mol *molecule.Molecule, proto Protocol, opts Options) (*Job, error) {
	if mol == nil {
		return nil, errdefs.InvalidArgument("molecule", "must be a molecule, got nil")
	}
	if proto == nil {
		return nil, errdefs.InvalidArgument("protocol", "must be a parameterisation protocol, got nil")
	}

	j := &Job{
		mol:        mol,
		proto:      proto,
		hash:       Hash(mol, proto),
		archiveDir: opts.ArchiveDir,
		out:        opts.Out,
		interact:   opts.Interactive,
		recorder:   opts.Recorder,
	}
	if j.archiveDir == "" {
		j.archiveDir = "."
	}
	if j.out == nil {
		j.out = os.Stdout
	}
	if j.interact == nil {
		j.interact = Interactive
	}

	if opts.WorkDir == "" {
		dir, err := workspace.Temp("mdrun-param-")
		if err != nil {
			return nil, err
		}
		j.workDir = dir
		j.ownsDir = true
	} else {
		if err := workspace.Ensure(opts.WorkDir); err != nil {
			return nil, err
		}
		dir, err := filepath.Abs(opts.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("resolve work directory: %w", err)
		}
		j.workDir = dir
	}

	j.logger = log.WithComponent("parameters").With(
		"protocol", proto.Name(),
		"molecule", mol.Name,
		"hash", j.HashString(),
		"work_dir", j.workDir,
	)

	if opts.AutoStart {
		j.Start()
	}
	return j, nil
}

// Hash is the job identity used for the archive name: blake3 over the
// molecule and protocol identities, first eight bytes as an unsigned integer.
func Hash(mol *molecule.Molecule, proto Protocol) uint64 {
	h := blake3.New()
	writeField(h, mol.Identity())
	writeField(h, []byte(proto.Name()))
	writeField(h, proto.Identity())
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// writeField length-prefixes b so adjacent fields cannot run together.
func writeField(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(b)
}

func (j *Job) Hash() uint64       { return j.hash }
func (j *Job) HashString() string { return strconv.FormatUint(j.hash, 10) }
func (j *Job) WorkDir() string    { return j.workDir }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Archive returns the failure archive path, or "" if none was written.
func (j *Job) Archive() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.archive
}

// Start launches the worker. Calls after the first have no effect.
func (j *Job) Start() {
	j.mu.Lock()
	if j.state != StateCreated {
		j.mu.Unlock()
		return
	}
	j.state = StateStarted
	j.result = make(chan *molecule.Molecule, 1)
	j.done = make(chan struct{})
	j.mu.Unlock()

	j.record()
	j.logger.Info("starting parameterisation")
	go j.work()
}

func (j *Job) work() {
	defer close(j.done)

	sink := make(chan *molecule.Molecule)
	stop := make(chan struct{})
	forwarded := make(chan bool, 1)
	go j.forward(sink, stop, forwarded)

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("parameterisation protocol panicked", "panic", r)
		}
		close(stop)
		// Guarantee exactly one value for the consumer.
		if !<-forwarded {
			j.result <- nil
		}
	}()
	j.proto.Run(j.mol, j.workDir, sink)
}

// forward hands the first value sent by the protocol to the consumer and
// discards the rest, so extra sends never block the protocol.
func (j *Job) forward(sink <-chan *molecule.Molecule, stop <-chan struct{}, forwarded chan<- bool) {
	sent := false
	for {
		select {
		case m := <-sink:
			if sent {
				j.logger.Warn("protocol sent more than one result; extra value dropped")
				continue
			}
			j.result <- m
			sent = true
		case <-stop:
			forwarded <- sent
			return
		}
	}
}

// Molecule returns the parameterised molecule, starting the job if needed
// and blocking until the worker finishes. The outcome is cached.
//
// A failed run returns (nil, nil): the work directory is zipped to
// <ArchiveDir>/<hash>.zip and a notice naming it is written to Out.
func (j *Job) Molecule() (*molecule.Molecule, error) {
	j.Start()
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done != nil {
		<-done
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateFinished {
		return j.parameterised, j.err
	}
	j.state = StateFinished
	j.parameterised = <-j.result

	if j.parameterised != nil {
		j.logger.Info("parameterisation succeeded")
		j.complete(ledger.StatusSucceeded, "")
		return j.parameterised, nil
	}

	j.err = j.archiveFailure()
	j.complete(ledger.StatusFailed, j.archive)
	return nil, j.err
}

func (j *Job) archiveFailure() error {
	name := j.HashString() + ".zip"
	path := filepath.Join(j.archiveDir, name)
	if err := workspace.Ensure(j.archiveDir); err != nil {
		return err
	}
	files, err := workspace.ArchiveFlat(j.workDir, path)
	if err != nil {
		return fmt.Errorf("archive failed parameterisation: %w", err)
	}
	j.archive = path
	j.logger.Warn("parameterisation failed", "archive", path, "files", len(files))

	if j.interact() {
		fmt.Fprintf(j.out, "Parameterisation failed! Check output: %s\n", NewFileLink(path))
	} else {
		fmt.Fprintf(j.out, "Parameterisation failed! Check output: '%s'\n", name)
	}
	return nil
}

func (j *Job) record() {
	if j.recorder == nil {
		return
	}
	id, err := j.recorder.RecordJob(context.Background(), ledger.JobRequest{
		Hash:     j.HashString(),
		Protocol: j.proto.Name(),
		Molecule: j.mol.Name,
		WorkDir:  j.workDir,
	})
	if err != nil {
		j.logger.Warn("failed to record job", "error", err)
		return
	}
	j.recordID = id
}

func (j *Job) complete(status ledger.Status, archive string) {
	if j.recorder == nil || j.recordID == "" {
		return
	}
	if err := j.recorder.CompleteJob(context.Background(), j.recordID, status, archive); err != nil {
		j.logger.Warn("failed to record job outcome", "error", err)
	}
}

// Close waits for a started worker and removes a job-owned work directory.
// A caller-supplied directory is left in place. A job closed before it was
// started never runs: Molecule then returns ErrClosed.
func (j *Job) Close() error {
	j.mu.Lock()
	if j.state == StateCreated {
		j.state = StateFinished
		j.err = ErrClosed
	}
	done := j.done
	j.mu.Unlock()
	if done != nil {
		<-done
	}
	if !j.ownsDir {
		return nil
	}
	if err := os.RemoveAll(j.workDir); err != nil {
		return fmt.Errorf("remove work directory: %w", err)
	}
	return nil
}
