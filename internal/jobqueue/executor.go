package jobqueue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"

	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"

	"github.com/duffield-forge/forge/internal/layout"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

// Invocation is everything a ProcessExecutor needs to turn a Unit into a
// child-process command line; the caller (the out-of-core front end) is
// responsible for deriving it from the Unit and its manifest.
type Invocation struct {
	Program     string
	Args        []string
	Env         []string
	Dir         string
	OutputPaths []string // concrete output + hardlink paths this unit produces
}

// InvocationPlanner derives the child-process invocation for a unit.
type InvocationPlanner interface {
	Plan(u unitgraph.Unit) (Invocation, error)
}

// ProcessExecutor runs one unit as a child process, streaming its
// diagnostic output through a Renderer and registering its output paths
// with an OutputTracker: a background goroutine copies the child's
// output while the caller waits on completion or cancellation.
type ProcessExecutor struct {
	Planner  InvocationPlanner
	Renderer *Renderer
	Tracker  *layout.OutputTracker
	Log      *logrus.Entry
}

func NewProcessExecutor(planner InvocationPlanner, renderer *Renderer, tracker *layout.OutputTracker, log *logrus.Entry) *ProcessExecutor {
	return &ProcessExecutor{Planner: planner, Renderer: renderer, Tracker: tracker, Log: log}
}

// Execute implements Executor. On ctx cancellation it kills the child's
// whole process group (PrepareForChildren/kill.Kill) rather than just
// the direct child, so a compiler that forks helper processes doesn't
// leave orphans running after cancellation.
func (e *ProcessExecutor) Execute(ctx context.Context, u unitgraph.Unit) error {
	inv, err := e.Planner.Plan(u)
	if err != nil {
		return err
	}

	for _, path := range sortedOutputPaths(inv.OutputPaths) {
		if warning := e.Tracker.Register(path, u.Key(), true); warning != "" {
			e.Log.Warn(warning)
		}
	}

	cmd := exec.Command(inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	kill.PrepareForChildren(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", u, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.streamBoth(u, stdout, stderr)
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = kill.Kill(cmd)
		<-waitErr
		return ctx.Err()
	case err := <-waitErr:
		<-done
		if err != nil {
			return fmt.Errorf("%s exited: %w", u, err)
		}
		return nil
	}
}

func (e *ProcessExecutor) streamBoth(u unitgraph.Unit, stdout, stderr io.Reader) error {
	label := u.String()

	errs := make(chan error, 2)
	go func() {
		errs <- ParseStream(stdout, func(d Diagnostic) { e.Renderer.Render(label, d) })
	}()
	go func() {
		errs <- ParseStream(stderr, func(d Diagnostic) { e.Renderer.Render(label, d) })
	}()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CollectOutput runs a unit's invocation to completion, returning its
// combined stdout+stderr instead of streaming it, used by tests and by
// build-script execution (the RunCustomBuild mode's `cargo:` directive
// output must be parsed in full before the consuming unit proceeds).
func CollectOutput(ctx context.Context, inv Invocation) (string, error) {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	kill.PrepareForChildren(cmd)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	return buf.String(), err
}

// sortedOutputPaths is a small helper kept for callers that build
// Invocation.OutputPaths from an unordered set, so registration order (and
// therefore which unit "wins" a same-path race in logs) is deterministic.
func sortedOutputPaths(paths []string) []string {
	out := append([]string{}, paths...)
	sort.Strings(out)
	return out
}
