package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/duffield-forge/forge/internal/forgeerr"
	"github.com/duffield-forge/forge/internal/unitgraph"
)

// Executor runs one unit to completion, streaming its diagnostic output
// through the Renderer configured on the Queue. A non-nil error is treated
// as a hard failure.
type Executor interface {
	Execute(ctx context.Context, u unitgraph.Unit) error
}

// Queue schedules a unitgraph.Graph's units over a worker pool gated by a
// Jobserver, in the deterministic order "Ordering" requires:
// among units whose dependencies have all finished, release the
// lexicographically smallest Unit.Key() first.
type Queue struct {
	graph     *unitgraph.Graph
	jobserver *Jobserver
	executor  Executor
	log       *logrus.Entry

	// mu guards the scheduling state below; go-deadlock swaps in for
	// sync.Mutex so a lock-ordering mistake between this and the
	// jobserver's token channel surfaces as a test failure instead of a
	// silent hang.
	mu        deadlock.Mutex
	cond      *sync.Cond
	scheduled map[string]bool
	finished  map[string]bool
	failed    bool
	firstErr  error
}

// New builds a Queue ready to run graph's units.
func New(graph *unitgraph.Graph, jobserver *Jobserver, executor Executor, log *logrus.Entry) *Queue {
	q := &Queue{
		graph:     graph,
		jobserver: jobserver,
		executor:  executor,
		log:       log,
		scheduled: make(map[string]bool),
		finished:  make(map[string]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Run executes every unit in graph, respecting dependency order, until
// either all units complete or a hard failure occurs. On failure it stops
// scheduling new work, waits for in-flight work to drain, then returns the
// first error.
func (q *Queue) Run(ctx context.Context) error {
	deps := make(map[string][]string, len(q.graph.Units))
	byKey := make(map[string]unitgraph.Unit, len(q.graph.Units))
	for _, u := range q.graph.Units {
		key := u.Key()
		byKey[key] = u
		for _, c := range q.graph.Edges[key] {
			deps[key] = append(deps[key], c.Key())
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(runCtx)

	for {
		q.mu.Lock()

		if q.failed {
			q.mu.Unlock()
			break
		}

		if len(q.finished) == len(byKey) {
			q.mu.Unlock()
			break
		}

		var ready []string
		for key := range byKey {
			if q.scheduled[key] {
				continue
			}
			if allFinishedLocked(q.finished, deps[key]) {
				ready = append(ready, key)
			}
		}
		sort.Strings(ready)

		if len(ready) == 0 {
			if len(q.scheduled) == len(q.finished) {
				// nothing ready and nothing in flight: the graph cannot
				// make progress. This is an internal invariant failure,
				// not a user-facing error.
				q.failed = true
				q.firstErr = forgeerr.New(forgeerr.KindInternal, fmt.Sprintf("jobqueue: no ready units but %d remain scheduled", len(byKey)-len(q.finished)))
				q.mu.Unlock()
				break
			}
			q.cond.Wait()
			q.mu.Unlock()
			continue
		}

		for _, key := range ready {
			q.scheduled[key] = true
		}
		q.mu.Unlock()

		for _, key := range ready {
			key := key
			u := byKey[key]
			group.Go(func() error {
				if err := q.jobserver.Acquire(gctx); err != nil {
					q.finishOne(key, err)
					return err
				}
				err := q.executor.Execute(gctx, u)
				q.jobserver.Release()
				q.finishOne(key, err)
				if err != nil {
					cancel()
					return forgeerr.Wrap(forgeerr.KindCompile, fmt.Sprintf("unit %s", u), err)
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		q.mu.Lock()
		if q.firstErr == nil {
			q.firstErr = err
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}

func (q *Queue) finishOne(key string, err error) {
	q.mu.Lock()
	q.finished[key] = true
	if err != nil && !q.failed {
		q.failed = true
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

func allFinishedLocked(finished map[string]bool, deps []string) bool {
	for _, d := range deps {
		if !finished[d] {
			return false
		}
	}
	return true
}
