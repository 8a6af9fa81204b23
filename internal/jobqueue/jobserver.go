// Package jobqueue implements the worker pool and scheduling algorithm:
// a job-token server gates concurrent compiler invocations, a ready
// queue releases units in deterministic order, and the pool drains
// cooperatively on first failure.
package jobqueue

import "context"

// Jobserver is a job-token server: the queue acquires a token before
// spawning any compiler process and releases it on completion, the
// same way the de-facto external jobserver protocol (MAKEFLAGS-compatible)
// gates concurrent recipe execution across a build tree.
type Jobserver struct {
	tokens chan struct{}
}

// NewJobserver creates a self-hosted token server with exactly jobs
// tokens, so up to jobs units run concurrently (jobs must be >= 1).
func NewJobserver(jobs int) *Jobserver {
	if jobs < 1 {
		jobs = 1
	}
	tokens := make(chan struct{}, jobs)
	for i := 0; i < jobs; i++ {
		tokens <- struct{}{}
	}
	return &Jobserver{tokens: tokens}
}

// Acquire blocks until a token is available or ctx is cancelled.
func (j *Jobserver) Acquire(ctx context.Context) error {
	select {
	case <-j.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a token to the pool.
func (j *Jobserver) Release() {
	select {
	case j.tokens <- struct{}{}:
	default:
		// pool already full; a Release without a matching Acquire is a
		// caller bug, not something the queue should panic over.
	}
}

// Capacity reports the number of tokens this server was created with,
// the maximum number of units that can run concurrently.
func (j *Jobserver) Capacity() int {
	return cap(j.tokens)
}
