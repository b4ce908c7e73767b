package connection

import (
	"context"
	"sync"
)

// AttemptStatus is the state of a connect attempt.
type AttemptStatus int

const (
	AttemptPending AttemptStatus = iota
	AttemptSucceeded
	AttemptFailed
)

func (s AttemptStatus) String() string {
	switch s {
	case AttemptPending:
		return "pending"
	case AttemptSucceeded:
		return "succeeded"
	default:
		return "failed"
	}
}

// Attempt is the pending result of ConnectAsync. It resolves exactly once:
// when the handshake completes or when it fails.
type Attempt struct {
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	status AttemptStatus
	err    error
}

func newAttempt() *Attempt {
	return &Attempt{done: make(chan struct{})}
}

// resolve settles the attempt. Later calls are ignored.
func (a *Attempt) resolve(err error) {
	a.once.Do(func() {
		a.mu.Lock()
		a.err = err
		if err != nil {
			a.status = AttemptFailed
		} else {
			a.status = AttemptSucceeded
		}
		a.mu.Unlock()
		close(a.done)
	})
}

// Done is closed when the attempt resolves.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Status returns the current status.
func (a *Attempt) Status() AttemptStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Err returns the failure, or nil while pending or after success.
func (a *Attempt) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Wait blocks until the attempt resolves or ctx is done. A ctx that ends
// first only stops the wait; it does not cancel the attempt.
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
