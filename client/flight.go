package client

import (
	"context"
	"sync"
)

type flightState uint8

const (
	flightIdle flightState = iota
	flightInFlight
)

func (s flightState) String() string {
	if s == flightInFlight {
		return "in_flight"
	}
	return "idle"
}

// flight is one single-flight slot. The leader runs the call; everyone who
// arrives while it is in flight is queued and released in arrival order
// with the leader's result.
type flight struct {
	mu      sync.Mutex
	state   flightState
	waiters []chan error
	calls   int64
}

// do runs call unless another caller already is, in which case it waits for
// that result. A waiter whose ctx ends stops waiting; the call itself is
// not cancelled.
func (f *flight) do(ctx context.Context, call func(context.Context) error) error {
	f.mu.Lock()
	if f.state == flightInFlight {
		ch := make(chan error, 1)
		f.waiters = append(f.waiters, ch)
		f.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.state = flightInFlight
	f.calls++
	f.mu.Unlock()

	err := call(ctx)

	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.state = flightIdle
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
	return err
}

func (f *flight) snapshot() (flightState, int, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, len(f.waiters), f.calls
}
