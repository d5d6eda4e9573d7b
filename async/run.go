// Package async runs functions in goroutines and hands their results back over channels.
package async

import "github.com/alanbriolat/loop-client/generic"

// Run calls f in a new goroutine; the returned channel receives its result exactly once.
func Run[T any](f func() T) <-chan T {
	c := make(chan T, 1)
	go func() {
		c <- f()
	}()
	return c
}

// RunResult is like Run for functions returning (T, error).
func RunResult[T any](f func() (T, error)) <-chan generic.Result[T] {
	return Run(func() generic.Result[T] {
		return generic.NewResult(f())
	})
}
