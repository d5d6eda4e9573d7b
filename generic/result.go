package generic

import "fmt"

// Result pairs a value with an error, so that (T, error) returns can travel through channels.
type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value as a Result[T].
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

// NewResult_ is like NewResult, but for functions that only return an error.
func NewResult_(err error) Result[Void] {
	return NewResult(NewVoid(), err)
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

// Parts unpacks the Result[T] back into a (T, error) pair.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

// Expect returns the value, or panics with msg and the contained error.
func (r Result[T]) Expect(msg string) T {
	if r.Error != nil {
		panic(fmt.Errorf("%s: %w", msg, r.Error))
	}
	return r.Value
}

// Unwrap returns the value, or panics if there is an error.
func (r Result[T]) Unwrap() T {
	return r.Expect("tried to Unwrap() an Err")
}

// UnwrapOr returns the value, or other if there is an error.
func (r Result[T]) UnwrapOr(other T) T {
	if r.Error != nil {
		return other
	}
	return r.Value
}

// Expect is a shortcut for NewResult(...).Expect(msg); call it as Expect[T](msg)(f()).
func Expect[T any](msg string) func(T, error) T {
	return func(value T, err error) T {
		return NewResult(value, err).Expect(msg)
	}
}

// Unwrap is a shortcut for NewResult(...).Unwrap().
func Unwrap[T any](value T, err error) T {
	return NewResult(value, err).Unwrap()
}

// Unwrap_ is like Unwrap, but for functions that only return an error.
func Unwrap_(err error) {
	NewResult_(err).Unwrap()
}
