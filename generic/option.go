package generic

// Option is a value that may be absent, used instead of (T, bool) where it reads better at the call site.
type Option[T any] struct {
	Value    T
	hasValue bool
}

func Some[T any](value T) Option[T] {
	return Option[T]{Value: value, hasValue: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) IsSome() bool {
	return o.hasValue
}

func (o Option[T]) IsNone() bool {
	return !o.hasValue
}

// Get returns the value and whether it was present, for use in if-statements.
func (o Option[T]) Get() (T, bool) {
	return o.Value, o.hasValue
}

// UnwrapOr returns the contained value, or other if there is no value.
func (o Option[T]) UnwrapOr(other T) T {
	if o.hasValue {
		return o.Value
	}
	return other
}
