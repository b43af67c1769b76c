package services

// Result is the typed outcome returned at the engine boundary. Callers switch on Kind
// instead of inspecting success flags.
type Result[T any] struct {
	Value T
	Err   error
	Kind  ErrorKind
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err wraps a failure, classifying it.
func Err[T any](err error) Result[T] {
	return Result[T]{Err: err, Kind: KindOf(err)}
}

// ResultOf builds a Result from a conventional (value, error) pair.
func ResultOf[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.Err == nil }

// Unwrap returns the conventional pair.
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }
