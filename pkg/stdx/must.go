package stdx

// Must0 panics when the provided error is not nil. It is meant for call
// sites where an error indicates a programming mistake rather than a
// runtime condition worth handling.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v when err is nil and panics otherwise. It collapses the
// common (value, error) return shape at call sites that cannot fail given
// correct inputs, such as registering a statically declared tool.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
