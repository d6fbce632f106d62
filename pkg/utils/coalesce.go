package utils

// CoalesceZero returns the first value that is not the zero value of its type.
func CoalesceZero[T comparable](values ...T) T {
	var zero T
	for _, value := range values {
		if value != zero {
			return value
		}
	}
	return zero
}
