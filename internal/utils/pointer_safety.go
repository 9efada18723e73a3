package utils

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// IsSet reports whether the pointer holds a non-zero value.
func IsSet[T comparable](v *T) bool {
	return v != nil && *v != *new(T)
}
