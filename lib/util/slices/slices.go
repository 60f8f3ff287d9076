package slices

// Resize returns slice with exactly length items, reallocating only if the
// capacity is too small.
func Resize[T any](slice []T, length int) []T {
	if cap(slice) < length {
		next := make([]T, length)
		copy(next, slice)
		return next
	}
	for len(slice) < length {
		slice = append(slice, *new(T))
	}
	return slice[:length]
}

func Index[T comparable](haystack []T, needle T) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

func Contains[T comparable](haystack []T, needle T) bool {
	return Index(haystack, needle) != -1
}

// Remove removes the first occurrence of item, retaining order.
func Remove[T comparable](slice []T, item T) []T {
	i := Index(slice, item)
	if i == -1 {
		return slice
	}
	return RemoveIndex(slice, i)
}

func RemoveIndex[T any](slice []T, idx int) []T {
	copy(slice[idx:], slice[idx+1:])
	slice[len(slice)-1] = *new(T)
	return slice[:len(slice)-1]
}

// Delete removes the first occurrence of item without retaining order.
func Delete[T comparable](slice []T, item T) []T {
	i := Index(slice, item)
	if i == -1 {
		return slice
	}
	return DeleteIndex(slice, i)
}

func DeleteIndex[T any](slice []T, idx int) []T {
	slice[idx] = slice[len(slice)-1]
	slice[len(slice)-1] = *new(T)
	return slice[:len(slice)-1]
}
