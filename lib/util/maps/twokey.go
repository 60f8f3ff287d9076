package maps

// TwoKey is a two-level map. The zero value is empty and ready for use.
type TwoKey[K1 comparable, K2 comparable, V any] struct {
	inner map[K1]map[K2]V
}

func (T *TwoKey[K1, K2, V]) Load(k1 K1, k2 K2) (V, bool) {
	m, ok := T.inner[k1]
	if !ok {
		return *new(V), false
	}
	v, ok := m[k2]
	return v, ok
}

func (T *TwoKey[K1, K2, V]) Store(k1 K1, k2 K2, v V) {
	if T.inner == nil {
		T.inner = make(map[K1]map[K2]V)
	}
	m, ok := T.inner[k1]
	if !ok {
		m = make(map[K2]V)
		T.inner[k1] = m
	}
	m[k2] = v
}

func (T *TwoKey[K1, K2, V]) Delete(k1 K1, k2 K2) {
	m, ok := T.inner[k1]
	if !ok {
		return
	}
	delete(m, k2)
	if len(m) == 0 {
		delete(T.inner, k1)
	}
}

func (T *TwoKey[K1, K2, V]) Range(fn func(k1 K1, k2 K2, v V) bool) {
	for k1, m := range T.inner {
		for k2, v := range m {
			if !fn(k1, k2, v) {
				return
			}
		}
	}
}
