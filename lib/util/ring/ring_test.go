package ring

import "testing"

func assertPop(t *testing.T, value int, ok bool, expected int) {
	t.Helper()
	if !ok {
		t.Error("expected pop to succeed")
		return
	}
	if value != expected {
		t.Errorf("expected %d but got %d", expected, value)
	}
}

func assertEmpty(t *testing.T, r *Ring[int]) {
	t.Helper()
	if r.Length() != 0 {
		t.Errorf("expected empty ring but got length %d", r.Length())
	}
	if _, ok := r.PopFront(); ok {
		t.Error("expected PopFront to fail on empty ring")
	}
	if _, ok := r.PopBack(); ok {
		t.Error("expected PopBack to fail on empty ring")
	}
}

func TestRing_Queue(t *testing.T) {
	var r Ring[int]
	for i := 0; i < 100; i++ {
		r.PushBack(i)
	}
	if r.Length() != 100 {
		t.Errorf("expected length 100 but got %d", r.Length())
	}
	for i := 0; i < 100; i++ {
		v, ok := r.PopFront()
		assertPop(t, v, ok, i)
	}
	assertEmpty(t, &r)
}

func TestRing_Stack(t *testing.T) {
	var r Ring[int]
	for i := 0; i < 100; i++ {
		r.PushBack(i)
	}
	for i := 99; i >= 0; i-- {
		v, ok := r.PopBack()
		assertPop(t, v, ok, i)
	}
	assertEmpty(t, &r)
}

func TestRing_Wrap(t *testing.T) {
	var r Ring[int]
	// force head to move off zero before growing
	for i := 0; i < 3; i++ {
		r.PushBack(i)
	}
	r.PopFront()
	r.PopFront()
	for i := 3; i < 20; i++ {
		r.PushBack(i)
	}
	for i := 2; i < 20; i++ {
		v, ok := r.PopFront()
		assertPop(t, v, ok, i)
	}
	assertEmpty(t, &r)
}

func TestRing_PushFront(t *testing.T) {
	var r Ring[int]
	for i := 0; i < 10; i++ {
		r.PushFront(i)
	}
	for i := 9; i >= 0; i-- {
		v, ok := r.PopFront()
		assertPop(t, v, ok, i)
	}
	assertEmpty(t, &r)
}

func TestRing_Get(t *testing.T) {
	var r Ring[int]
	for i := 0; i < 10; i++ {
		r.PushBack(i)
	}
	r.PopFront()
	for i := 0; i < r.Length(); i++ {
		if r.Get(i) != i+1 {
			t.Errorf("expected %d but got %d", i+1, r.Get(i))
		}
	}
}
