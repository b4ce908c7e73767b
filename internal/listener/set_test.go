package listener

import (
	"testing"
)

func TestSet_AddIsIdempotent(t *testing.T) {
	var s Set[string]
	calls := 0
	l := New(func(string) { calls++ })

	if !s.Add(l) {
		t.Fatal("first Add should register")
	}
	if s.Add(l) {
		t.Error("second Add should be a no-op")
	}

	s.Emit("x")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSet_RemoveUnknownIsNoop(t *testing.T) {
	var s Set[int]
	registered := New(func(int) {})
	s.Add(registered)

	if s.Remove(New(func(int) {})) {
		t.Error("Remove of unknown listener reported true")
	}
	if s.Remove(nil) {
		t.Error("Remove(nil) reported true")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSet_EmitOrder(t *testing.T) {
	var s Set[int]
	var got []string

	a := New(func(int) { got = append(got, "a") })
	b := New(func(int) { got = append(got, "b") })
	c := New(func(int) { got = append(got, "c") })
	s.Add(a)
	s.Add(b)
	s.Add(c)
	s.Remove(b)
	s.Add(b)

	if n := s.Emit(1); n != 3 {
		t.Errorf("Emit returned %d, want 3", n)
	}

	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSet_RemoveDuringEmit(t *testing.T) {
	var s Set[int]
	calls := 0

	var self *Listener[int]
	self = New(func(int) {
		calls++
		s.Remove(self)
	})
	s.Add(self)

	s.Emit(1)
	s.Emit(2)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if s.Has(self) {
		t.Error("listener should have removed itself")
	}
}

func TestSet_PanicAbortsPass(t *testing.T) {
	var s Set[int]
	after := false

	s.Add(New(func(int) { panic("boom") }))
	s.Add(New(func(int) { after = true }))

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		s.Emit(1)
	}()

	if after {
		t.Error("listener after the faulting one should not run")
	}
}
