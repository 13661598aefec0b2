package presence

import (
	"testing"

	"github.com/Vasu1712/scenyx-realtime/internal/models"
)

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	alice := models.SessionUser{ID: "u1", Name: "Alice"}

	if !r.Join("s1", alice) {
		t.Fatal("first join should change the list")
	}
	if r.Join("s1", alice) {
		t.Fatal("second join with the same id should be a no-op")
	}
	if got := r.List("s1"); len(got) != 1 {
		t.Fatalf("participants = %v, want 1 entry", got)
	}
}

func TestListKeepsJoinOrder(t *testing.T) {
	r := NewRegistry()
	r.Join("s1", models.SessionUser{ID: "a", Name: "Alice"})
	r.Join("s1", models.SessionUser{ID: "b", Name: "Bob"})
	r.Join("s1", models.SessionUser{ID: "c", Name: "Carol"})
	r.Leave("s1", "b")
	r.Join("s1", models.SessionUser{ID: "b", Name: "Bob"})

	got := r.List("s1")
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("participants = %v", got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("participants[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestUnknownSessionIsEmpty(t *testing.T) {
	r := NewRegistry()
	got := r.List("missing")
	if got == nil {
		t.Fatal("List must never return nil")
	}
	if len(got) != 0 || r.Count("missing") != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if r.Leave("missing", "u1") {
		t.Fatal("leave on unknown session should report false")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	r := NewRegistry()
	r.Join("s1", models.SessionUser{ID: "u1", Name: "Alice"})
	r.Join("s2", models.SessionUser{ID: "u1", Name: "Alice"})
	r.Leave("s1", "u1")

	if r.Count("s1") != 0 {
		t.Fatal("s1 should be empty")
	}
	if r.Count("s2") != 1 {
		t.Fatal("leaving s1 must not touch s2")
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Join("s1", models.SessionUser{ID: "u1", Name: "Alice"})
	got := r.List("s1")
	got[0].Name = "Mallory"
	if r.List("s1")[0].Name != "Alice" {
		t.Fatal("List leaked internal state")
	}
}
