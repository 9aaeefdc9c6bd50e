package seqguard

import "testing"

func TestGuardDiscardsStaleTicket(t *testing.T) {
	g := New()
	first := g.Next()
	second := g.Next()

	var applied []uint64
	if g.Commit(first, func() { applied = append(applied, first) }) {
		t.Fatalf("stale ticket committed")
	}
	if !g.Commit(second, func() { applied = append(applied, second) }) {
		t.Fatalf("latest ticket rejected")
	}
	if len(applied) != 1 || applied[0] != second {
		t.Fatalf("applied: want=[%d] got=%v", second, applied)
	}
}

func TestGuardInvalidate(t *testing.T) {
	g := New()
	ticket := g.Next()
	g.Invalidate()
	if g.Current(ticket) {
		t.Fatalf("ticket should be superseded after Invalidate")
	}
	if g.Commit(ticket, func() {}) {
		t.Fatalf("commit after Invalidate should be rejected")
	}
}

func TestGuardClose(t *testing.T) {
	g := New()
	ticket := g.Next()
	g.Close()
	if g.Commit(ticket, func() {}) {
		t.Fatalf("commit after Close should be rejected")
	}
	if g.Commit(g.Next(), func() {}) {
		t.Fatalf("new tickets must not commit after Close")
	}
}
