package inmemory

import (
	"testing"
	"time"
)

func TestEnsureSessionReusesLiveSession(t *testing.T) {
	store := NewStore()
	first, err := store.EnsureSession("", time.Hour)
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	second, err := store.EnsureSession(first.ID(), time.Hour)
	if err != nil {
		t.Fatalf("EnsureSession reuse: %v", err)
	}
	if second.ID() != first.ID() {
		t.Fatalf("expected same session, got %q and %q", first.ID(), second.ID())
	}
}

func TestExpiredSessionsArePruned(t *testing.T) {
	store := NewStore()
	stale, err := store.EnsureSession("", -time.Second)
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}

	fresh, err := store.EnsureSession("", time.Hour)
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if fresh.ID() == stale.ID() {
		t.Fatal("expired session must not be reused")
	}

	store.mu.Lock()
	_, staleKept := store.sessions[stale.ID()]
	size := len(store.sessions)
	store.mu.Unlock()
	if staleKept {
		t.Fatal("expired session still held by the store")
	}
	if size != 1 {
		t.Fatalf("store holds %d sessions, want 1", size)
	}

	got, err := store.GetSession(stale.ID())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Fatal("expired session returned from GetSession")
	}
}

func TestGetSessionMissingReturnsNil(t *testing.T) {
	store := NewStore()
	sess, err := store.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess != nil {
		t.Fatal("expected nil session for unknown id")
	}
}

func TestNavigationPathOperations(t *testing.T) {
	store := NewStore()
	sess, _ := store.EnsureSession("", time.Hour)

	for _, ref := range []string{"Berakhot 2a", "Berakhot 2a:1", "Rashi on Berakhot 2a:1:1"} {
		if err := sess.Append(ref); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	st, _ := sess.State()
	if len(st.Path) != 3 || st.Path[2] != "Rashi on Berakhot 2a:1:1" {
		t.Fatalf("path = %v", st.Path)
	}

	if err := sess.TruncateToParent(); err != nil {
		t.Fatalf("TruncateToParent: %v", err)
	}
	st, _ = sess.State()
	if len(st.Path) != 2 || st.Path[1] != "Berakhot 2a:1" {
		t.Fatalf("path after back = %v", st.Path)
	}

	if err := sess.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st, _ = sess.State()
	if len(st.Path) != 0 {
		t.Fatalf("path after home = %v", st.Path)
	}

	// Back on an empty path is a no-op, not an error.
	if err := sess.TruncateToParent(); err != nil {
		t.Fatalf("TruncateToParent empty: %v", err)
	}
}

func TestToggleExpanded(t *testing.T) {
	store := NewStore()
	sess, _ := store.EnsureSession("", time.Hour)

	_ = sess.ToggleExpanded("Berakhot 2a")
	st, _ := sess.State()
	if len(st.Expanded) != 1 {
		t.Fatalf("expanded = %v", st.Expanded)
	}
	_ = sess.ToggleExpanded("Berakhot 2a")
	st, _ = sess.State()
	if len(st.Expanded) != 0 {
		t.Fatalf("expanded after re-toggle = %v", st.Expanded)
	}
}

func TestOneExpandedCommentaryPerSection(t *testing.T) {
	store := NewStore()
	sess, _ := store.EnsureSession("", time.Hour)

	_ = sess.SetExpandedCommentary("Berakhot 2a:1", "Rashi on Berakhot 2a:1:1")
	_ = sess.SetExpandedCommentary("Berakhot 2a:1", "Tosafot on Berakhot 2a:1:1")
	st, _ := sess.State()
	if got := st.ExpandedCommentary["Berakhot 2a:1"]; got != "Tosafot on Berakhot 2a:1:1" {
		t.Fatalf("expected replacement, got %q", got)
	}
	if len(st.ExpandedCommentary) != 1 {
		t.Fatalf("expected one open commentary, got %v", st.ExpandedCommentary)
	}

	_ = sess.SetExpandedCommentary("Berakhot 2a:1", "")
	st, _ = sess.State()
	if len(st.ExpandedCommentary) != 0 {
		t.Fatalf("expected section closed, got %v", st.ExpandedCommentary)
	}
}

func TestStateIsACopy(t *testing.T) {
	store := NewStore()
	sess, _ := store.EnsureSession("", time.Hour)
	_ = sess.Append("Berakhot 2a")

	st, _ := sess.State()
	st.Path[0] = "mutated"
	again, _ := sess.State()
	if again.Path[0] != "Berakhot 2a" {
		t.Fatal("State must return a copy, not shared backing storage")
	}
}
