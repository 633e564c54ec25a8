package chat

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := NewSession("welcome")
	if s.ID == "" {
		t.Fatalf("expected session id")
	}
	if s.Len() != 1 || s.History()[0].Role != RoleAI {
		t.Fatalf("expected greeting turn, got %+v", s.History())
	}
	s.Append(RoleHuman, "hi")
	s.Append(RoleHuman, "hi")
	if s.Len() != 3 {
		t.Fatalf("duplicate turns must be kept, got %d", s.Len())
	}
	h := s.History()
	h[0].Content = "mutated"
	if s.History()[0].Content != "welcome" {
		t.Fatalf("History must return a copy")
	}
	s.ReplaceLast("edited")
	if got := s.History()[2].Content; got != "edited" {
		t.Fatalf("ReplaceLast: got %q", got)
	}
	s.Reset("again")
	if s.Len() != 1 || s.History()[0].Content != "again" {
		t.Fatalf("Reset: got %+v", s.History())
	}
}

func TestReplaceLastOnEmptySession(t *testing.T) {
	s := NewSession("")
	s.ReplaceLast("x")
	if s.Len() != 0 {
		t.Fatalf("expected empty session")
	}
}
