package transcript

import (
	"errors"
	"testing"
)

func TestAppendOrUpdateReplacesPartialTurn(t *testing.T) {
	tr := New()

	first := tr.AppendOrUpdateTurn(RoleCaller, "What are")
	second := tr.AppendOrUpdateTurn(RoleCaller, "What are your hours?")

	if first.ID != second.ID {
		t.Errorf("Expected partial update to reuse turn, got %s and %s", first.ID, second.ID)
	}
	if tr.Len() != 1 {
		t.Errorf("Expected 1 turn, got %d", tr.Len())
	}
	last, _ := tr.Last()
	if last.Content != "What are your hours?" {
		t.Errorf("Expected replaced content, got %q", last.Content)
	}
}

func TestAppendOrUpdateStartsNewTurnAfterComplete(t *testing.T) {
	tr := New()

	first := tr.AppendOrUpdateTurn(RoleCaller, "Hello")
	tr.CompleteTurn(first.ID)
	second := tr.AppendOrUpdateTurn(RoleCaller, "Are you there?")

	if first.ID == second.ID {
		t.Error("Expected a new turn after the previous one completed")
	}
	if tr.Len() != 2 {
		t.Errorf("Expected 2 turns, got %d", tr.Len())
	}
}

func TestAppendOrUpdateDifferentRoleStartsNewTurn(t *testing.T) {
	tr := New()

	caller := tr.AppendOrUpdateTurn(RoleCaller, "Hi")
	agent := tr.AppendOrUpdateTurn(RoleAgent, "Hello!")

	if caller.ID == agent.ID {
		t.Error("Expected agent speech to open a new turn")
	}
}

func TestAppendContent(t *testing.T) {
	tr := New()
	turn := tr.AppendOrUpdateTurn(RoleAgent, "")

	if err := tr.AppendContent(turn.ID, "We open "); err != nil {
		t.Fatalf("AppendContent failed: %v", err)
	}
	if err := tr.AppendContent(turn.ID, "at nine."); err != nil {
		t.Fatalf("AppendContent failed: %v", err)
	}

	last, _ := tr.Last()
	if last.Content != "We open at nine." {
		t.Errorf("Unexpected content: %q", last.Content)
	}
}

func TestAppendContentAfterCompleteFails(t *testing.T) {
	tr := New()
	turn := tr.AppendOrUpdateTurn(RoleAgent, "done")
	tr.CompleteTurn(turn.ID)

	err := tr.AppendContent(turn.ID, "more")
	if !errors.Is(err, ErrTurnComplete) {
		t.Errorf("Expected ErrTurnComplete, got %v", err)
	}
	last, _ := tr.Last()
	if last.Content != "done" {
		t.Errorf("Complete turn content changed: %q", last.Content)
	}
}

func TestCompleteTurnIdempotent(t *testing.T) {
	tr := New()
	turn := tr.AppendOrUpdateTurn(RoleCaller, "hi")

	tr.CompleteTurn(turn.ID)
	tr.CompleteTurn(turn.ID)

	last, _ := tr.Last()
	if !last.Complete {
		t.Error("Expected turn to be complete")
	}
}

func TestSnapshotForPrompt(t *testing.T) {
	tr := New()
	a := tr.AppendOrUpdateTurn(RoleCaller, "one")
	tr.CompleteTurn(a.ID)
	b := tr.AppendOrUpdateTurn(RoleAgent, "two")
	tr.CompleteTurn(b.ID)
	tr.AppendOrUpdateTurn(RoleCaller, "three in progress")

	entries := tr.SnapshotForPrompt(0)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[2].Content != "three in progress" {
		t.Errorf("Expected trailing partial turn last, got %q", entries[2].Content)
	}
}

func TestSnapshotForPromptSkipsEmptyTurns(t *testing.T) {
	tr := New()
	a := tr.AppendOrUpdateTurn(RoleCaller, "hello")
	tr.CompleteTurn(a.ID)
	tr.AppendOrUpdateTurn(RoleAgent, "")

	entries := tr.SnapshotForPrompt(0)
	if len(entries) != 1 {
		t.Fatalf("Expected empty turn skipped, got %d entries", len(entries))
	}
}

func TestSnapshotForPromptTruncates(t *testing.T) {
	tr := New()
	contents := []string{"a", "b", "c", "d", "e"}
	for i, c := range contents {
		role := RoleCaller
		if i%2 == 1 {
			role = RoleAgent
		}
		turn := tr.AppendOrUpdateTurn(role, c)
		tr.CompleteTurn(turn.ID)
	}

	entries := tr.SnapshotForPrompt(2)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "d" || entries[1].Content != "e" {
		t.Errorf("Expected most recent turns, got %q %q", entries[0].Content, entries[1].Content)
	}
}
