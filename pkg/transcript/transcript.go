// Package transcript holds the ordered conversation state for one call.
//
// A Transcript is a sequence of turns, each spoken by either the caller
// or the agent. At most one trailing turn may be incomplete (still
// accumulating partial caller speech or partial agent generation); all
// prior turns are immutable once marked complete. The Transcript is
// mutated only by its owning session and is not safe for concurrent use.
package transcript

import (
	"errors"

	"github.com/google/uuid"
)

// Role identifies who spoke a turn.
type Role string

const (
	// RoleCaller is the human on the phone.
	RoleCaller Role = "caller"

	// RoleAgent is the AI agent.
	RoleAgent Role = "agent"
)

// ErrTurnComplete is returned when mutating a turn that was already
// marked complete. Completeness is monotonic.
var ErrTurnComplete = errors.New("transcript: turn already complete")

// Turn is one contiguous utterance by either party.
type Turn struct {
	// ID uniquely identifies the turn within the call.
	ID string

	// Role identifies the speaker.
	Role Role

	// Content is the utterance text, possibly partial.
	Content string

	// Complete marks the turn as finished. Once set it never clears
	// and Content never changes.
	Complete bool
}

// Entry is one turn in a prompt snapshot.
type Entry struct {
	Role    Role
	Content string
}

// Transcript is the ordered turn sequence for one call.
type Transcript struct {
	turns []Turn
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{turns: make([]Turn, 0, 16)}
}

// AppendOrUpdateTurn records an utterance for the given role.
//
// If the trailing turn is incomplete and spoken by the same role, its
// content is REPLACED with text (later partial updates supersede earlier
// ones). Otherwise a new incomplete turn is appended and its ID returned.
func (t *Transcript) AppendOrUpdateTurn(role Role, text string) *Turn {
	if last := t.last(); last != nil && !last.Complete && last.Role == role {
		last.Content = text
		return last
	}
	t.turns = append(t.turns, Turn{
		ID:   uuid.NewString(),
		Role: role,
	})
	last := t.last()
	last.Content = text
	return last
}

// AppendContent appends text to the trailing incomplete turn with the
// given id. Used while streaming agent output.
func (t *Transcript) AppendContent(turnID, text string) error {
	turn := t.byID(turnID)
	if turn == nil {
		return errors.New("transcript: unknown turn")
	}
	if turn.Complete {
		return ErrTurnComplete
	}
	turn.Content += text
	return nil
}

// CompleteTurn marks the turn with the given id complete.
// Completing an already-complete turn is a no-op.
func (t *Transcript) CompleteTurn(turnID string) {
	if turn := t.byID(turnID); turn != nil {
		turn.Complete = true
	}
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Last returns a copy of the trailing turn, or false if empty.
func (t *Transcript) Last() (Turn, bool) {
	if last := t.last(); last != nil {
		return *last, true
	}
	return Turn{}, false
}

// Turns returns a copy of all turns.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// SnapshotForPrompt returns the ordered prompt context: all complete
// turns plus the trailing in-progress one, if any. When limit > 0 only
// the most recent limit turns are returned; trimming old history keeps
// upstream requests small and fast.
func (t *Transcript) SnapshotForPrompt(limit int) []Entry {
	entries := make([]Entry, 0, len(t.turns))
	for i := range t.turns {
		turn := &t.turns[i]
		if !turn.Complete && i != len(t.turns)-1 {
			// Only the trailing turn may be incomplete.
			continue
		}
		if turn.Content == "" {
			continue
		}
		entries = append(entries, Entry{Role: turn.Role, Content: turn.Content})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func (t *Transcript) last() *Turn {
	if len(t.turns) == 0 {
		return nil
	}
	return &t.turns[len(t.turns)-1]
}

func (t *Transcript) byID(id string) *Turn {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].ID == id {
			return &t.turns[i]
		}
	}
	return nil
}
