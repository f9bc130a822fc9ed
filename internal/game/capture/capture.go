package capture

import (
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

// Kind distinguishes the two tracker parameterizations.
type Kind int

const (
	KindObjective Kind = iota
	KindWin
)

func (k Kind) String() string {
	switch k {
	case KindObjective:
		return "OBJECTIVE"
	case KindWin:
		return "WIN"
	default:
		return fmt.Sprintf("KIND_%d", int(k))
	}
}

// Tracker counts how many consecutive end-of-turn evaluations one player
// has dominated a node. Once Terminal it never changes again.
type Tracker struct {
	ID            string
	Kind          Kind
	Position      board.Position
	HolderID      string
	TurnsHeld     int
	RequiredTurns int
	Terminal      bool
}

// NewTracker creates an idle tracker for the node at p.
func NewTracker(id string, kind Kind, p board.Position, requiredTurns int) *Tracker {
	return &Tracker{
		ID:            id,
		Kind:          kind,
		Position:      p,
		RequiredTurns: requiredTurns,
	}
}

// Evaluation reports what a single evaluation did.
type Evaluation struct {
	TrackerID      string
	PreviousHolder string
	Holder         string
	TurnsHeld      int
	Contested      bool
	Completed      bool
	Skipped        bool
}

// Progressed reports whether a holder exists after the evaluation.
func (e Evaluation) Progressed() bool {
	return e.Holder != "" && !e.Skipped
}

// Evaluate runs one end-of-turn step against the per-player counts of
// eligible tokens on the node.
func (t *Tracker) Evaluate(counts map[string]int, threshold int) Evaluation {
	ev := Evaluation{TrackerID: t.ID, PreviousHolder: t.HolderID}
	if t.Terminal {
		ev.Holder = t.HolderID
		ev.TurnsHeld = t.TurnsHeld
		ev.Skipped = true
		return ev
	}

	holder, ok := DominantHolder(counts, threshold)
	switch {
	case ok && holder == t.HolderID:
		t.TurnsHeld++
	case ok:
		t.HolderID = holder
		t.TurnsHeld = 1
	default:
		t.HolderID = ""
		t.TurnsHeld = 0
	}
	if t.HolderID != "" && t.TurnsHeld >= t.RequiredTurns {
		t.Terminal = true
		ev.Completed = true
	}

	ev.Holder = t.HolderID
	ev.TurnsHeld = t.TurnsHeld
	ev.Contested = isTied(counts)
	return ev
}

// DominantHolder returns the player whose count strictly exceeds every
// other player's and meets threshold. The result does not depend on map
// iteration order.
func DominantHolder(counts map[string]int, threshold int) (string, bool) {
	best, bestCount, tied := "", 0, false
	for id, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = id, n, false
		case n == bestCount && n > 0:
			tied = true
		}
	}
	if best == "" || tied || bestCount < threshold {
		return "", false
	}
	return best, true
}

func isTied(counts map[string]int) bool {
	top, seen := 0, 0
	for _, n := range counts {
		switch {
		case n > top:
			top, seen = n, 1
		case n == top && n > 0:
			seen++
		}
	}
	return seen > 1
}

// WinThreshold is the qualifying count on the win node after captured
// objectives have each lowered it by reduction. It never drops below min.
func WinThreshold(base, reduction, captured, min int) int {
	v := base - reduction*captured
	if v < min {
		return min
	}
	return v
}

// Partition counts the given token ids per owner using lookup. Ids for
// which lookup reports false are skipped.
func Partition(ids []string, lookup func(id string) (owner string, eligible bool)) map[string]int {
	counts := make(map[string]int)
	for _, id := range ids {
		owner, ok := lookup(id)
		if !ok {
			continue
		}
		counts[owner]++
	}
	return counts
}
