// Package transition decides whether a paired activity record may follow the
// record that precedes it on a dependent's timeline.
//
// The machine has three observable states: no prior record, Start and End.
// Validity is computed per decision from two inputs; nothing is stored.
package transition

import "cradle/internal/family/models"

// IsValid reports whether current is a legal successor of previous.
// previous is nil when the dependent has no earlier record of that kind.
//
//	previous  current  result
//	-         -        false
//	-         Start    true
//	-         End      false
//	End       Start    true
//	Start     End      true
//	Start     Start    false
//	End       End      false
func IsValid(previous, current *models.ActivityRecord) bool {
	if current == nil {
		return false
	}
	if previous == nil {
		return current.Phase == models.PhaseStart
	}
	switch previous.Phase {
	case models.PhaseEnd:
		return current.Phase == models.PhaseStart
	case models.PhaseStart:
		return current.Phase == models.PhaseEnd
	}
	return false
}

// Key identifies one alternating timeline.
type Key struct {
	DependentID string
	Kind        models.ActivityKind
}

func KeyOf(a *models.ActivityRecord) Key {
	return Key{DependentID: a.DependentID, Kind: a.Kind}
}

func (k Key) String() string {
	return k.DependentID + "/" + string(k.Kind)
}
