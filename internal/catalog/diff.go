package catalog

type ChangeKind uint8

const (
	ChangeNew ChangeKind = iota + 1
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one classified difference between two snapshots.
// Item is the subject: the current version for New/Updated, the removed item
// for Deleted. Prev is set only for Updated.
type Change struct {
	Kind ChangeKind
	Item Item
	Prev *Item
}

// Diff compares the baseline against the current snapshot by item identity.
//
// New and Updated entries come out in current-snapshot order, then Deleted
// entries in baseline order. Items with equal content produce nothing.
// Lookup is id-indexed, O(n+m).
//
// Callers wanting to distinguish "identical snapshots" from "empty diff"
// (a pure reordering) should check Snapshot.Equal first; Diff itself does not
// short-circuit.
func Diff(baseline, current Snapshot) []Change {
	oldIdx := make(map[string]int, len(baseline))
	for i, it := range baseline {
		oldIdx[it.ID] = i
	}

	var changes []Change
	inCurrent := make(map[string]struct{}, len(current))
	for _, it := range current {
		inCurrent[it.ID] = struct{}{}
		i, ok := oldIdx[it.ID]
		if !ok {
			changes = append(changes, Change{Kind: ChangeNew, Item: it})
			continue
		}
		old := baseline[i]
		if old.Equal(it) {
			continue
		}
		prev := old
		changes = append(changes, Change{Kind: ChangeUpdated, Item: it, Prev: &prev})
	}

	for _, it := range baseline {
		if _, ok := inCurrent[it.ID]; !ok {
			changes = append(changes, Change{Kind: ChangeDeleted, Item: it})
		}
	}
	return changes
}
