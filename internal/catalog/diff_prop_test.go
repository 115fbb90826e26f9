package catalog

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func drawItem(rt *rapid.T, id string) Item {
	it := Item{
		ID:    id,
		Title: rapid.StringMatching(`[A-Za-z ]{1,12}`).Draw(rt, "title"),
		Price: rapid.Int64Range(0, 10000).Draw(rt, "price"),
	}
	if rapid.Bool().Draw(rt, "has_stock") {
		s := rapid.Int64Range(0, 50).Draw(rt, "stock")
		it.Stock = &s
	}
	if rapid.Bool().Draw(rt, "has_image") {
		it.ImageURL = "https://img.example/" + id + ".png"
	}
	return it
}

func TestDiffLaws(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		baseIDs := rapid.SliceOfDistinct(rapid.IntRange(0, 25), rapid.ID[int]).Draw(rt, "base_ids")
		baseline := make(Snapshot, 0, len(baseIDs))
		for _, n := range baseIDs {
			baseline = append(baseline, drawItem(rt, fmt.Sprintf("itm-%d", n)))
		}

		// Derive the current snapshot: drop some items, keep some unchanged,
		// mutate the rest, then append fresh ids.
		var current Snapshot
		unchanged := map[string]struct{}{}
		for _, it := range baseline {
			switch rapid.IntRange(0, 2).Draw(rt, "fate") {
			case 0:
				// dropped
			case 1:
				current = append(current, it)
				unchanged[it.ID] = struct{}{}
			default:
				m := it
				m.Price = it.Price + 1 + rapid.Int64Range(0, 100).Draw(rt, "bump")
				current = append(current, m)
			}
		}
		for _, n := range rapid.SliceOfDistinct(rapid.IntRange(100, 130), rapid.ID[int]).Draw(rt, "fresh_ids") {
			current = append(current, drawItem(rt, fmt.Sprintf("itm-%d", n)))
		}

		if got := Diff(baseline, baseline); len(got) != 0 {
			rt.Fatalf("self-diff of baseline produced %d changes", len(got))
		}
		if got := Diff(current, current); len(got) != 0 {
			rt.Fatalf("self-diff of current produced %d changes", len(got))
		}

		baseSet := map[string]struct{}{}
		for _, it := range baseline {
			baseSet[it.ID] = struct{}{}
		}
		curSet := map[string]struct{}{}
		for _, it := range current {
			curSet[it.ID] = struct{}{}
		}

		changes := Diff(baseline, current)
		kinds := map[string]ChangeKind{}
		for _, ch := range changes {
			if _, dup := kinds[ch.Item.ID]; dup {
				rt.Fatalf("id %q produced more than one change", ch.Item.ID)
			}
			kinds[ch.Item.ID] = ch.Kind

			switch ch.Kind {
			case ChangeNew:
				if _, ok := baseSet[ch.Item.ID]; ok {
					rt.Fatalf("New for id %q present in baseline", ch.Item.ID)
				}
			case ChangeDeleted:
				if _, ok := curSet[ch.Item.ID]; ok {
					rt.Fatalf("Deleted for id %q present in current", ch.Item.ID)
				}
			case ChangeUpdated:
				if ch.Prev == nil {
					rt.Fatalf("Updated for id %q lacks Prev", ch.Item.ID)
				}
				if ch.Prev.Equal(ch.Item) {
					rt.Fatalf("Updated for id %q with equal content", ch.Item.ID)
				}
			}
		}

		for id := range curSet {
			if _, ok := baseSet[id]; !ok {
				if k := kinds[id]; k != ChangeNew {
					rt.Fatalf("id %q only in current: kind = %s, want new", id, k)
				}
			}
		}
		for id := range baseSet {
			if _, ok := curSet[id]; !ok {
				if k := kinds[id]; k != ChangeDeleted {
					rt.Fatalf("id %q only in baseline: kind = %s, want deleted", id, k)
				}
			}
		}
		for id := range unchanged {
			if k, ok := kinds[id]; ok {
				rt.Fatalf("unchanged id %q produced a %s change", id, k)
			}
		}
	})
}
