package notify

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"shopwatch/internal/catalog"
)

type stubRenderer struct {
	blocksPerChange int
}

func (s stubRenderer) Change(ch catalog.Change, escalate bool) []Block {
	out := make([]Block, 0, s.blocksPerChange)
	for i := 0; i < s.blocksPerChange; i++ {
		out = append(out, Block(fmt.Sprintf("%s:%s:%d", ch.Kind, ch.Item.ID, i)))
	}
	return out
}

func (s stubRenderer) Escalation(sum Summary) string {
	return fmt.Sprintf("alert: %d added, %d updated, %d removed", len(sum.Added), len(sum.Updated), len(sum.Removed))
}

func TestComposeEmptyChangeSet(t *testing.T) {
	t.Parallel()

	d, err := Compose(nil, nil, stubRenderer{blocksPerChange: 1}, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(d.Chunks) != 0 || d.Escalate || d.Alert != "" || d.Summary.Total() != 0 {
		t.Fatalf("empty change set composed %+v, want empty digest", d)
	}
}

func TestComposeEmptyRenderIsFatal(t *testing.T) {
	t.Parallel()

	changes := []catalog.Change{
		{Kind: catalog.ChangeNew, Item: catalog.Item{ID: "a", Title: "A"}},
	}
	_, err := Compose(changes, []bool{true}, stubRenderer{blocksPerChange: 0}, 0)
	if !errors.Is(err, ErrEmptyDigest) {
		t.Fatalf("err = %v, want ErrEmptyDigest", err)
	}
}

func TestComposeChunkingPreservesOrder(t *testing.T) {
	t.Parallel()

	changes := make([]catalog.Change, 7)
	for i := range changes {
		changes[i] = catalog.Change{
			Kind: catalog.ChangeNew,
			Item: catalog.Item{ID: fmt.Sprintf("i%d", i), Title: fmt.Sprintf("Item %d", i)},
		}
	}
	d, err := Compose(changes, catalog.Classify(changes), stubRenderer{blocksPerChange: 1}, 3)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(d.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(d.Chunks))
	}
	sizes := []int{3, 3, 1}
	var flat []Block
	for i, chunk := range d.Chunks {
		if len(chunk) != sizes[i] {
			t.Fatalf("chunk %d has %d blocks, want %d", i, len(chunk), sizes[i])
		}
		flat = append(flat, chunk...)
	}
	for i, b := range flat {
		want := Block(fmt.Sprintf("new:i%d:0", i))
		if b != want {
			t.Fatalf("block %d = %q, want %q", i, b, want)
		}
	}
}

func TestComposeSummaryAndAlert(t *testing.T) {
	t.Parallel()

	prev := catalog.Item{ID: "u", Title: "Mug", Price: 100}
	changes := []catalog.Change{
		{Kind: catalog.ChangeNew, Item: catalog.Item{ID: "n", Title: "Sticker"}},
		{Kind: catalog.ChangeUpdated, Item: catalog.Item{ID: "u", Title: "Mug", Price: 150}, Prev: &prev},
		{Kind: catalog.ChangeDeleted, Item: catalog.Item{ID: "d", Title: "Poster"}},
	}
	d, err := Compose(changes, catalog.Classify(changes), stubRenderer{blocksPerChange: 2}, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(d.Summary.Added) != 1 || d.Summary.Added[0] != "Sticker" {
		t.Errorf("Added = %v", d.Summary.Added)
	}
	if len(d.Summary.Updated) != 1 || d.Summary.Updated[0] != "Mug" {
		t.Errorf("Updated = %v", d.Summary.Updated)
	}
	if len(d.Summary.Removed) != 1 || d.Summary.Removed[0] != "Poster" {
		t.Errorf("Removed = %v", d.Summary.Removed)
	}
	if !d.Escalate {
		t.Error("Escalate = false, want true (new/deleted always escalate)")
	}
	if d.Alert != "alert: 1 added, 1 updated, 1 removed" {
		t.Errorf("Alert = %q", d.Alert)
	}
	if got := len(d.Chunks[0]); got != 6 {
		t.Errorf("blocks = %d, want 6", got)
	}
}

func TestComposeQuietUpdateDoesNotEscalate(t *testing.T) {
	t.Parallel()

	prev := catalog.Item{ID: "u", Title: "Mug", Price: 100}
	changes := []catalog.Change{
		{Kind: catalog.ChangeUpdated, Item: catalog.Item{ID: "u", Title: "Cup", Price: 100}, Prev: &prev},
	}
	d, err := Compose(changes, catalog.Classify(changes), stubRenderer{blocksPerChange: 1}, 0)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if d.Escalate {
		t.Error("Escalate = true for a title-only update")
	}
	if d.Alert != "" {
		t.Errorf("Alert = %q, want empty", d.Alert)
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk []Block
		want  string
	}{
		{"empty", nil, ""},
		{"single", []Block{"one"}, "one"},
		{"joined", []Block{"one", "two", "three"}, "one\n\ntwo\n\nthree"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ChunkText(tt.chunk); got != tt.want {
				t.Fatalf("ChunkText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkLaw(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 400).Draw(t, "blocks")
		limit := rapid.IntRange(1, 120).Draw(t, "limit")

		blocks := make([]Block, n)
		for i := range blocks {
			blocks[i] = Block(fmt.Sprintf("b%d", i))
		}
		chunks := chunkBlocks(blocks, limit)

		wantCount := (n + limit - 1) / limit
		if len(chunks) != wantCount {
			t.Fatalf("chunk count = %d, want ceil(%d/%d) = %d", len(chunks), n, limit, wantCount)
		}
		var flat []Block
		for i, c := range chunks {
			if len(c) == 0 || len(c) > limit {
				t.Fatalf("chunk %d has %d blocks, limit %d", i, len(c), limit)
			}
			flat = append(flat, c...)
		}
		if len(flat) != n {
			t.Fatalf("concatenated %d blocks, want %d", len(flat), n)
		}
		for i := range flat {
			if flat[i] != blocks[i] {
				t.Fatalf("block %d = %q, want %q", i, flat[i], blocks[i])
			}
		}
	})
}
