package baseline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"shopwatch/internal/catalog"
)

func stockOf(n int64) *int64 { return &n }

func TestLoadAbsentFile(t *testing.T) {
	t.Parallel()
	st, err := NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	snap, ok, err := st.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if ok {
		t.Fatal("ok = true for absent file")
	}
	if snap != nil {
		t.Fatalf("snapshot = %v, want nil", snap)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()
	st, err := NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	snap := catalog.Snapshot{
		{ID: "1", Title: "Sticker", Price: 500, Stock: stockOf(5), ImageURL: "https://img/1.png"},
		{ID: "2", Title: "Mug", Price: 1200, Variants: []catalog.Variant{{Name: "S", Price: 1200}}},
	}
	if err := st.Save(snap); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, ok, err := st.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !ok {
		t.Fatal("ok = false after Save")
	}
	if !got.Equal(snap) {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", got, snap)
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "baseline.json")
	st, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}

	snap := catalog.Snapshot{{ID: "1", Title: "Sticker", Price: 500, Stock: stockOf(3)}}
	if err := st.Save(snap); err != nil {
		t.Fatalf("first Save error: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	if err := st.Save(snap); err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("rewrite changed bytes:\n first %q\nsecond %q", first, second)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := NewStore(filepath.Join(dir, "baseline.json"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	if err := st.Save(catalog.Snapshot{{ID: "1", Title: "A"}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "baseline.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}

func TestLoadRejectsMalformedContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not json at all"},
		{name: "unknown field", body: `{"version":1,"items":[],"extra":true}`},
		{name: "unsupported version", body: `{"version":99,"items":[]}`},
		{name: "trailing content", body: `{"version":1,"items":[]}{"again":true}`},
		{name: "duplicate ids", body: `{"version":1,"items":[{"id":"1","title":"A","price":0},{"id":"1","title":"B","price":0}]}`},
		{name: "empty id", body: `{"version":1,"items":[{"id":"","title":"A","price":0}]}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "baseline.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write error: %v", err)
			}
			st, err := NewStore(path)
			if err != nil {
				t.Fatalf("NewStore error: %v", err)
			}
			if _, _, err := st.Load(); err == nil {
				t.Fatal("Load accepted malformed content")
			}
		})
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := NewStore("   "); err == nil {
		t.Fatal("NewStore accepted blank path")
	}
}
