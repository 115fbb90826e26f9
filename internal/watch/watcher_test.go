package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shopwatch/internal/baseline"
	"shopwatch/internal/catalog"
	"shopwatch/internal/notify"
	"shopwatch/internal/retry"
	logx "shopwatch/pkg/logx"
)

type fakeFetcher struct {
	snaps []catalog.Snapshot
	errs  []error
	calls int
}

func (f *fakeFetcher) FetchCatalog(context.Context) (catalog.Snapshot, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	// Fresh copy per fetch; the relocator mutates items in place.
	snap := make(catalog.Snapshot, len(f.snaps[i]))
	copy(snap, f.snaps[i])
	return snap, nil
}

type fakeDeliverer struct {
	digests []*notify.Digest
	err     error
}

func (d *fakeDeliverer) Deliver(_ context.Context, dg *notify.Digest) error {
	d.digests = append(d.digests, dg)
	return d.err
}

// listRenderer emits one block per change, "kind:id".
type listRenderer struct{}

func (listRenderer) Change(ch catalog.Change, _ bool) []notify.Block {
	return []notify.Block{notify.Block(ch.Kind.String() + ":" + ch.Item.ID)}
}

func (listRenderer) Escalation(sum notify.Summary) string {
	return fmt.Sprintf("alert %d", sum.Total())
}

type emptyRenderer struct{}

func (emptyRenderer) Change(catalog.Change, bool) []notify.Block { return nil }
func (emptyRenderer) Escalation(notify.Summary) string          { return "" }

func intp(v int64) *int64 { return &v }

func testStore(t *testing.T) *baseline.Store {
	t.Helper()
	st, err := baseline.NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func testWatcher(t *testing.T, deps Deps) *Watcher {
	t.Helper()
	if deps.Renderer == nil {
		deps.Renderer = listRenderer{}
	}
	w, err := New(Config{Retry: retry.Policy{Attempts: 1, Delay: time.Millisecond}}, deps, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestBootstrapFirstRun(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1", Title: "Sticker", Stock: intp(5)}}}},
		Baseline:  st,
		Deliverer: del,
	})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(del.digests) != 0 {
		t.Fatalf("first run delivered %d digests, want 0", len(del.digests))
	}
	snap, ok, err := st.Load()
	if err != nil || !ok {
		t.Fatalf("Load after bootstrap: ok=%v err=%v", ok, err)
	}
	if len(snap) != 1 || snap[0].ID != "1" {
		t.Fatalf("bootstrapped baseline = %+v", snap)
	}
}

func TestUnchangedCatalogIsIdempotent(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	snap := catalog.Snapshot{{ID: "2", Title: "Mug", Stock: intp(10)}}
	if err := st.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{snap}},
		Baseline:  st,
		Deliverer: del,
	})
	for i := 0; i < 2; i++ {
		if err := w.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if len(del.digests) != 0 {
		t.Fatalf("unchanged catalog delivered %d digests, want 0", len(del.digests))
	}
	after, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("baseline bytes changed across no-op runs:\n%s\nvs\n%s", before, after)
	}
}

func TestStockDropEscalates(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{{ID: "1", Title: "Sticker", Stock: intp(5)}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1", Title: "Sticker", Stock: intp(3)}}}},
		Baseline:  st,
		Deliverer: del,
	})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(del.digests) != 1 {
		t.Fatalf("delivered %d digests, want 1", len(del.digests))
	}
	dg := del.digests[0]
	if len(dg.Chunks) != 1 || len(dg.Chunks[0]) != 1 || dg.Chunks[0][0] != "updated:1" {
		t.Fatalf("chunks = %+v", dg.Chunks)
	}
	if !dg.Escalate {
		t.Fatal("|5-3| = 2 should escalate")
	}

	// Baseline now holds the new stock.
	snap, _, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *snap[0].Stock != 3 {
		t.Fatalf("persisted stock = %d, want 3", *snap[0].Stock)
	}
}

func TestAddAndRemoveOrdering(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{
		{ID: "1", Title: "Sticker"},
		{ID: "2", Title: "Mug"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher: &fakeFetcher{snaps: []catalog.Snapshot{{
			{ID: "2", Title: "Mug"},
			{ID: "3", Title: "Poster"},
		}}},
		Baseline:  st,
		Deliverer: del,
	})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(del.digests) != 1 {
		t.Fatalf("delivered %d digests, want 1", len(del.digests))
	}
	dg := del.digests[0]
	want := []notify.Block{"new:3", "deleted:1"}
	if len(dg.Chunks) != 1 || len(dg.Chunks[0]) != 2 {
		t.Fatalf("chunks = %+v", dg.Chunks)
	}
	for i, b := range want {
		if dg.Chunks[0][i] != b {
			t.Fatalf("block %d = %q, want %q", i, dg.Chunks[0][i], b)
		}
	}
	if !dg.Escalate {
		t.Fatal("new/deleted entries must force escalation")
	}
}

func TestReorderedCatalogSendsNothing(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{
		{ID: "1", Title: "Sticker"},
		{ID: "2", Title: "Mug"},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher: &fakeFetcher{snaps: []catalog.Snapshot{{
			{ID: "2", Title: "Mug"},
			{ID: "1", Title: "Sticker"},
		}}},
		Baseline:  st,
		Deliverer: del,
	})

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(del.digests) != 0 {
		t.Fatalf("reordering delivered %d digests, want 0", len(del.digests))
	}
	// Baseline is rewritten in the new order.
	snap, _, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap[0].ID != "2" || snap[1].ID != "1" {
		t.Fatalf("baseline order = %s,%s; want 2,1", snap[0].ID, snap[1].ID)
	}
}

func TestDeliveryFailureSkipsPersist(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{{ID: "1", Title: "Sticker", Price: 100}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	del := &fakeDeliverer{err: errors.New("telegram down")}
	w := testWatcher(t, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1", Title: "Sticker", Price: 200}}}},
		Baseline:  st,
		Deliverer: del,
	})

	err := w.Run(context.Background())
	if err == nil {
		t.Fatal("Run should fail when delivery fails")
	}
	if got := err.Error(); got != "delivering: telegram down" {
		t.Fatalf("error = %q", got)
	}
	// Baseline keeps the old price, so the next run re-diffs the change.
	snap, _, lerr := st.Load()
	if lerr != nil {
		t.Fatalf("Load: %v", lerr)
	}
	if snap[0].Price != 100 {
		t.Fatalf("persisted price = %d, want old 100", snap[0].Price)
	}
}

func TestEmptyRenderIsFatal(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{{ID: "1", Price: 1}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	del := &fakeDeliverer{}
	w := testWatcher(t, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1", Price: 2}}}},
		Baseline:  st,
		Deliverer: del,
		Renderer:  emptyRenderer{},
	})

	err := w.Run(context.Background())
	if !errors.Is(err, notify.ErrEmptyDigest) {
		t.Fatalf("err = %v, want ErrEmptyDigest", err)
	}
	if len(del.digests) != 0 {
		t.Fatal("nothing must be delivered after an invariant violation")
	}
}

func TestFetchRetriesThenFails(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	boom := errors.New("boom")
	f := &fakeFetcher{errs: []error{boom, boom, boom}}
	w, err := New(Config{Retry: retry.Policy{Attempts: 3, Delay: time.Millisecond}}, Deps{
		Fetcher:   f,
		Baseline:  st,
		Renderer:  listRenderer{},
		Deliverer: &fakeDeliverer{},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rerr := w.Run(context.Background())
	if !errors.Is(rerr, boom) {
		t.Fatalf("err = %v, want wrapped boom", rerr)
	}
	if f.calls != 3 {
		t.Fatalf("fetch attempts = %d, want 3", f.calls)
	}
}

func TestMalformedBaselineIsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := baseline.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	f := &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1"}}}}
	w := testWatcher(t, Deps{Fetcher: f, Baseline: st, Deliverer: &fakeDeliverer{}})

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("malformed baseline must fail the run")
	}
	if f.calls != 0 {
		t.Fatal("baseline must be probed before any network work")
	}
}

func TestAuditWrittenBeforeDelivery(t *testing.T) {
	t.Parallel()

	st := testStore(t)
	if err := st.Save(catalog.Snapshot{{ID: "1", Price: 1}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	del := &fakeDeliverer{err: errors.New("down")}
	w, err := New(Config{
		AuditPath: auditPath,
		Retry:     retry.Policy{Attempts: 1, Delay: time.Millisecond},
	}, Deps{
		Fetcher:   &fakeFetcher{snaps: []catalog.Snapshot{{{ID: "1", Price: 2}}}},
		Baseline:  st,
		Renderer:  listRenderer{},
		Deliverer: del,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run should fail")
	}
	// The audit record exists even though delivery failed.
	b, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("audit file missing: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("audit file is empty")
	}
}
