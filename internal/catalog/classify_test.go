package catalog

import "testing"

func TestImportantStockTolerance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		old  *int64
		cur  *int64
		want bool
	}{
		{name: "unchanged", old: stockOf(5), cur: stockOf(5), want: false},
		{name: "drift of one down", old: stockOf(5), cur: stockOf(4), want: false},
		{name: "drift of one up", old: stockOf(5), cur: stockOf(6), want: false},
		{name: "drift of two", old: stockOf(5), cur: stockOf(3), want: true},
		{name: "sold out from two", old: stockOf(2), cur: stockOf(0), want: true},
		{name: "tracked to untracked", old: stockOf(5), cur: nil, want: true},
		{name: "untracked to tracked", old: nil, cur: stockOf(5), want: true},
		{name: "both untracked", old: nil, cur: nil, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			old := Item{ID: "1", Title: "Sticker", Price: 500, Stock: tt.old}
			cur := Item{ID: "1", Title: "Sticker", Price: 500, Stock: tt.cur}
			if got := Important(old, cur); got != tt.want {
				t.Fatalf("Important = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImportantIgnoredAttributes(t *testing.T) {
	t.Parallel()
	old := Item{ID: "1", Title: "Sticker", Description: "old text", Price: 500}

	cur := old
	cur.Title = "Sticker (renamed)"
	if Important(old, cur) {
		t.Fatal("title-only change classified important")
	}

	cur = old
	cur.Description = "new text"
	if Important(old, cur) {
		t.Fatal("description-only change classified important")
	}

	// The same changes still break structural equality.
	cur = old
	cur.Title = "Sticker (renamed)"
	if old.Equal(cur) {
		t.Fatal("title change did not break Equal")
	}
}

func TestImportantStrictAttributes(t *testing.T) {
	t.Parallel()
	base := Item{
		ID:       "1",
		Title:    "Sticker",
		Price:    500,
		Stock:    stockOf(5),
		ImageURL: "https://img/1.png",
		PageURL:  "https://shop/1",
		Variants: []Variant{{Name: "S", Price: 500}},
	}

	tests := []struct {
		name   string
		mutate func(*Item)
	}{
		{name: "price", mutate: func(it *Item) { it.Price = 600 }},
		{name: "image url", mutate: func(it *Item) { it.ImageURL = "https://img/1-v2.png" }},
		{name: "page url", mutate: func(it *Item) { it.PageURL = "https://shop/1-moved" }},
		{name: "variant added", mutate: func(it *Item) { it.Variants = append(it.Variants, Variant{Name: "M", Price: 550}) }},
		{name: "variant price", mutate: func(it *Item) { it.Variants = []Variant{{Name: "S", Price: 520}} }},
		{name: "variant stock by one", mutate: func(it *Item) { it.Variants = []Variant{{Name: "S", Price: 500, Stock: stockOf(1)}} }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cur := base
			cur.Variants = append([]Variant(nil), base.Variants...)
			tt.mutate(&cur)
			if !Important(base, cur) {
				t.Fatalf("%s change not classified important", tt.name)
			}
		})
	}
}

func TestEscalates(t *testing.T) {
	t.Parallel()
	item := Item{ID: "1", Title: "Sticker", Stock: stockOf(5)}

	if !Escalates(Change{Kind: ChangeNew, Item: item}) {
		t.Fatal("new item did not escalate")
	}
	if !Escalates(Change{Kind: ChangeDeleted, Item: item}) {
		t.Fatal("deleted item did not escalate")
	}

	prev := item
	cur := item
	cur.Stock = stockOf(4)
	if Escalates(Change{Kind: ChangeUpdated, Item: cur, Prev: &prev}) {
		t.Fatal("tolerated stock drift escalated")
	}
	cur.Stock = stockOf(3)
	if !Escalates(Change{Kind: ChangeUpdated, Item: cur, Prev: &prev}) {
		t.Fatal("stock change of two did not escalate")
	}
}

func TestClassifyFold(t *testing.T) {
	t.Parallel()
	prev := Item{ID: "1", Title: "Sticker", Stock: stockOf(5)}
	quiet := prev
	quiet.Stock = stockOf(4)
	loud := prev
	loud.Price = 999

	changes := []Change{
		{Kind: ChangeUpdated, Item: quiet, Prev: &prev},
		{Kind: ChangeUpdated, Item: loud, Prev: &prev},
	}
	flags := Classify(changes)
	if len(flags) != 2 {
		t.Fatalf("Classify returned %d flags, want 2", len(flags))
	}
	if flags[0] || !flags[1] {
		t.Fatalf("unexpected flags: %v", flags)
	}
	if !EscalateAny(flags) {
		t.Fatal("EscalateAny = false with one important change")
	}
	if EscalateAny([]bool{false, false}) {
		t.Fatal("EscalateAny = true with no important changes")
	}
	if EscalateAny(nil) {
		t.Fatal("EscalateAny = true for empty input")
	}
}
