package catalog

type attrClass int

const (
	// attrIgnored attributes never trigger an escalation on their own.
	attrIgnored attrClass = iota
	// attrStrict attributes escalate on any structural difference.
	attrStrict
	// attrStockTolerant attributes compare numerically with a noise tolerance.
	attrStockTolerant
)

// stockTolerance is the absolute stock drift treated as noise: a change of
// exactly 1 is silenced, anything larger escalates.
const stockTolerance = 1

type attrRule struct {
	name  string
	class attrClass
	equal func(old, cur Item) bool
}

// itemAttrs is the declared attribute list of the Item schema. It drives both
// Item.Equal (all attributes) and Important (non-ignored attributes), so the
// two can never drift apart.
var itemAttrs = []attrRule{
	{name: "title", class: attrIgnored, equal: func(o, c Item) bool { return o.Title == c.Title }},
	{name: "description", class: attrIgnored, equal: func(o, c Item) bool { return o.Description == c.Description }},
	{name: "price", class: attrStrict, equal: func(o, c Item) bool { return o.Price == c.Price }},
	{name: "stock", class: attrStockTolerant, equal: func(o, c Item) bool { return stockEqual(o.Stock, c.Stock) }},
	{name: "image_url", class: attrStrict, equal: func(o, c Item) bool { return o.ImageURL == c.ImageURL }},
	{name: "page_url", class: attrStrict, equal: func(o, c Item) bool { return o.PageURL == c.PageURL }},
	{name: "variants", class: attrStrict, equal: func(o, c Item) bool { return variantsEqual(o.Variants, c.Variants) }},
}

// Important reports whether an update from old to cur warrants an alert.
// Title and description churn is silenced, stock may drift by stockTolerance,
// any other attribute difference counts.
func Important(old, cur Item) bool {
	for _, a := range itemAttrs {
		switch a.class {
		case attrIgnored:
			continue
		case attrStockTolerant:
			if !stockWithin(old.Stock, cur.Stock, stockTolerance) {
				return true
			}
		default:
			if !a.equal(old, cur) {
				return true
			}
		}
	}
	return false
}

// stockWithin tolerates a bounded numeric drift. A transition between tracked
// and untracked stock is never tolerated.
func stockWithin(a, b *int64, tol int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	d := *a - *b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// Escalates reports whether a single change triggers the group alert.
// New and Deleted always do; Updated depends on Important.
func Escalates(ch Change) bool {
	switch ch.Kind {
	case ChangeNew, ChangeDeleted:
		return true
	case ChangeUpdated:
		if ch.Prev == nil {
			return true
		}
		return Important(*ch.Prev, ch.Item)
	default:
		return false
	}
}

// Classify returns the per-change escalation decisions, index-aligned with
// changes. Classification is side-effect-free; fold with EscalateAny.
func Classify(changes []Change) []bool {
	if len(changes) == 0 {
		return nil
	}
	flags := make([]bool, len(changes))
	for i, ch := range changes {
		flags[i] = Escalates(ch)
	}
	return flags
}

// EscalateAny ORs per-change classifications into the run-level decision.
func EscalateAny(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}
