// Package render turns catalog changes into Telegram HTML digest blocks.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"shopwatch/internal/catalog"
	"shopwatch/internal/notify"
	"shopwatch/pkg/tghtml"
)

const (
	maxDescriptionRunes = 160
	maxAlertTitles      = 5
)

// Telegram renders one block per change, so a 50-block chunk carries at most
// 50 items. All item-sourced text is escaped for ParseMode="HTML".
type Telegram struct{}

func (Telegram) Change(ch catalog.Change, escalate bool) []notify.Block {
	switch ch.Kind {
	case catalog.ChangeNew:
		return []notify.Block{newBlock(ch.Item)}
	case catalog.ChangeUpdated:
		if ch.Prev == nil {
			return []notify.Block{newBlock(ch.Item)}
		}
		return []notify.Block{updatedBlock(*ch.Prev, ch.Item, escalate)}
	case catalog.ChangeDeleted:
		return []notify.Block{deletedBlock(ch.Item)}
	}
	return nil
}

func (Telegram) Escalation(sum notify.Summary) string {
	head := tghtml.Raw("🚨 ") + tghtml.B("Catalog needs review") +
		tghtml.Esc(fmt.Sprintf(": %d added, %d updated, %d removed", len(sum.Added), len(sum.Updated), len(sum.Removed)))
	lines := []tghtml.H{head}
	if len(sum.Added) > 0 {
		lines = append(lines, tghtml.Raw("Added: ")+titleList(sum.Added))
	}
	if len(sum.Updated) > 0 {
		lines = append(lines, tghtml.Raw("Updated: ")+titleList(sum.Updated))
	}
	if len(sum.Removed) > 0 {
		lines = append(lines, tghtml.Raw("Removed: ")+titleList(sum.Removed))
	}
	return tghtml.JoinH("\n", lines...).String()
}

func newBlock(it catalog.Item) notify.Block {
	lines := []tghtml.H{
		tghtml.Raw("🆕 ") + tghtml.B(it.Title) + tghtml.Raw(" · ") + tghtml.Code(formatPrice(it.Price)),
	}
	if d := strings.TrimSpace(it.Description); d != "" {
		lines = append(lines, tghtml.I(tghtml.TruncRunes(d, maxDescriptionRunes)))
	}
	if facts := itemFacts(it); facts != "" {
		lines = append(lines, facts)
	}
	if links := itemLinks(it); links != "" {
		lines = append(lines, links)
	}
	return joinLines(lines)
}

func updatedBlock(prev, cur catalog.Item, escalate bool) notify.Block {
	head := tghtml.Raw("✏️ ") + tghtml.B(cur.Title)
	if escalate {
		head += tghtml.Raw(" 🚨")
	}
	lines := append([]tghtml.H{head}, fieldChanges(prev, cur)...)
	if cur.PageURL != "" {
		lines = append(lines, tghtml.Link("view item", cur.PageURL))
	}
	return joinLines(lines)
}

func deletedBlock(it catalog.Item) notify.Block {
	lines := []tghtml.H{
		tghtml.Raw("🗑 ") + tghtml.B(it.Title) + tghtml.Raw(" · ") + tghtml.Code(formatPrice(it.Price)),
	}
	if it.Stock != nil {
		lines = append(lines, tghtml.Raw("last stock ")+tghtml.Code(strconv.FormatInt(*it.Stock, 10)))
	}
	return joinLines(lines)
}

// fieldChanges lists every attribute that differs between prev and cur, one
// line each. The classifier decides escalation; the digest still shows quiet
// changes like title churn so the channel has the full picture.
func fieldChanges(prev, cur catalog.Item) []tghtml.H {
	var lines []tghtml.H
	if prev.Title != cur.Title {
		lines = append(lines, tghtml.Raw("title: ")+tghtml.I(prev.Title)+arrow()+tghtml.I(cur.Title))
	}
	if prev.Description != cur.Description {
		lines = append(lines, tghtml.Esc("description updated"))
	}
	if prev.Price != cur.Price {
		lines = append(lines, tghtml.Raw("price: ")+tghtml.Code(formatPrice(prev.Price))+arrow()+tghtml.Code(formatPrice(cur.Price)))
	}
	if !stockEqualText(prev.Stock, cur.Stock) {
		lines = append(lines, tghtml.Raw("stock: ")+tghtml.Code(stockText(prev.Stock))+arrow()+tghtml.Code(stockText(cur.Stock)))
	}
	if prev.ImageURL != cur.ImageURL {
		if cur.ImageURL != "" {
			lines = append(lines, tghtml.Raw("image: ")+tghtml.Link("updated", cur.ImageURL))
		} else {
			lines = append(lines, tghtml.Esc("image removed"))
		}
	}
	if prev.PageURL != cur.PageURL {
		lines = append(lines, tghtml.Esc("page moved"))
	}
	if va, vb := len(prev.Variants), len(cur.Variants); va != vb {
		lines = append(lines, tghtml.Esc(fmt.Sprintf("variants: %d → %d", va, vb)))
	} else if !variantNamesPricesEqual(prev.Variants, cur.Variants) {
		lines = append(lines, tghtml.Esc("variants changed"))
	}
	return lines
}

func variantNamesPricesEqual(a, b []catalog.Variant) bool {
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func itemFacts(it catalog.Item) tghtml.H {
	var parts []tghtml.H
	if it.Stock != nil {
		parts = append(parts, tghtml.Raw("stock ")+tghtml.Code(strconv.FormatInt(*it.Stock, 10)))
	}
	if n := len(it.Variants); n > 0 {
		parts = append(parts, tghtml.Esc(fmt.Sprintf("%d variants", n)))
	}
	return tghtml.JoinH(" · ", parts...)
}

func itemLinks(it catalog.Item) tghtml.H {
	var parts []tghtml.H
	if it.PageURL != "" {
		parts = append(parts, tghtml.Link("view item", it.PageURL))
	}
	if it.ImageURL != "" {
		parts = append(parts, tghtml.Link("image", it.ImageURL))
	}
	return tghtml.JoinH(" · ", parts...)
}

func titleList(titles []string) tghtml.H {
	shown := titles
	extra := 0
	if len(shown) > maxAlertTitles {
		extra = len(shown) - maxAlertTitles
		shown = shown[:maxAlertTitles]
	}
	parts := make([]tghtml.H, 0, len(shown))
	for _, t := range shown {
		parts = append(parts, tghtml.Esc(t))
	}
	out := tghtml.JoinH(", ", parts...)
	if extra > 0 {
		out += tghtml.Esc(fmt.Sprintf(" (+%d more)", extra))
	}
	return out
}

func joinLines(lines []tghtml.H) notify.Block {
	return notify.Block(tghtml.JoinH("\n", lines...).String())
}

func arrow() tghtml.H { return tghtml.Raw(" → ") }

func formatPrice(p int64) string {
	return fmt.Sprintf("%d.%02d", p/100, p%100)
}

func stockText(s *int64) string {
	if s == nil {
		return "n/a"
	}
	return strconv.FormatInt(*s, 10)
}

// stockEqualText compares for display purposes only; the tolerance logic in
// the classifier is deliberately not applied here.
func stockEqualText(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
