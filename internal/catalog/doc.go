// Package catalog holds the item data model and the change-detection core:
// structural equality, the snapshot diff and the importance classification
// that decides whether a change escalates to the responsible group.
package catalog
