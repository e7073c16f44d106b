// Package ordering computes and applies sibling order values for tasks,
// columns and spaces.
package ordering

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies an ordered collection and the parent that scopes it.
type Kind string

const (
	KindTask   Kind = "task"
	KindColumn Kind = "column"
	KindSpace  Kind = "space"
)

// Reparentable reports whether items of this kind may change parent. Columns
// and spaces stay with their parent for life; for them the parent id of an
// update only scopes the row.
func (k Kind) Reparentable() bool {
	return k == KindTask
}

func (k Kind) Valid() bool {
	switch k {
	case KindTask, KindColumn, KindSpace:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound        = errors.New("ordering: item not found")
	ErrParentMismatch  = errors.New("ordering: item is not in the source parent")
	ErrInvalidOrder    = errors.New("ordering: order must be a non-negative integer")
	ErrEmptyBatch      = errors.New("ordering: batch is empty")
	ErrInvalidBatch    = errors.New("ordering: invalid batch")
	ErrNotReparentable = errors.New("ordering: items of this kind cannot change parent")
)

// Item is a row of an ordered collection as currently stored.
type Item struct {
	ID       string
	ParentID string
	Order    int
}

// Update is a single row assignment written by an apply step.
type Update struct {
	ID       string
	ParentID string
	Order    int
}

// Plan is the outcome of PlanMove: the rows to write and the moved item's
// resulting state.
type Plan struct {
	Updates []Update
	Moved   Item
}

// PlanMove computes the writes for moving item to index requested of
// destParentID. destSiblings holds the destination collection as currently
// stored; for a same-parent move it includes item itself.
//
// Within one parent the move is a swap with the sibling occupying the
// requested index; a collection holding duplicate orders is renumbered
// 0..n-1 instead. Across parents the item takes order=requested and every
// destination sibling at or above it shifts up by one; the source collection
// is left as is.
func PlanMove(kind Kind, item Item, destSiblings []Item, destParentID string, requested int) (Plan, error) {
	if requested < 0 {
		return Plan{}, ErrInvalidOrder
	}
	if item.ParentID == destParentID {
		return planReposition(item, destSiblings, requested), nil
	}
	if !kind.Reparentable() {
		return Plan{}, ErrNotReparentable
	}

	updates := make([]Update, 0, len(destSiblings)+1)
	for _, sibling := range sortItems(destSiblings) {
		if sibling.ID == item.ID || sibling.Order < requested {
			continue
		}
		updates = append(updates, Update{ID: sibling.ID, ParentID: destParentID, Order: sibling.Order + 1})
	}
	updates = append(updates, Update{ID: item.ID, ParentID: destParentID, Order: requested})

	return Plan{
		Updates: updates,
		Moved:   Item{ID: item.ID, ParentID: destParentID, Order: requested},
	}, nil
}

func planReposition(item Item, siblings []Item, requested int) Plan {
	sorted := sortItems(siblings)
	if len(sorted) == 0 {
		return Plan{Moved: item}
	}
	if len(Duplicates(sorted)) > 0 {
		return planRenumber(item, sorted, requested)
	}
	index := requested
	if index > len(sorted)-1 {
		index = len(sorted) - 1
	}
	displaced := sorted[index]
	if displaced.ID == item.ID {
		return Plan{Moved: item}
	}

	// Use the stored value, the argument may be stale.
	for _, sibling := range sorted {
		if sibling.ID == item.ID {
			item = sibling
			break
		}
	}

	return Plan{
		Updates: []Update{
			{ID: item.ID, ParentID: item.ParentID, Order: displaced.Order},
			{ID: displaced.ID, ParentID: item.ParentID, Order: item.Order},
		},
		Moved: Item{ID: item.ID, ParentID: item.ParentID, Order: displaced.Order},
	}
}

// planRenumber places item at index requested and numbers the whole
// collection 0..n-1. A swap cannot separate siblings that already share an
// order value, which concurrent appends can leave behind.
func planRenumber(item Item, sorted []Item, requested int) Plan {
	rest := make([]Item, 0, len(sorted))
	for _, sibling := range sorted {
		if sibling.ID != item.ID {
			rest = append(rest, sibling)
		}
	}
	index := requested
	if index > len(rest) {
		index = len(rest)
	}
	placed := make([]Item, 0, len(rest)+1)
	placed = append(placed, rest[:index]...)
	placed = append(placed, Item{ID: item.ID, ParentID: item.ParentID})
	placed = append(placed, rest[index:]...)

	plan := Plan{Moved: Item{ID: item.ID, ParentID: item.ParentID, Order: index}}
	current := make(map[string]int, len(sorted))
	for _, sibling := range sorted {
		current[sibling.ID] = sibling.Order
	}
	for i, sibling := range placed {
		if order, ok := current[sibling.ID]; ok && order == i {
			continue
		}
		plan.Updates = append(plan.Updates, Update{ID: sibling.ID, ParentID: item.ParentID, Order: i})
	}
	return plan
}

// ValidateBatch checks the shape of a reorder batch. It does not look at the
// order values beyond their sign; the batch is applied verbatim.
func ValidateBatch(updates []Update) error {
	if len(updates) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]struct{}, len(updates))
	for i, update := range updates {
		if strings.TrimSpace(update.ID) == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidBatch, i)
		}
		if strings.TrimSpace(update.ParentID) == "" {
			return fmt.Errorf("%w: item %s has no parent", ErrInvalidBatch, update.ID)
		}
		if update.Order < 0 {
			return fmt.Errorf("%w: item %s", ErrInvalidOrder, update.ID)
		}
		if _, dup := seen[update.ID]; dup {
			return fmt.Errorf("%w: item %s listed twice", ErrInvalidBatch, update.ID)
		}
		seen[update.ID] = struct{}{}
	}
	return nil
}

// Duplicates returns the order values shared by more than one item of the
// same parent, keyed by parent id.
func Duplicates(items []Item) map[string][]int {
	counts := make(map[string]map[int]int)
	for _, item := range items {
		if counts[item.ParentID] == nil {
			counts[item.ParentID] = make(map[int]int)
		}
		counts[item.ParentID][item.Order]++
	}
	out := make(map[string][]int)
	for parent, byOrder := range counts {
		for order, n := range byOrder {
			if n > 1 {
				out[parent] = append(out[parent], order)
			}
		}
		sort.Ints(out[parent])
	}
	for parent, orders := range out {
		if len(orders) == 0 {
			delete(out, parent)
		}
	}
	return out
}

// Apply returns items with updates applied, for callers that keep an
// in-memory copy of a collection.
func Apply(items []Item, updates []Update) []Item {
	byID := make(map[string]Update, len(updates))
	for _, update := range updates {
		byID[update.ID] = update
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if update, ok := byID[item.ID]; ok {
			item.ParentID = update.ParentID
			item.Order = update.Order
		}
		out = append(out, item)
	}
	return out
}

func sortItems(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func sortUpdatesByID(updates []Update) []Update {
	sorted := make([]Update, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
