package ordering

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	log "github.com/sirupsen/logrus"
)

type fakeGateway struct {
	items   map[string]Item
	locked  []string
	applyFn func(updates []Update) error
}

func newFakeGateway(items ...Item) *fakeGateway {
	gw := &fakeGateway{items: make(map[string]Item, len(items))}
	for _, item := range items {
		gw.items[item.ID] = item
	}
	return gw
}

func (g *fakeGateway) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	snapshot := make(map[string]Item, len(g.items))
	for id, item := range g.items {
		snapshot[id] = item
	}
	if err := fn(ctx, g); err != nil {
		g.items = snapshot
		return err
	}
	return nil
}

func (g *fakeGateway) CountSiblings(_ context.Context, _ Kind, parentID string) (int, error) {
	count := 0
	for _, item := range g.items {
		if item.ParentID == parentID {
			count++
		}
	}
	return count, nil
}

func (g *fakeGateway) LockItem(_ context.Context, _ Kind, id string) (Item, error) {
	item, ok := g.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (g *fakeGateway) LockSiblings(_ context.Context, _ Kind, parentID string) ([]Item, error) {
	g.locked = append(g.locked, parentID)
	return g.siblings(parentID), nil
}

func (g *fakeGateway) ApplyUpdates(_ context.Context, kind Kind, updates []Update) error {
	if g.applyFn != nil {
		if err := g.applyFn(updates); err != nil {
			return err
		}
	}
	for _, update := range updates {
		item, ok := g.items[update.ID]
		if !ok {
			return ErrNotFound
		}
		if !kind.Reparentable() && item.ParentID != update.ParentID {
			return ErrNotFound
		}
		g.items[update.ID] = Item{ID: update.ID, ParentID: update.ParentID, Order: update.Order}
	}
	return nil
}

func (g *fakeGateway) siblings(parentID string) []Item {
	out := make([]Item, 0)
	for _, item := range g.items {
		if item.ParentID == parentID {
			out = append(out, item)
		}
	}
	return sortItems(out)
}

func quietEngine(gw Gateway) *Engine {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return NewEngine(gw, logger)
}

func orders(items []Item) map[string]int {
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[item.ID] = item.Order
	}
	return out
}

func boardAB() *fakeGateway {
	return newFakeGateway(
		Item{ID: "x", ParentID: "A", Order: 0},
		Item{ID: "y", ParentID: "A", Order: 1},
		Item{ID: "z", ParentID: "A", Order: 2},
		Item{ID: "p", ParentID: "B", Order: 0},
		Item{ID: "q", ParentID: "B", Order: 1},
	)
}

func TestMoveItemAcrossColumns(t *testing.T) {
	gw := boardAB()
	engine := quietEngine(gw)

	moved, err := engine.MoveItem(context.Background(), KindTask, "x", "A", "B", 1)
	if err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if moved != (Item{ID: "x", ParentID: "B", Order: 1}) {
		t.Fatalf("moved = %+v", moved)
	}

	b := orders(gw.siblings("B"))
	if b["p"] != 0 || b["x"] != 1 || b["q"] != 2 || len(b) != 3 {
		t.Fatalf("column B = %v, want p@0 x@1 q@2", b)
	}
	a := orders(gw.siblings("A"))
	if a["y"] != 1 || a["z"] != 2 || len(a) != 2 {
		t.Fatalf("column A = %v, want y@1 z@2 without renumbering", a)
	}
	if len(Duplicates(append(gw.siblings("A"), gw.siblings("B")...))) != 0 {
		t.Fatalf("duplicate orders after move")
	}
}

func TestMoveItemLocksParentsInIDOrder(t *testing.T) {
	gw := boardAB()
	engine := quietEngine(gw)

	if _, err := engine.MoveItem(context.Background(), KindTask, "p", "B", "A", 0); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if len(gw.locked) != 2 || gw.locked[0] != "A" || gw.locked[1] != "B" {
		t.Fatalf("lock order = %v, want [A B]", gw.locked)
	}
}

func TestMoveItemSameColumnEqualsSwap(t *testing.T) {
	moveGW := boardAB()
	if _, err := quietEngine(moveGW).MoveItem(context.Background(), KindTask, "x", "A", "A", 2); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}

	batchGW := boardAB()
	swap := []Update{{ID: "x", ParentID: "A", Order: 2}, {ID: "z", ParentID: "A", Order: 0}}
	if err := quietEngine(batchGW).ReorderBatch(context.Background(), KindTask, swap); err != nil {
		t.Fatalf("ReorderBatch() error = %v", err)
	}

	got, want := orders(moveGW.siblings("A")), orders(batchGW.siblings("A"))
	for id, order := range want {
		if got[id] != order {
			t.Fatalf("move result %v differs from swap result %v", got, want)
		}
	}
}

func TestMoveItemErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		itemID  string
		source  string
		dest    string
		order   int
		wantErr error
	}{
		{name: "missing item", kind: KindTask, itemID: "nope", source: "A", dest: "B", wantErr: ErrNotFound},
		{name: "wrong source", kind: KindTask, itemID: "p", source: "A", dest: "B", wantErr: ErrParentMismatch},
		{name: "negative order", kind: KindTask, itemID: "x", source: "A", dest: "B", order: -1, wantErr: ErrInvalidOrder},
		{name: "column across spaces", kind: KindColumn, itemID: "x", source: "A", dest: "B", wantErr: ErrNotReparentable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := boardAB()
			before := orders(append(gw.siblings("A"), gw.siblings("B")...))

			_, err := quietEngine(gw).MoveItem(context.Background(), tc.kind, tc.itemID, tc.source, tc.dest, tc.order)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("MoveItem() error = %v, want %v", err, tc.wantErr)
			}

			after := orders(append(gw.siblings("A"), gw.siblings("B")...))
			for id, order := range before {
				if after[id] != order {
					t.Fatalf("item %s changed from %d to %d", id, order, after[id])
				}
			}
		})
	}
}

func TestReorderBatchRollsBackOnMissingItem(t *testing.T) {
	gw := boardAB()
	engine := quietEngine(gw)

	err := engine.ReorderBatch(context.Background(), KindTask, []Update{
		{ID: "x", ParentID: "A", Order: 2},
		{ID: "y", ParentID: "A", Order: 0},
		{ID: "zz-missing", ParentID: "A", Order: 1},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReorderBatch() error = %v, want ErrNotFound", err)
	}

	a := orders(gw.siblings("A"))
	if a["x"] != 0 || a["y"] != 1 || a["z"] != 2 {
		t.Fatalf("column A = %v, want unchanged", a)
	}
}

func TestReorderBatchColumnOutsideParentFails(t *testing.T) {
	gw := newFakeGateway(
		Item{ID: "c1", ParentID: "s1", Order: 0},
		Item{ID: "c2", ParentID: "s2", Order: 0},
	)
	err := quietEngine(gw).ReorderBatch(context.Background(), KindColumn, []Update{
		{ID: "c1", ParentID: "s1", Order: 1},
		{ID: "c2", ParentID: "s1", Order: 0},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReorderBatch() error = %v, want ErrNotFound", err)
	}
	if gw.items["c1"].Order != 0 {
		t.Fatalf("c1 order = %d, want rollback to 0", gw.items["c1"].Order)
	}
}

func TestReorderBatchIsIdempotent(t *testing.T) {
	gw := boardAB()
	engine := quietEngine(gw)
	batch := []Update{
		{ID: "z", ParentID: "A", Order: 0},
		{ID: "x", ParentID: "A", Order: 1},
		{ID: "y", ParentID: "A", Order: 2},
	}

	if err := engine.ReorderBatch(context.Background(), KindTask, batch); err != nil {
		t.Fatalf("first ReorderBatch() error = %v", err)
	}
	first := orders(gw.siblings("A"))
	if err := engine.ReorderBatch(context.Background(), KindTask, batch); err != nil {
		t.Fatalf("second ReorderBatch() error = %v", err)
	}
	second := orders(gw.siblings("A"))

	for id, order := range first {
		if second[id] != order {
			t.Fatalf("second apply changed %s from %d to %d", id, order, second[id])
		}
	}
}

func TestReorderBatchAppliesInIDOrder(t *testing.T) {
	gw := boardAB()
	var seen []string
	gw.applyFn = func(updates []Update) error {
		for _, update := range updates {
			seen = append(seen, update.ID)
		}
		return nil
	}

	err := quietEngine(gw).ReorderBatch(context.Background(), KindTask, []Update{
		{ID: "z", ParentID: "A", Order: 0},
		{ID: "x", ParentID: "A", Order: 2},
	})
	if err != nil {
		t.Fatalf("ReorderBatch() error = %v", err)
	}
	if !sort.StringsAreSorted(seen) {
		t.Fatalf("apply order = %v, want ascending ids", seen)
	}
}

func TestReorderBatchRejectsEmpty(t *testing.T) {
	if err := quietEngine(boardAB()).ReorderBatch(context.Background(), KindTask, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("ReorderBatch() error = %v, want ErrEmptyBatch", err)
	}
}

func TestAppendAssignsSequentialOrders(t *testing.T) {
	gw := newFakeGateway()
	engine := quietEngine(gw)

	for i, id := range []string{"t1", "t2", "t3"} {
		order, err := engine.Append(context.Background(), KindTask, "empty")
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if order != i {
			t.Fatalf("Append() for %s = %d, want %d", id, order, i)
		}
		gw.items[id] = Item{ID: id, ParentID: "empty", Order: order}
	}
}
