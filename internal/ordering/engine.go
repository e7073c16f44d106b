package ordering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Gateway is the storage side of the engine. Every method of Tx runs inside
// the transaction opened by WithinTx; returning an error from fn rolls back.
type Gateway interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	CountSiblings(ctx context.Context, kind Kind, parentID string) (int, error)
}

type Tx interface {
	LockItem(ctx context.Context, kind Kind, id string) (Item, error)
	// LockSiblings returns the collection under parentID ordered by
	// (order, id) and holds row locks on it until the transaction ends.
	LockSiblings(ctx context.Context, kind Kind, parentID string) ([]Item, error)
	// ApplyUpdates writes every update or none. A row that does not exist,
	// or for a non-reparentable kind sits under another parent, fails with
	// ErrNotFound.
	ApplyUpdates(ctx context.Context, kind Kind, updates []Update) error
}

type Engine struct {
	gw     Gateway
	tracer trace.Tracer
	log    log.FieldLogger
}

func NewEngine(gw Gateway, logger log.FieldLogger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		gw:     gw,
		tracer: otel.Tracer("kanban/api/internal/ordering"),
		log:    logger,
	}
}

// MoveItem places itemID at index requested under destParentID. The source
// and destination collections are locked in parent id order so two moves in
// opposite directions cannot deadlock.
func (e *Engine) MoveItem(ctx context.Context, kind Kind, itemID, sourceParentID, destParentID string, requested int) (Item, error) {
	ctx, span := e.tracer.Start(ctx, "ordering.MoveItem", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("item_id", itemID),
		attribute.String("source_parent_id", sourceParentID),
		attribute.String("dest_parent_id", destParentID),
		attribute.Int("requested", requested),
	))
	defer span.End()

	if requested < 0 {
		return Item{}, endSpan(span, ErrInvalidOrder)
	}
	if sourceParentID != destParentID && !kind.Reparentable() {
		return Item{}, endSpan(span, ErrNotReparentable)
	}

	var moved Item
	err := e.gw.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked := make(map[string][]Item, 2)
		for _, parentID := range lockOrder(sourceParentID, destParentID) {
			siblings, err := tx.LockSiblings(ctx, kind, parentID)
			if err != nil {
				return fmt.Errorf("lock siblings of %s: %w", parentID, err)
			}
			locked[parentID] = siblings
		}

		item, ok := findItem(locked[sourceParentID], itemID)
		if !ok {
			current, err := tx.LockItem(ctx, kind, itemID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("lock item: %w", err)
			}
			if current.ParentID != sourceParentID {
				return ErrParentMismatch
			}
			return ErrNotFound
		}

		plan, err := PlanMove(kind, item, locked[destParentID], destParentID, requested)
		if err != nil {
			return err
		}
		if len(plan.Updates) > 0 {
			if err := tx.ApplyUpdates(ctx, kind, sortUpdatesByID(plan.Updates)); err != nil {
				return fmt.Errorf("apply move: %w", err)
			}
		}
		moved = plan.Moved

		after := Apply(locked[destParentID], plan.Updates)
		if sourceParentID != destParentID {
			after = append(after, plan.Moved)
		}
		if dups := Duplicates(after); len(dups) > 0 {
			e.log.WithFields(log.Fields{
				"kind":       kind,
				"item_id":    itemID,
				"parent_id":  destParentID,
				"duplicates": dups,
			}).Debug("sibling order values collide after move")
		}
		return nil
	})
	if err != nil {
		return Item{}, endSpan(span, err)
	}

	e.log.WithFields(log.Fields{
		"kind":      kind,
		"item_id":   itemID,
		"parent_id": moved.ParentID,
		"order":     moved.Order,
	}).Info("item moved")
	return moved, nil
}

// ReorderBatch writes the given order and parent values verbatim, all or
// nothing.
func (e *Engine) ReorderBatch(ctx context.Context, kind Kind, updates []Update) error {
	ctx, span := e.tracer.Start(ctx, "ordering.ReorderBatch", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Int("batch_size", len(updates)),
	))
	defer span.End()

	if err := ValidateBatch(updates); err != nil {
		return endSpan(span, err)
	}

	sorted := sortUpdatesByID(updates)
	err := e.gw.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.ApplyUpdates(ctx, kind, sorted); err != nil {
			return fmt.Errorf("apply reorder: %w", err)
		}
		return nil
	})
	if err != nil {
		return endSpan(span, err)
	}

	e.log.WithFields(log.Fields{
		"kind":       kind,
		"batch_size": len(updates),
		"parent_ids": parentIDs(updates),
	}).Info("items reordered")
	return nil
}

// Append returns the order value for a new item at the end of parentID's
// collection. Two creations racing on the same parent can receive the same
// value.
func (e *Engine) Append(ctx context.Context, kind Kind, parentID string) (int, error) {
	ctx, span := e.tracer.Start(ctx, "ordering.Append", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("parent_id", parentID),
	))
	defer span.End()

	count, err := e.gw.CountSiblings(ctx, kind, parentID)
	if err != nil {
		return 0, endSpan(span, fmt.Errorf("count siblings: %w", err))
	}
	return count, nil
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func lockOrder(a, b string) []string {
	if a == b {
		return []string{a}
	}
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}

func findItem(items []Item, id string) (Item, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

func parentIDs(updates []Update) []string {
	seen := make(map[string]struct{}, len(updates))
	out := make([]string, 0, len(updates))
	for _, update := range updates {
		if _, ok := seen[update.ParentID]; ok {
			continue
		}
		seen[update.ParentID] = struct{}{}
		out = append(out, update.ParentID)
	}
	sort.Strings(out)
	return out
}
