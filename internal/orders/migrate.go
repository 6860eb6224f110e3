package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

// MigrationResult counts what MigrateStatuses did.
type MigrationResult struct {
	Migrated  int `json:"migrated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// MigrateStatuses rewrites every stored order status from one schema version
// to another. Orders whose status is unknown to the source schema are logged
// and skipped; a write failure stops the run.
func MigrateStatuses(ctx context.Context, store *docstore.Store, from, to domain.SchemaVersion, logger *slog.Logger) (MigrationResult, error) {
	var result MigrationResult

	ref := store.Ref(Collection)
	snap, err := ref.Once(ctx)
	if err != nil {
		return result, fmt.Errorf("read orders: %w", err)
	}

	type change struct {
		key   string
		order domain.Order
	}
	var changes []change
	var decodeErr error
	snap.ForEach(func(child docstore.Snapshot) bool {
		var o domain.Order
		if err := child.Val(&o); err != nil {
			decodeErr = fmt.Errorf("decode order %s: %w", child.Key(), err)
			return true
		}
		migrated, err := domain.MigrateOrder(o, from, to)
		if err != nil {
			logger.Warn("skipping order", "order_id", child.Key(), "status", o.Status, "error", err)
			result.Skipped++
			return false
		}
		if migrated.Status == o.Status && (migrated.CancelReason != nil) == (o.CancelReason != nil) {
			result.Unchanged++
			return false
		}
		changes = append(changes, change{key: child.Key(), order: migrated})
		return false
	})
	if decodeErr != nil {
		return result, decodeErr
	}

	for _, c := range changes {
		err := ref.Child(c.key).Update(ctx, map[string]any{
			"status":       c.order.Status,
			"cancelReason": c.order.CancelReason,
		})
		if err != nil {
			return result, fmt.Errorf("update order %s: %w", c.key, err)
		}
		result.Migrated++
	}

	logger.Info("order statuses migrated",
		"from", from.String(), "to", to.String(),
		"migrated", result.Migrated, "unchanged", result.Unchanged, "skipped", result.Skipped)
	return result, nil
}
