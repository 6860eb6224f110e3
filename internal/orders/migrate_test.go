package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

func TestMigrateStatuses(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.New(docstore.NewMemoryBackend())

	reason := "Didn't Pay"
	canceled := testOrder("PRIME-CCCC-CCCC-CCCC", domain.StatusCanceled, 3)
	canceled.CancelReason = &reason

	seedOrder(t, store, "pending", testOrder("PRIME-AAAA-AAAA-AAAA", domain.StatusPending, 1))
	seedOrder(t, store, "completed", testOrder("PRIME-BBBB-BBBB-BBBB", domain.StatusCompleted, 2))
	seedOrder(t, store, "canceled", canceled)
	seedOrder(t, store, "bogus", testOrder("PRIME-DDDD-DDDD-DDDD", domain.Status("lost"), 4))

	result, err := MigrateStatuses(ctx, store, domain.SchemaV1, domain.SchemaV3, logger)
	require.NoError(t, err)
	assert.Equal(t, MigrationResult{Migrated: 2, Unchanged: 1, Skipped: 1}, result)

	status := func(key string) domain.Order {
		snap, err := store.Ref(Collection).Child(key).Once(ctx)
		require.NoError(t, err)
		var o domain.Order
		require.NoError(t, snap.Val(&o))
		return o
	}
	assert.Equal(t, domain.StatusWaitingToPayDelivery, status("pending").Status)
	assert.Equal(t, domain.StatusPayedFull, status("completed").Status)
	assert.Equal(t, domain.StatusCanceled, status("canceled").Status)
	require.NotNil(t, status("canceled").CancelReason)
	assert.Equal(t, reason, *status("canceled").CancelReason)
	assert.Equal(t, domain.Status("lost"), status("bogus").Status)

	t.Run("round trip restores the closed vocabulary", func(t *testing.T) {
		_, err := MigrateStatuses(ctx, store, domain.SchemaV3, domain.SchemaV1, logger)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusPending, status("pending").Status)
		assert.Equal(t, domain.StatusCompleted, status("completed").Status)
		assert.Equal(t, domain.StatusCanceled, status("canceled").Status)
	})
}
