package orders

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
)

func newTestRepository(t *testing.T, version domain.SchemaVersion) (*OrderRepository, *docstore.Store) {
	t.Helper()
	vocab, err := domain.VocabularyFor(version)
	require.NoError(t, err)

	store := docstore.New(docstore.NewMemoryBackend())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrderRepository(store, collection.Resolved(), vocab, logger), store
}

func seedOrder(t *testing.T, store *docstore.Store, key string, o domain.Order) {
	t.Helper()
	require.NoError(t, store.Ref(Collection).Child(key).Set(context.Background(), o))
}

func testOrder(code string, status domain.Status, minute int) domain.Order {
	return domain.Order{
		OrderCode: code,
		Timestamp: domain.NewTimestamp(time.Date(2024, 3, 1, 10, minute, 0, 0, time.UTC)),
		Status:    status,
		Package:   domain.Package{Name: "10M Package", Price: decimal.RequireFromString("24.99")},
		PersonalInfo: domain.PersonalInfo{
			FullName: "Ana Souza",
			Email:    "ana@example.com",
		},
		Payment: domain.Payment{Method: "crypto", Total: decimal.RequireFromString("36.69")},
	}
}

func TestOrderRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t, domain.SchemaV1)
	seedOrder(t, store, "old", testOrder("PRIME-AAAA-AAAA-AAAA", domain.StatusPending, 1))
	seedOrder(t, store, "new", testOrder("PRIME-BBBB-BBBB-BBBB", domain.StatusCompleted, 9))

	orders, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(orders))

	seedOrder(t, store, "newest", testOrder("PRIME-CCCC-CCCC-CCCC", domain.StatusPending, 30))

	cached, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids(cached), "without refresh the mirror is served")

	refreshed, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "new", "old"}, ids(refreshed))
}

func TestOrderRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t, domain.SchemaV1)
	seedOrder(t, store, "o1", testOrder("PRIME-AAAA-AAAA-AAAA", domain.StatusPending, 1))

	order, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, "PRIME-AAAA-AAAA-AAAA", order.OrderCode)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestOrderRepository_CreateAndCodeExists(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t, domain.SchemaV3)

	exists, err := repo.CodeExists(ctx, "PRIME-ZZZZ-ZZZZ-ZZZZ")
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := repo.Create(ctx, testOrder("PRIME-ZZZZ-ZZZZ-ZZZZ", domain.StatusWaitingToPayDelivery, 5))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	exists, err = repo.CodeExists(ctx, "PRIME-ZZZZ-ZZZZ-ZZZZ")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderCode, got.OrderCode)
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t, domain.SchemaV2)
	seedOrder(t, store, "o1", testOrder("PRIME-AAAA-AAAA-AAAA", "", 1))

	canceled, previous, err := repo.UpdateStatus(ctx, "o1", domain.StatusCanceled, " Didn't Pay ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, previous)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, "Didn't Pay", *canceled.CancelReason)

	completed, previous, err := repo.UpdateStatus(ctx, "o1", domain.StatusCompleted, "ignored")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, previous)
	assert.Nil(t, completed.CancelReason)

	snap, err := store.Ref(Collection).Child("o1").Once(ctx)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, snap.Val(&stored))
	assert.Equal(t, "completed", stored["status"])
	assert.Contains(t, stored, "cancelReason")
	assert.Nil(t, stored["cancelReason"], "leaving canceled writes an explicit null")
	assert.Equal(t, "PRIME-AAAA-AAAA-AAAA", stored["orderCode"], "other fields are untouched")
}

func TestOrderRepository_UpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepository(t, domain.SchemaV3)
	seedOrder(t, store, "o1", testOrder("PRIME-AAAA-AAAA-AAAA", domain.StatusShipped, 1))

	_, _, err := repo.UpdateStatus(ctx, "o1", domain.StatusDeliveryPaid, "")
	assert.ErrorIs(t, err, domain.ErrTransitionNotAllowed)

	_, _, err = repo.UpdateStatus(ctx, "o1", domain.StatusCanceled, "  ")
	assert.ErrorIs(t, err, domain.ErrCancelReasonRequired)

	_, _, err = repo.UpdateStatus(ctx, "o1", "refunded", "")
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	_, _, err = repo.UpdateStatus(ctx, "missing", domain.StatusPayedFull, "")
	assert.ErrorIs(t, err, collection.ErrNotFound)

	order, err := repo.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, order.Status, "rejected moves leave the order unchanged")
}

func TestOrderRepository_CreateDoesNotRenotifyWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo, _ := newTestRepository(t, domain.SchemaV3)

	form := orderform.FormState{
		Package:        "10m",
		FullName:       "Ana Souza",
		Email:          "ana@example.com",
		Phone:          "+351 912 345 678",
		DeliveryMethod: "standard",
		DeliveryType:   "home",
		StreetAddress:  "Rua Augusta 10",
		City:           "Lisboa",
		PostalCode:     "1100053",
		Country:        "Portugal",
		PaymentMethod:  "crypto",
		CouponCode:     "PRIMEURO30",
	}
	order, err := orderform.NewValidator(catalog.Default()).CollectOrderData(form, orderform.Options{Vocabulary: repo.vocab})
	require.NoError(t, err)

	updates := make(chan []domain.Order, 16)
	unsubscribe, err := repo.orders.Subscribe(ctx, func(items []domain.Order) { updates <- items })
	require.NoError(t, err)
	defer unsubscribe()

	receive := func() []domain.Order {
		t.Helper()
		select {
		case items := <-updates:
			return items
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for orders")
			return nil
		}
	}

	assert.Empty(t, receive())

	created, err := repo.Create(ctx, order)
	require.NoError(t, err)

	optimistic := receive()
	require.Len(t, optimistic, 1)
	assert.Equal(t, created.ID, optimistic[0].ID)

	// the stored copy decodes to the same order, so its echo is silent
	select {
	case items := <-updates:
		t.Fatalf("unexpected notification for own write: %+v", items)
	case <-time.After(200 * time.Millisecond):
	}
}
