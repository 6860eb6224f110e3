package orders

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const Collection = "orders"

var orderSchema = collection.Schema[domain.Order]{
	Key:       func(o domain.Order) string { return o.ID },
	SetKey:    func(o domain.Order, key string) domain.Order { o.ID = key; return o },
	Timestamp: func(o domain.Order) time.Time { return o.Timestamp.Time },
}

// OrderRepository keeps the orders collection mirrored in memory. Reads are
// served from the mirror once it has been loaded.
type OrderRepository struct {
	ref    docstore.Ref
	orders *collection.Collection[domain.Order]
	vocab  *domain.Vocabulary
	logger *slog.Logger

	hooksMu sync.Mutex
	hooks   []func(context.Context)
}

func NewOrderRepository(store *docstore.Store, ready *collection.Ready, vocab *domain.Vocabulary, logger *slog.Logger) *OrderRepository {
	ref := store.Ref(Collection)
	return &OrderRepository{
		ref:    ref,
		orders: collection.New(ref, orderSchema, logger, collection.WithReady[domain.Order](ready)),
		vocab:  vocab,
		logger: logger,
	}
}

// OnChange registers fn to run after the orders change: after a local
// write, and for writes by other processes while the mirror is watched.
func (r *OrderRepository) OnChange(fn func(context.Context)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *OrderRepository) changed(ctx context.Context) {
	r.hooksMu.Lock()
	hooks := slices.Clone(r.hooks)
	r.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

// Watch keeps the mirror live until the returned function is called.
func (r *OrderRepository) Watch(ctx context.Context) (docstore.Unsubscribe, error) {
	return r.orders.Subscribe(ctx, func(items []domain.Order) {
		r.logger.Debug("orders changed", "count", len(items))
		r.changed(ctx)
	})
}

// List returns every order, newest first. refresh forces a one-shot read
// from the store instead of serving the mirror.
func (r *OrderRepository) List(ctx context.Context, refresh bool) ([]domain.Order, error) {
	if refresh || !r.orders.Loaded() {
		return r.orders.FetchOnce(ctx)
	}
	return r.orders.Items(), nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	if err := r.load(ctx); err != nil {
		return domain.Order{}, err
	}

	order, ok := r.orders.Get(id)
	if !ok {
		return domain.Order{}, collection.ErrNotFound
	}
	return order, nil
}

// Create stores a new order under a fresh push key and returns it with its id.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := r.load(ctx); err != nil {
		return domain.Order{}, err
	}
	created, err := r.orders.Insert(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	r.changed(ctx)
	return created, nil
}

// CodeExists asks the store, not the mirror, whether an order code is taken.
func (r *OrderRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	snap, err := r.ref.OrderByChild("orderCode").EqualTo(code).Once(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", collection.ErrReadFailed, err)
	}
	return snap.Exists(), nil
}

// UpdateStatus applies a status transition locally, then writes only the
// status and cancel reason. It returns the updated order and the status it
// had before.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, to domain.Status, reason string) (domain.Order, domain.Status, error) {
	if err := r.load(ctx); err != nil {
		return domain.Order{}, "", err
	}

	var previous domain.Status
	updated, err := r.orders.Apply(ctx, id, func(current domain.Order) (domain.Order, map[string]any, error) {
		next, err := domain.Transition(current, to, reason, r.vocab)
		if err != nil {
			return current, nil, err
		}
		previous = r.vocab.Normalize(current.Status)
		return next, map[string]any{
			"status":       next.Status,
			"cancelReason": next.CancelReason,
		}, nil
	})
	if err != nil {
		return domain.Order{}, "", err
	}
	r.changed(ctx)

	return updated, previous, nil
}

func (r *OrderRepository) load(ctx context.Context) error {
	if r.orders.Loaded() {
		return nil
	}
	_, err := r.orders.FetchOnce(ctx)
	return err
}
