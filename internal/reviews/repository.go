// Package reviews stores customer and admin reviews in one collection.
// The storefront only ever reads approved reviews; customer submissions wait
// for moderation.
package reviews

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const Collection = "reviews"

var reviewSchema = collection.Schema[domain.Review]{
	Key:       func(r domain.Review) string { return r.ID },
	SetKey:    func(r domain.Review, key string) domain.Review { r.ID = key; return r },
	Timestamp: func(r domain.Review) time.Time { return r.Timestamp.Time },
}

type Input struct {
	Name      string `json:"name" validate:"required,min=2,max=80"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Package   string `json:"package" validate:"required,catalog_package"`
	Content   string `json:"content" validate:"required,min=10,max=2000"`
	OrderCode string `json:"orderCode,omitempty" validate:"omitempty,ordercode"`
}

func (in Input) Trimmed() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Package = strings.TrimSpace(in.Package)
	in.Content = strings.TrimSpace(in.Content)
	in.OrderCode = strings.ToUpper(strings.TrimSpace(in.OrderCode))
	return in
}

type ReviewRepository struct {
	approved *collection.Collection[domain.Review]
	all      *collection.Collection[domain.Review]
	catalog  *catalog.Catalog
	logger   *slog.Logger
	now      func() time.Time

	counterWrites bool

	// watching is set while the approved view follows a live subscription.
	watching atomic.Bool
}

// NewReviewRepository returns a repository over the reviews collection.
// Unless counterWrites is set, helpful votes only change the local mirror.
func NewReviewRepository(store *docstore.Store, ready *collection.Ready, cat *catalog.Catalog, counterWrites bool, logger *slog.Logger) *ReviewRepository {
	ref := store.Ref(Collection)

	approvedSchema := reviewSchema
	approvedSchema.Keep = func(r domain.Review) bool { return r.Approved }

	return &ReviewRepository{
		approved: collection.New(ref, approvedSchema, logger,
			collection.WithReady[domain.Review](ready),
			collection.WithSource[domain.Review](ref.OrderByChild("approved").EqualTo(true)),
		),
		all:     collection.New(ref, reviewSchema, logger, collection.WithReady[domain.Review](ready)),
		catalog:       cat,
		logger:        logger,
		now:           time.Now,
		counterWrites: counterWrites,
	}
}

// WatchApproved keeps the storefront view live. Until it is called every
// read of the approved view goes to the store.
func (r *ReviewRepository) WatchApproved(ctx context.Context) (docstore.Unsubscribe, error) {
	unsubscribe, err := r.approved.Subscribe(ctx, func(items []domain.Review) {
		r.logger.Debug("approved reviews changed", "count", len(items))
	})
	if err != nil {
		return nil, err
	}
	r.watching.Store(true)
	return func() {
		r.watching.Store(false)
		unsubscribe()
	}, nil
}

// Watch keeps the moderation view live.
func (r *ReviewRepository) Watch(ctx context.Context) (docstore.Unsubscribe, error) {
	return r.all.Subscribe(ctx, func(items []domain.Review) {
		r.logger.Debug("reviews changed", "count", len(items))
	})
}

func (r *ReviewRepository) Approved(ctx context.Context) ([]domain.Review, error) {
	if !r.watching.Load() || !r.approved.Loaded() {
		return r.approved.FetchOnce(ctx)
	}
	return r.approved.Items(), nil
}

func (r *ReviewRepository) Stats(ctx context.Context) (domain.ReviewStats, error) {
	approved, err := r.Approved(ctx)
	if err != nil {
		return domain.ReviewStats{}, err
	}
	return domain.SummarizeReviews(approved), nil
}

// List returns every review, pending moderation included.
func (r *ReviewRepository) List(ctx context.Context, refresh bool) ([]domain.Review, error) {
	if refresh || !r.all.Loaded() {
		return r.all.FetchOnce(ctx)
	}
	return r.all.Items(), nil
}

// Submit stores a customer review. It stays hidden until approved.
func (r *ReviewRepository) Submit(ctx context.Context, in Input) (domain.Review, error) {
	if err := r.load(ctx, r.approved); err != nil {
		return domain.Review{}, err
	}
	return r.approved.Insert(ctx, r.newReview(in, false))
}

// Compose stores an admin-written review, approved and verified.
func (r *ReviewRepository) Compose(ctx context.Context, in Input) (domain.Review, error) {
	if err := r.load(ctx, r.all); err != nil {
		return domain.Review{}, err
	}
	return r.all.Insert(ctx, r.newReview(in, true))
}

func (r *ReviewRepository) SetApproval(ctx context.Context, id string, approved bool) (domain.Review, error) {
	if err := r.load(ctx, r.all); err != nil {
		return domain.Review{}, err
	}
	return r.all.Apply(ctx, id, func(current domain.Review) (domain.Review, map[string]any, error) {
		current.Approved = approved
		return current, map[string]any{"approved": approved}, nil
	})
}

// Helpful counts a vote on an approved review. Pending and unknown reviews
// are not found.
func (r *ReviewRepository) Helpful(ctx context.Context, id string) (domain.Review, error) {
	if _, err := r.Approved(ctx); err != nil {
		return domain.Review{}, err
	}

	if !r.counterWrites {
		return r.approved.Patch(id, func(rv domain.Review) domain.Review {
			rv.Helpful++
			return rv
		})
	}

	return r.approved.Apply(ctx, id, func(rv domain.Review) (domain.Review, map[string]any, error) {
		rv.Helpful++
		return rv, map[string]any{"helpful": rv.Helpful}, nil
	})
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	if err := r.load(ctx, r.all); err != nil {
		return err
	}
	return r.all.Remove(ctx, id)
}

func (r *ReviewRepository) newReview(in Input, trusted bool) domain.Review {
	pkg := in.Package
	if tier, err := r.catalog.Package(pkg); err == nil {
		pkg = tier.Name
	}

	return domain.Review{
		Name:      in.Name,
		Rating:    in.Rating,
		Package:   pkg,
		Content:   in.Content,
		OrderCode: in.OrderCode,
		Timestamp: domain.NewTimestamp(r.now()),
		Verified:  trusted,
		Approved:  trusted,
	}
}

func (r *ReviewRepository) load(ctx context.Context, c *collection.Collection[domain.Review]) error {
	if c.Loaded() {
		return nil
	}
	_, err := c.FetchOnce(ctx)
	return err
}
