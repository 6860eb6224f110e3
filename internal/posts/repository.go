// Package posts stores blog posts and serves them to the storefront and
// the admin dashboard.
package posts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const Collection = "posts"

var postSchema = collection.Schema[domain.Post]{
	Key:       func(p domain.Post) string { return p.ID },
	SetKey:    func(p domain.Post, key string) domain.Post { p.ID = key; return p },
	Timestamp: func(p domain.Post) time.Time { return p.Timestamp.Time },
}

// Input is what an admin may set on a post. A nil Published keeps the
// current value on update and publishes on create.
type Input struct {
	Title     string `json:"title" validate:"required,max=200"`
	Content   string `json:"content" validate:"required"`
	Published *bool  `json:"published"`
	ImageURL  string `json:"imageUrl"`
}

func (in Input) Trimmed() Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}

type PostRepository struct {
	posts         *collection.Collection[domain.Post]
	counterWrites bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewPostRepository returns a repository over the posts collection. Unless
// counterWrites is set, likes and views only change the local mirror.
func NewPostRepository(store *docstore.Store, ready *collection.Ready, counterWrites bool, logger *slog.Logger) *PostRepository {
	return &PostRepository{
		posts:         collection.New(store.Ref(Collection), postSchema, logger, collection.WithReady[domain.Post](ready)),
		counterWrites: counterWrites,
		logger:        logger,
		now:           time.Now,
	}
}

func (r *PostRepository) Watch(ctx context.Context) (docstore.Unsubscribe, error) {
	return r.posts.Subscribe(ctx, func(items []domain.Post) {
		r.logger.Debug("posts changed", "count", len(items))
	})
}

func (r *PostRepository) List(ctx context.Context, refresh bool) ([]domain.Post, error) {
	if refresh || !r.posts.Loaded() {
		return r.posts.FetchOnce(ctx)
	}
	return r.posts.Items(), nil
}

// Published lists the posts visible on the storefront, newest first.
func (r *PostRepository) Published(ctx context.Context) ([]domain.Post, error) {
	all, err := r.List(ctx, false)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Post, 0, len(all))
	for _, p := range all {
		if p.Published {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PostRepository) Get(ctx context.Context, id string) (domain.Post, error) {
	if err := r.load(ctx); err != nil {
		return domain.Post{}, err
	}
	post, ok := r.posts.Get(id)
	if !ok {
		return domain.Post{}, collection.ErrNotFound
	}
	return post, nil
}

// Create stores a new post with zeroed counters. in must already be valid.
func (r *PostRepository) Create(ctx context.Context, in Input) (domain.Post, error) {
	if err := r.load(ctx); err != nil {
		return domain.Post{}, err
	}

	post := domain.Post{
		Title:     in.Title,
		Content:   in.Content,
		Timestamp: domain.NewTimestamp(r.now()),
		Published: in.Published == nil || *in.Published,
		ImageURL:  in.ImageURL,
	}
	return r.posts.Insert(ctx, post)
}

// Update rewrites the editable fields and keeps counters and timestamp. An
// empty image URL removes the stored image.
func (r *PostRepository) Update(ctx context.Context, id string, in Input) (domain.Post, error) {
	if err := r.load(ctx); err != nil {
		return domain.Post{}, err
	}

	return r.posts.Apply(ctx, id, func(current domain.Post) (domain.Post, map[string]any, error) {
		next := current
		next.Title = in.Title
		next.Content = in.Content
		next.ImageURL = in.ImageURL
		if in.Published != nil {
			next.Published = *in.Published
		}

		fields := map[string]any{
			"title":     next.Title,
			"content":   next.Content,
			"published": next.Published,
			"imageUrl":  nil,
		}
		if next.ImageURL != "" {
			fields["imageUrl"] = next.ImageURL
		}
		return next, fields, nil
	})
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	if err := r.load(ctx); err != nil {
		return err
	}
	return r.posts.Remove(ctx, id)
}

func (r *PostRepository) Like(ctx context.Context, id string) (domain.Post, error) {
	return r.count(ctx, id, "likes", func(p *domain.Post) int {
		p.Likes++
		return p.Likes
	})
}

func (r *PostRepository) View(ctx context.Context, id string) (domain.Post, error) {
	return r.count(ctx, id, "views", func(p *domain.Post) int {
		p.Views++
		return p.Views
	})
}

func (r *PostRepository) count(ctx context.Context, id, field string, inc func(*domain.Post) int) (domain.Post, error) {
	post, err := r.Get(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if !post.Published {
		return domain.Post{}, collection.ErrNotFound
	}

	if !r.counterWrites {
		return r.posts.Patch(id, func(p domain.Post) domain.Post {
			inc(&p)
			return p
		})
	}

	return r.posts.Apply(ctx, id, func(p domain.Post) (domain.Post, map[string]any, error) {
		n := inc(&p)
		return p, map[string]any{field: n}, nil
	})
}

func (r *PostRepository) load(ctx context.Context) error {
	if r.posts.Loaded() {
		return nil
	}
	_, err := r.posts.FetchOnce(ctx)
	return err
}
