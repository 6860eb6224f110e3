package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/analytics"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type memoryStatsCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func (c *memoryStatsCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memoryStatsCache) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryStatsCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

func newTestHandler(t *testing.T, version domain.SchemaVersion, publisher Publisher, cache StatsCache) (*Handler, *OrderRepository) {
	t.Helper()
	h, repo, _ := newTestHandlerWithStore(t, version, publisher, cache)
	return h, repo
}

func newTestHandlerWithStore(t *testing.T, version domain.SchemaVersion, publisher Publisher, cache StatsCache) (*Handler, *OrderRepository, *docstore.Store) {
	t.Helper()
	repo, store := newTestRepository(t, version)
	seedOrder(t, store, "o1", testOrder("PRIME-AAAA-AAAA-AAAA", repo.vocab.Default, 1))
	seedOrder(t, store, "o2", testOrder("PRIME-BBBB-BBBB-BBBB", repo.vocab.Completed, 2))

	h := NewHandler(repo, publisher, cache, repo.vocab, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC) }
	return h, repo, store
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp["error"]
}

func TestHandler_HandleList(t *testing.T) {
	t.Run("returns every order newest first", func(t *testing.T) {
		h, _ := newTestHandler(t, domain.SchemaV1, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()
		h.HandleList(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var resp listResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Total != 2 || len(resp.Orders) != 2 {
			t.Fatalf("expected 2 orders, got %d of %d", len(resp.Orders), resp.Total)
		}
		if resp.Orders[0].ID != "o2" {
			t.Errorf("expected o2 first, got %s", resp.Orders[0].ID)
		}
	})

	t.Run("filters by status and query", func(t *testing.T) {
		h, _ := newTestHandler(t, domain.SchemaV1, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/orders?status=pending&q=aaaa", nil)
		rec := httptest.NewRecorder()
		h.HandleList(rec, req)

		var resp listResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Orders) != 1 || resp.Orders[0].ID != "o1" {
			t.Errorf("expected only o1, got %+v", ids(resp.Orders))
		}
		if resp.Total != 2 {
			t.Errorf("expected total 2, got %d", resp.Total)
		}
	})
}

func TestHandler_HandleGet(t *testing.T) {
	h, _ := newTestHandler(t, domain.SchemaV1, nil, nil)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/o1", nil)
		req.SetPathValue("id", "o1")
		rec := httptest.NewRecorder()
		h.HandleGet(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.HandleGet(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
		if msg := decodeError(t, rec); msg != "order not found" {
			t.Errorf("expected 'order not found', got %s", msg)
		}
	})
}

func TestHandler_HandleUpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		version    domain.SchemaVersion
		id         string
		body       string
		wantStatus int
	}{
		{name: "cancel with reason", version: domain.SchemaV2, id: "o1", body: `{"status":"canceled","cancelReason":"Didn't Pay"}`, wantStatus: http.StatusOK},
		{name: "cancel without required reason", version: domain.SchemaV2, id: "o1", body: `{"status":"canceled"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown status", version: domain.SchemaV1, id: "o1", body: `{"status":"refunded"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "backward pipeline move", version: domain.SchemaV3, id: "o2", body: `{"status":"shipped"}`, wantStatus: http.StatusConflict},
		{name: "missing order", version: domain.SchemaV1, id: "nope", body: `{"status":"completed"}`, wantStatus: http.StatusNotFound},
		{name: "invalid body", version: domain.SchemaV1, id: "o1", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &recordingPublisher{}
			h, _ := newTestHandler(t, tt.version, publisher, nil)

			req := httptest.NewRequest(http.MethodPatch, "/orders/"+tt.id+"/status", strings.NewReader(tt.body))
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.HandleUpdateStatus(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK && len(publisher.events) != 0 {
				t.Errorf("expected no events on failure, got %d", len(publisher.events))
			}
		})
	}

	t.Run("publishes status change and invalidates stats", func(t *testing.T) {
		publisher := &recordingPublisher{}
		cache := &memoryStatsCache{entries: map[string][]byte{}}
		h, repo := newTestHandler(t, domain.SchemaV3, publisher, cache)

		req := httptest.NewRequest(http.MethodPatch, "/orders/o1/status", strings.NewReader(`{"status":"delivery_paid"}`))
		req.SetPathValue("id", "o1")
		rec := httptest.NewRecorder()
		h.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if len(publisher.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(publisher.events))
		}
		event, ok := publisher.events[0].(domain.OrderEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", publisher.events[0])
		}
		if event.Type != domain.OrderEventStatusChanged || event.PreviousStatus != domain.StatusWaitingToPayDelivery || event.Status != domain.StatusDeliveryPaid {
			t.Errorf("unexpected event: %+v", event)
		}
		if len(cache.invalidated) != 1 || cache.invalidated[0] != "orders:v3:UTC" {
			t.Errorf("expected stats key invalidated, got %v", cache.invalidated)
		}

		order, err := repo.GetByID(context.Background(), "o1")
		if err != nil {
			t.Fatalf("failed to get order: %v", err)
		}
		if order.Status != domain.StatusDeliveryPaid {
			t.Errorf("expected delivery_paid, got %s", order.Status)
		}
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		publisher := &recordingPublisher{err: context.DeadlineExceeded}
		h, _ := newTestHandler(t, domain.SchemaV1, publisher, nil)

		req := httptest.NewRequest(http.MethodPatch, "/orders/o1/status", strings.NewReader(`{"status":"completed"}`))
		req.SetPathValue("id", "o1")
		rec := httptest.NewRecorder()
		h.HandleUpdateStatus(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleStats(t *testing.T) {
	cache := &memoryStatsCache{entries: map[string][]byte{}}
	h, repo, store := newTestHandlerWithStore(t, domain.SchemaV1, nil, cache)

	req := httptest.NewRequest(http.MethodGet, "/orders/stats", nil)
	rec := httptest.NewRecorder()
	h.HandleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var dashboard analytics.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if dashboard.TotalOrders != 2 {
		t.Errorf("expected 2 orders, got %d", dashboard.TotalOrders)
	}
	if dashboard.Revenue.String() != "36.69" {
		t.Errorf("expected revenue 36.69, got %s", dashboard.Revenue)
	}
	cache.mu.Lock()
	_, cached := cache.entries["orders:v1:UTC"]
	cache.mu.Unlock()
	if !cached {
		t.Error("expected dashboard to be cached")
	}

	// a cached dashboard is served without reading the store
	seedOrder(t, store, "o3", testOrder("PRIME-CCCC-CCCC-CCCC", domain.StatusCompleted, 3))
	if got := statsTotal(t, h, ""); got != 2 {
		t.Errorf("expected cached total 2, got %d", got)
	}

	// a local write drops the cached dashboard; the unwatched mirror has not
	// seen o3
	if _, err := repo.Create(context.Background(), testOrder("PRIME-DDDD-DDDD-DDDD", domain.StatusCompleted, 4)); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if got := statsTotal(t, h, ""); got != 3 {
		t.Errorf("expected total 3 after create, got %d", got)
	}

	if got := statsTotal(t, h, "?refresh=true"); got != 4 {
		t.Errorf("expected refreshed total 4, got %d", got)
	}
}

func TestHandler_HandleStatsFollowsOtherWriters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := &memoryStatsCache{entries: map[string][]byte{}}
	repo, store := newTestRepository(t, domain.SchemaV1)
	seedOrder(t, store, "o1", testOrder("PRIME-AAAA-AAAA-AAAA", domain.StatusPending, 1))
	seedOrder(t, store, "o2", testOrder("PRIME-BBBB-BBBB-BBBB", domain.StatusCompleted, 2))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(repo, nil, cache, repo.vocab, time.UTC, logger)

	unsubscribe, err := repo.Watch(ctx)
	if err != nil {
		t.Fatalf("failed to watch orders: %v", err)
	}
	defer unsubscribe()

	waitForTotal(t, h, 2)

	// the storefront process writes through its own repository
	storefront := NewOrderRepository(store, collection.Resolved(), repo.vocab, logger)
	if _, err := storefront.Create(ctx, testOrder("PRIME-CCCC-CCCC-CCCC", domain.StatusPending, 3)); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	waitForTotal(t, h, 3)
}

func statsTotal(t *testing.T, h *Handler, query string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/orders/stats"+query, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var dashboard analytics.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return dashboard.TotalOrders
}

func waitForTotal(t *testing.T, h *Handler, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := statsTotal(t, h, "")
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected total %d, still %d", want, got)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHandler_HandleVocabulary(t *testing.T) {
	h, _ := newTestHandler(t, domain.SchemaV3, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleVocabulary(rec, httptest.NewRequest(http.MethodGet, "/orders/vocabulary", nil))

	var resp vocabularyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != "v3" || resp.Default != domain.StatusWaitingToPayDelivery {
		t.Errorf("unexpected vocabulary: %+v", resp)
	}
	if got := resp.Transitions[domain.StatusCanceled]; len(got) != 1 || got[0] != domain.StatusWaitingToPayDelivery {
		t.Errorf("unexpected transitions from canceled: %v", got)
	}
}
