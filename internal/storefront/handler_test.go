package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/orderform"
	"github.com/joao-fontenele/primeuro-storefront/internal/orders"
)

const validOrderBody = `{
	"package": "premium",
	"fullName": "Anna-Lena O'Neil",
	"email": "anna@example.com",
	"phone": "+49 151 1234567",
	"telegram": "@anna_lena",
	"deliveryMethod": "express",
	"deliveryType": "home",
	"streetAddress": "Hauptstrasse 12",
	"city": "Berlin",
	"postalCode": "10115",
	"country": "Germany",
	"paymentMethod": "crypto",
	"couponCode": "primeuro30"
}`

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newTestHandler(t *testing.T, publisher orders.Publisher) (*Handler, *orders.OrderRepository, *docstore.Store) {
	t.Helper()
	vocab, err := domain.VocabularyFor(domain.SchemaV3)
	if err != nil {
		t.Fatalf("failed to get vocabulary: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := docstore.New(docstore.NewMemoryBackend())
	repo := orders.NewOrderRepository(store, collection.Resolved(), vocab, logger)
	return NewHandler(orderform.NewValidator(catalog.Default()), repo, publisher, vocab, logger), repo, store
}

func TestHandler_HandleCatalog(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.HandleCatalog(rec, httptest.NewRequest(http.MethodGet, "/catalog", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"price":24.99`) {
		t.Errorf("expected plain numeric prices, got %s", body)
	}
	if strings.Contains(body, "PRIMEURO30") {
		t.Error("coupon codes must not be exposed")
	}
}

func TestHandler_HandleQuote(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTotal  string
	}{
		{name: "standard delivery by default", body: `{"package":"10m"}`, wantStatus: http.StatusOK, wantTotal: "36.69"},
		{name: "alias with coupon", body: `{"package":"premium","deliveryMethod":"express","couponCode":"PRIMEURO30"}`, wantStatus: http.StatusOK, wantTotal: "47.48"},
		{name: "unknown coupon", body: `{"package":"10m","couponCode":"FREE"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown package", body: `{"package":"1b"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown delivery", body: `{"package":"10m","deliveryMethod":"drone"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid body", body: `nope`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleQuote(rec, httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantTotal == "" {
				return
			}
			var quote orderform.Quote
			if err := json.Unmarshal(rec.Body.Bytes(), &quote); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if got := quote.Total.StringFixed(2); got != tt.wantTotal {
				t.Errorf("expected total %s, got %s", tt.wantTotal, got)
			}
		})
	}
}

func TestHandler_HandleValidateStep(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	tests := []struct {
		name       string
		step       string
		body       string
		wantStatus int
		wantFields []string
	}{
		{name: "valid package step", step: "1", body: `{"package":"10m"}`, wantStatus: http.StatusOK},
		{name: "later steps are not checked", step: "1", body: `{"package":"10m","email":"nope"}`, wantStatus: http.StatusOK},
		{name: "invalid personal step", step: "2", body: `{"fullName":"A","email":"a@b","phone":"123"}`, wantStatus: http.StatusUnprocessableEntity, wantFields: []string{"fullName", "email", "phone"}},
		{name: "confirmation step", step: "5", body: `{}`, wantStatus: http.StatusOK},
		{name: "out of range", step: "6", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "not a number", step: "two", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders/steps/"+tt.step+"/validate", strings.NewReader(tt.body))
			req.SetPathValue("step", tt.step)
			rec := httptest.NewRecorder()
			h.HandleValidateStep(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantFields == nil {
				return
			}
			var resp validationResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Step != 2 {
				t.Errorf("expected step 2, got %d", resp.Step)
			}
			got := make([]string, 0, len(resp.Fields))
			for _, f := range resp.Fields {
				got = append(got, f.Field)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("expected fields %v, got %v", tt.wantFields, got)
			}
		})
	}
}

func TestHandler_HandleCreateOrder(t *testing.T) {
	t.Run("stores the order and publishes an event", func(t *testing.T) {
		publisher := &recordingPublisher{}
		h, repo, _ := newTestHandler(t, publisher)

		rec := httptest.NewRecorder()
		h.HandleCreateOrder(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validOrderBody)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var created domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if created.ID == "" || !domain.ValidOrderCode(created.OrderCode) {
			t.Errorf("unexpected id/code: %q %q", created.ID, created.OrderCode)
		}
		if created.Status != domain.StatusWaitingToPayDelivery {
			t.Errorf("expected default status, got %s", created.Status)
		}
		if got := created.Payment.Total.StringFixed(2); got != "47.48" {
			t.Errorf("expected total 47.48, got %s", got)
		}
		if created.Coupon == nil || created.Coupon.Code != "PRIMEURO30" {
			t.Errorf("expected coupon PRIMEURO30, got %+v", created.Coupon)
		}

		stored, err := repo.GetByID(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("order not stored: %v", err)
		}
		if stored.OrderCode != created.OrderCode {
			t.Errorf("stored code %s differs from %s", stored.OrderCode, created.OrderCode)
		}

		if len(publisher.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(publisher.events))
		}
		if event := publisher.events[0].(domain.OrderEvent); event.Type != domain.OrderEventCreated || event.OrderID != created.ID {
			t.Errorf("unexpected event: %+v", event)
		}
	})

	t.Run("rejects an invalid form with the failing step", func(t *testing.T) {
		h, _, _ := newTestHandler(t, nil)
		body := strings.Replace(validOrderBody, `"postalCode": "10115"`, `"postalCode": "!"`, 1)

		rec := httptest.NewRecorder()
		h.HandleCreateOrder(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rec.Code)
		}
		var resp validationResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Step != orderform.StepShipping {
			t.Errorf("expected shipping step, got %d", resp.Step)
		}
	})

	t.Run("regenerates a colliding order code", func(t *testing.T) {
		h, _, store := newTestHandler(t, nil)
		taken := "PRIME-AAAA-AAAA-AAAA"
		if err := store.Ref(orders.Collection).Child("existing").Set(context.Background(), domain.Order{OrderCode: taken}); err != nil {
			t.Fatalf("failed to seed order: %v", err)
		}
		codes := []string{taken, "PRIME-BBBB-BBBB-BBBB"}
		h.newCode = func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}

		rec := httptest.NewRecorder()
		h.HandleCreateOrder(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(validOrderBody)))

		var created domain.Order
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if created.OrderCode != "PRIME-BBBB-BBBB-BBBB" {
			t.Errorf("expected the second code, got %s", created.OrderCode)
		}
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		h, _, store := newTestHandler(t, nil)
		taken := "PRIME-AAAA-AAAA-AAAA"
		if err := store.Ref(orders.Collection).Child("existing").Set(context.Background(), domain.Order{OrderCode: taken}); err != nil {
			t.Fatalf("failed to seed order: %v", err)
		}
		calls := 0
		h.newCode = func() (string, error) {
			calls++
			return taken, nil
		}

		code, err := h.uniqueCode(context.Background())
		if !errors.Is(err, ErrCodesExhausted) {
			t.Fatalf("expected ErrCodesExhausted, got %q %v", code, err)
		}
		if calls != maxCodeAttempts {
			t.Errorf("expected %d attempts, got %d", maxCodeAttempts, calls)
		}
	})
}
