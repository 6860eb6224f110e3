package orders

import (
	"strings"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const StatusAll = "all"

type Filter struct {
	// Status is a vocabulary status, "all" or empty.
	Status string
	// Query matches order code, name, email or telegram, ignoring case.
	Query string
}

// Apply returns the orders that match f, keeping their order. It never
// modifies the input.
func (f Filter) Apply(orders []domain.Order, vocab *domain.Vocabulary) []domain.Order {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && status != StatusAll && vocab.Normalize(o.Status) != vocab.Normalize(domain.Status(status)) {
			continue
		}
		if query != "" && !matches(o, query) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func matches(o domain.Order, query string) bool {
	for _, field := range []string{
		o.OrderCode,
		o.PersonalInfo.FullName,
		o.PersonalInfo.Email,
		o.PersonalInfo.Telegram,
	} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
