// Package analytics folds an order list into dashboard figures. Every
// function is pure and recomputed from the full list on demand.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const (
	unknownKey     = "Unknown"
	unspecifiedKey = "Unspecified"

	DefaultTopN = 5
	DefaultDays = 30
)

type Breakdown struct {
	Key        string  `json:"key"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DailyRevenue struct {
	Date         string          `json:"date"`
	Revenue      decimal.Decimal `json:"revenue"`
	PercentOfMax float64         `json:"percentOfMax"`
}

type RevenueSeries struct {
	Days  []DailyRevenue  `json:"days"`
	Total decimal.Decimal `json:"total"`
}

type Dashboard struct {
	TotalOrders       int                   `json:"totalOrders"`
	StatusCounts      map[domain.Status]int `json:"statusCounts"`
	Revenue           decimal.Decimal       `json:"revenue"`
	ConversionRate    float64               `json:"conversionRate"`
	CancellationRate  float64               `json:"cancellationRate"`
	AverageOrderValue decimal.Decimal       `json:"averageOrderValue"`
	TopCountries      []Breakdown           `json:"topCountries"`
	TopPackages       []Breakdown           `json:"topPackages"`
	TopPaymentMethods []Breakdown           `json:"topPaymentMethods"`
	CancelReasons     []Breakdown           `json:"cancelReasons"`
	RevenueByDate     RevenueSeries         `json:"revenueByDate"`
}

type Options struct {
	// IsRevenue defaults to the vocabulary's revenue statuses.
	IsRevenue domain.StatusPredicate
	Location  *time.Location
	TopN      int
	Days      int
}

// Build computes every dashboard figure for the active vocabulary.
func Build(orders []domain.Order, vocab *domain.Vocabulary, opts Options) Dashboard {
	if opts.IsRevenue == nil {
		opts.IsRevenue = vocab.IsRevenue
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Days <= 0 {
		opts.Days = DefaultDays
	}

	counts := CountByStatus(orders, vocab)
	revenue := Revenue(orders, opts.IsRevenue)

	return Dashboard{
		TotalOrders:       len(orders),
		StatusCounts:      counts,
		Revenue:           revenue,
		ConversionRate:    ConversionRate(counts, vocab),
		CancellationRate:  CancellationRate(counts, vocab, len(orders)),
		AverageOrderValue: AverageOrderValue(revenue, counts[vocab.Completed]),
		TopCountries:      TopN(ByCountry(orders), opts.TopN),
		TopPackages:       TopN(ByPackage(orders), opts.TopN),
		TopPaymentMethods: TopN(ByPaymentMethod(orders), opts.TopN),
		CancelReasons:     ByCancelReason(orders, vocab),
		RevenueByDate:     RevenueByDate(orders, opts.IsRevenue, opts.Location, opts.Days),
	}
}

// CountByStatus counts orders per normalized status. Every status of the
// vocabulary is present, statuses outside it are counted under their own
// name.
func CountByStatus(orders []domain.Order, vocab *domain.Vocabulary) map[domain.Status]int {
	counts := make(map[domain.Status]int, len(vocab.Statuses))
	for _, s := range vocab.Statuses {
		counts[s] = 0
	}
	for _, o := range orders {
		counts[vocab.Normalize(o.Status)]++
	}
	return counts
}

// Revenue sums payment totals of the orders whose status satisfies pred.
func Revenue(orders []domain.Order, pred domain.StatusPredicate) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if pred(o.Status) {
			total = total.Add(o.Payment.Total)
		}
	}
	return total.Round(2)
}

// ConversionRate is completed / (completed + canceled) as a percentage.
func ConversionRate(counts map[domain.Status]int, vocab *domain.Vocabulary) float64 {
	completed, canceled := counts[vocab.Completed], counts[vocab.Canceled]
	return percent(completed, completed+canceled)
}

// CancellationRate is canceled / total as a percentage.
func CancellationRate(counts map[domain.Status]int, vocab *domain.Vocabulary, total int) float64 {
	return percent(counts[vocab.Canceled], total)
}

func AverageOrderValue(revenue decimal.Decimal, completed int) decimal.Decimal {
	if completed == 0 {
		return decimal.Zero
	}
	return revenue.Div(decimal.NewFromInt(int64(completed))).Round(2)
}

func ByCountry(orders []domain.Order) []Breakdown {
	return countBy(orders, func(o domain.Order) string { return o.Shipping.Address.Country }, unknownKey)
}

func ByPackage(orders []domain.Order) []Breakdown {
	return countBy(orders, func(o domain.Order) string { return o.Package.Name }, unknownKey)
}

func ByPaymentMethod(orders []domain.Order) []Breakdown {
	return countBy(orders, func(o domain.Order) string { return o.Payment.Method }, unknownKey)
}

// ByCancelReason breaks down canceled orders only; percentages are of the
// canceled count.
func ByCancelReason(orders []domain.Order, vocab *domain.Vocabulary) []Breakdown {
	var canceled []domain.Order
	for _, o := range orders {
		if vocab.Normalize(o.Status) == vocab.Canceled {
			canceled = append(canceled, o)
		}
	}
	return countBy(canceled, func(o domain.Order) string {
		if o.CancelReason == nil {
			return ""
		}
		return *o.CancelReason
	}, unspecifiedKey)
}

func TopN(b []Breakdown, n int) []Breakdown {
	if n <= 0 || len(b) <= n {
		return b
	}
	return b[:n]
}

// RevenueByDate groups revenue by calendar date in loc, ascending, keeping
// the most recent days buckets. Orders without a timestamp are skipped.
func RevenueByDate(orders []domain.Order, pred domain.StatusPredicate, loc *time.Location, days int) RevenueSeries {
	byDate := make(map[string]decimal.Decimal)
	for _, o := range orders {
		if o.Timestamp.IsZero() || !pred(o.Status) {
			continue
		}
		date := o.Timestamp.In(loc).Format(time.DateOnly)
		byDate[date] = byDate[date].Add(o.Payment.Total)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if days > 0 && len(dates) > days {
		dates = dates[len(dates)-days:]
	}

	series := RevenueSeries{Days: make([]DailyRevenue, 0, len(dates)), Total: decimal.Zero}
	peak := decimal.Zero
	for _, d := range dates {
		series.Total = series.Total.Add(byDate[d])
		if byDate[d].GreaterThan(peak) {
			peak = byDate[d]
		}
	}

	for _, d := range dates {
		day := DailyRevenue{Date: d, Revenue: byDate[d].Round(2)}
		if peak.IsPositive() {
			day.PercentOfMax = round1(byDate[d].Div(peak).Mul(decimal.NewFromInt(100)).InexactFloat64())
		}
		series.Days = append(series.Days, day)
	}
	series.Total = series.Total.Round(2)

	return series
}

// countBy returns counts sorted by count descending, then key ascending.
func countBy(orders []domain.Order, key func(domain.Order) string, fallback string) []Breakdown {
	counts := make(map[string]int)
	for _, o := range orders {
		k := strings.TrimSpace(key(o))
		if k == "" {
			k = fallback
		}
		counts[k]++
	}

	out := make([]Breakdown, 0, len(counts))
	for k, n := range counts {
		out = append(out, Breakdown{Key: k, Count: n, Percentage: percent(n, len(orders))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})

	return out
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
