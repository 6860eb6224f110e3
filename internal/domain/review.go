package domain

import (
	"encoding/json"
	"math"
)

// Review is the single stored shape for both admin-composed and
// customer-submitted reviews. Customer submissions start unapproved and
// unverified.
type Review struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Package   string    `json:"package,omitempty"`
	Content   string    `json:"content"`
	OrderCode string    `json:"orderCode,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	Verified  bool      `json:"verified"`
	Helpful   int       `json:"helpful"`
	Approved  bool      `json:"approved"`
}

// UnmarshalJSON also reads the customer-form field names (customerName,
// comment) and the "date" fallback used by older admin entries.
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		CustomerName string    `json:"customerName"`
		Comment      string    `json:"comment"`
		Date         Timestamp `json:"date"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if r.Name == "" {
		r.Name = aux.CustomerName
	}
	if r.Content == "" {
		r.Content = aux.Comment
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = aux.Date
	}

	return nil
}

type RatingBucket struct {
	Stars      int     `json:"stars"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ReviewStats struct {
	Total        int            `json:"total"`
	Average      float64        `json:"average"`
	Distribution []RatingBucket `json:"distribution"`
}

// SummarizeReviews computes the average rating (one decimal) and the count
// per star, five stars first. Ratings outside 1..5 are ignored.
func SummarizeReviews(reviews []Review) ReviewStats {
	counts := [6]int{}
	sum, total := 0, 0
	for _, r := range reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		counts[r.Rating]++
		sum += r.Rating
		total++
	}

	stats := ReviewStats{Total: total, Distribution: make([]RatingBucket, 0, 5)}
	if total > 0 {
		stats.Average = math.Round(float64(sum)/float64(total)*10) / 10
	}
	for stars := 5; stars >= 1; stars-- {
		bucket := RatingBucket{Stars: stars, Count: counts[stars]}
		if total > 0 {
			bucket.Percentage = math.Round(float64(counts[stars])/float64(total)*1000) / 10
		}
		stats.Distribution = append(stats.Distribution, bucket)
	}

	return stats
}
