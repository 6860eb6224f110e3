package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const MaxImageBytes = 2 * 1024 * 1024

var (
	ErrInvalidImage  = errors.New("image must be a base64 data URI")
	ErrImageTooLarge = errors.New("image exceeds 2MB")
)

type Post struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	Views     int       `json:"views"`
	Likes     int       `json:"likes"`
	Published bool      `json:"published"`
	ImageURL  string    `json:"imageUrl,omitempty"`
}

// UnmarshalJSON treats a missing "published" field as published.
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	aux := struct {
		*plain
		Published *bool `json:"published"`
	}{plain: (*plain)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.Published = aux.Published == nil || *aux.Published
	return nil
}

// ValidateImageURL accepts an empty string or a data:image/...;base64 URI
// whose payload decodes to at most MaxImageBytes.
func ValidateImageURL(uri string) error {
	if uri == "" {
		return nil
	}

	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return ErrInvalidImage
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return ErrImageTooLarge
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ErrInvalidImage
	}
	if len(decoded) > MaxImageBytes {
		return ErrImageTooLarge
	}

	return nil
}
