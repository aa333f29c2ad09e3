package model

import "time"

// Document is one fetched-and-cleaned article. Immutable once cleaned.
type Document struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`                  // URL as fetched (after redirects)
	URLKey      string     `json:"url_key"`              // normalized dedup key
	Publisher   string     `json:"publisher,omitempty"`
	Title       string     `json:"title,omitempty"`
	Published   *time.Time `json:"date_published,omitempty"`
	CleanedText string     `json:"cleaned_text"`
	Signature   uint64     `json:"signature"`       // 64-bit near-duplicate signature
	SignatureOK bool       `json:"signature_ok"`    // false for empty text (never clusters on it)
	FetchedAt   time.Time  `json:"fetched_at"`
	CleanedAt   time.Time  `json:"cleaned_at"`
	Seq         int        `json:"seq"` // ingestion sequence, breaks last-resort ties
}
