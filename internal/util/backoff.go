package util

import "time"

// maxBackoff caps the exponential growth so a high retry budget does not
// stall the pipeline for minutes.
const maxBackoff = 30 * time.Second

// Backoff returns the wait before retry number attempt (0-based):
// 1s, 2s, 4s, ... capped at maxBackoff.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
