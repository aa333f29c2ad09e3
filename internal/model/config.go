package model

import "time"

// Config is the full pipeline configuration tree.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Cluster     ClusterConfig     `yaml:"cluster"`
	LLM         LLMConfig         `yaml:"llm"`
	Geo         GeoConfig         `yaml:"geo"`
	Store       StoreConfig       `yaml:"store"`
	Output      OutputConfig      `yaml:"output"`
}

// HTTPConfig controls article fetching.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy"`
	RespectRobots bool          `yaml:"respect_robots"`
}

// CacheConfig controls fetch/geocode caching.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// ConcurrencyConfig controls batch ingestion parallelism.
type ConcurrencyConfig struct {
	Workers           int     `yaml:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ExtractionConfig controls the deterministic/LLM orchestration.
type ExtractionConfig struct {
	// ConfidenceThreshold gates LLM fallback per field and review routing
	// on the overall score.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// RequiredFields drive LLM fallback and overall confidence.
	RequiredFields []string `yaml:"required_fields"`

	// Weights for the overall-confidence weighted mean, keyed by field.
	// Missing fields weigh 1.
	Weights map[string]float64 `yaml:"weights"`
}

// Tiebreak policies for canonical field election.
const (
	TiebreakEarliestPublished = "earliest_published"
	TiebreakFirstSeen         = "first_seen"
)

// ClusterConfig controls document-to-cluster assignment.
type ClusterConfig struct {
	// NearDupBits is the max Hamming distance between 64-bit signatures
	// still treated as a near-duplicate. False negatives are preferred
	// over false positives: a missed duplicate re-clusters, a wrong merge
	// does not undo.
	NearDupBits int `yaml:"near_dup_bits"`

	// DateWindowDays is the +/- window for spatio-temporal matching.
	DateWindowDays int `yaml:"date_window_days"`

	// RadiusKM is the max distance between resolved coordinates for
	// spatio-temporal matching.
	RadiusKM float64 `yaml:"radius_km"`

	// Tiebreak selects the canonical-election tie-break policy:
	// earliest_published (default, assumes earlier reporting is closer to
	// primary sourcing) or first_seen.
	Tiebreak string `yaml:"tiebreak"`
}

// LLMConfig controls the LLM-assisted extraction layer.
type LLMConfig struct {
	// Provider name: "openai", "anthropic", "ollama", "" (disabled)
	Provider string `yaml:"provider"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	Timeout    int `yaml:"timeout"` // seconds
	MaxTokens  int `yaml:"max_tokens"`
	MaxRetries int `yaml:"max_retries"`

	// MaxPassageChars clips the passage sent to the model.
	MaxPassageChars int `yaml:"max_passage_chars"`
}

// GeoConfig controls place-name geocoding.
type GeoConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// StoreConfig selects the persistence adapter.
type StoreConfig struct {
	// Driver: "memory" or "sqlite"
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Verbose bool   `yaml:"verbose"`
	JSON    string `yaml:"json"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Ridgeline/0.1 (+https://github.com/kvollan/ridgeline)",
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:           4,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Extraction: ExtractionConfig{
			ConfidenceThreshold: 0.7,
			RequiredFields:      DefaultRequiredFields(),
			Weights:             map[string]float64{},
		},
		Cluster: ClusterConfig{
			NearDupBits:    3,
			DateWindowDays: 7,
			RadiusKM:       5,
			Tiebreak:       TiebreakEarliestPublished,
		},
		LLM: LLMConfig{
			Provider:        "",
			Timeout:         30,
			MaxTokens:       1500,
			MaxRetries:      3,
			MaxPassageChars: 8000,
		},
		Geo: GeoConfig{
			Enabled:   false,
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "Ridgeline/0.1",
			Timeout:   10,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
	}
}
