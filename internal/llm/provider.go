// Package llm is the model-assisted extraction layer. Providers return a
// structured candidate field set with evidence quotes; the orchestrator
// verifies every quote against the source text before trusting anything.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Extract asks the model for the missing incident fields.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the input for model-assisted extraction.
type ExtractRequest struct {
	// Text is the document's cleaned text (clipped by the provider).
	Text string

	// Known holds fields the deterministic layer already resolved above
	// the confidence threshold. They are context only; the model is not
	// asked to re-extract them.
	Known map[string]string

	// Missing lists the fields the model is asked to find.
	Missing []string

	// Published is the article's publication date, for normalizing
	// partial dates.
	Published *time.Time
}

// Candidate is the structured field set a model returns.
type Candidate struct {
	// Fields maps field name to extracted value (dates as YYYY-MM-DD,
	// counts as digits). Absent keys mean the model could not find the
	// field.
	Fields map[string]string `json:"fields"`

	// Evidence carries one verbatim quote per extracted field. Offset is
	// filled in during verification, not by the model.
	Evidence []model.Evidence `json:"evidence"`

	SAR     []SARSegment `json:"sar,omitempty"`
	Bullets []string     `json:"summary_bullets,omitempty"`

	// Confidence is the model's self-reported extraction confidence.
	Confidence float64 `json:"confidence"`
}

// SARSegment is the wire form of a search/rescue/recovery segment; dates
// travel as YYYY-MM-DD strings.
type SARSegment struct {
	Agency    string `json:"agency,omitempty"`
	OpType    string `json:"op_type"`
	StartedAt string `json:"started_at,omitempty"`
	EndedAt   string `json:"ended_at,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// ToModel converts a wire SAR segment, dropping unparseable dates.
func (s SARSegment) ToModel() model.SARSegment {
	out := model.SARSegment{
		Agency:  strings.TrimSpace(s.Agency),
		Outcome: strings.TrimSpace(s.Outcome),
	}
	switch strings.ToLower(strings.TrimSpace(s.OpType)) {
	case "rescue":
		out.OpType = model.SAROpRescue
	case "recovery":
		out.OpType = model.SAROpRecovery
	default:
		out.OpType = model.SAROpSearch
	}
	if t, err := time.Parse(model.DateLayout, s.StartedAt); err == nil {
		out.StartedAt = &t
	}
	if t, err := time.Parse(model.DateLayout, s.EndedAt); err == nil {
		out.EndedAt = &t
	}
	return out
}

// ExtractResponse contains the model's output plus usage metadata.
type ExtractResponse struct {
	Candidate  Candidate
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration.
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// MaxPassageChars clips the passage included in the prompt
	MaxPassageChars int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:        "", // Disabled by default
		Model:           "",
		Timeout:         30,
		MaxTokens:       1500,
		MaxPassageChars: 8000,
	}
}

const systemPrompt = "You are a mountain-incident information extractor. " +
	"Extract only facts present in the passage. If a field is unknown, omit it. " +
	"Never invent places, dates or counts. " +
	"Every field you set MUST come with one evidence entry quoting the exact passage text that supports it, character for character. " +
	"Return STRICT JSON matching the requested schema."

// BuildPrompt constructs the extraction prompt. Known fields are presented
// as context so the model focuses on the genuinely missing information.
func BuildPrompt(req ExtractRequest, maxPassageChars int) string {
	passage := req.Text
	if maxPassageChars > 0 && len(passage) > maxPassageChars {
		passage = passage[:maxPassageChars]
	}

	var b strings.Builder
	b.WriteString("Passage:\n```\n")
	b.WriteString(passage)
	b.WriteString("\n```\n\n")

	if req.Published != nil {
		fmt.Fprintf(&b, "Article published: %s (use its year when the passage omits one).\n\n", req.Published.Format(model.DateLayout))
	}

	if len(req.Known) > 0 {
		b.WriteString("Already known (do not re-extract):\n")
		known, _ := json.Marshal(req.Known)
		b.Write(known)
		b.WriteString("\n\n")
	}

	b.WriteString("Extract these fields if the passage supports them:\n")
	for _, field := range req.Missing {
		fmt.Fprintf(&b, "- %s\n", field)
	}

	b.WriteString(`
Rules:
- jurisdiction is one of: BC, AB, WA.
- activity is one of: alpinism, climbing, hiking, scrambling, ski-mountaineering, unknown.
- Dates are YYYY-MM-DD; counts are plain digits.
- For every field you set, add {"field": <name>, "quote": <verbatim passage text>} to "evidence". The quote must appear in the passage exactly.
- Populate "sar" with search/rescue/recovery segments if agencies are mentioned.
- Provide 3-6 "summary_bullets".
- Set "confidence" in [0,1] for the extraction overall.

Respond with JSON only:
{"fields": {...}, "evidence": [...], "sar": [...], "summary_bullets": [...], "confidence": 0.0}
`)
	return b.String()
}

// ParseCandidate decodes a model response into a Candidate, tolerating a
// fenced code block around the JSON.
func ParseCandidate(raw string) (*Candidate, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}

	var c Candidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode candidate JSON: %w", err)
	}
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	return &c, nil
}
