package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kvollan/ridgeline/internal/model"
)

func TestBuildPrompt_IncludesPassageAndMissingFields(t *testing.T) {
	published := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	req := ExtractRequest{
		Text:      "Three climbers were killed on Atwell Peak.",
		Known:     map[string]string{model.FieldJurisdiction: "BC"},
		Missing:   []string{model.FieldCausePrimary, model.FieldDateOfDeath},
		Published: &published,
	}

	prompt := BuildPrompt(req, 8000)

	if !strings.Contains(prompt, "Atwell Peak") {
		t.Error("Expected prompt to contain the passage")
	}
	if !strings.Contains(prompt, model.FieldCausePrimary) {
		t.Error("Expected prompt to list missing field cause_primary")
	}
	if !strings.Contains(prompt, `"jurisdiction":"BC"`) {
		t.Error("Expected prompt to carry known fields as context")
	}
	if !strings.Contains(prompt, "2024-06-05") {
		t.Error("Expected prompt to mention the publication date")
	}
}

func TestBuildPrompt_ClipsLongPassages(t *testing.T) {
	req := ExtractRequest{
		Text:    strings.Repeat("a", 500),
		Missing: []string{model.FieldNFatalities},
	}

	prompt := BuildPrompt(req, 100)

	if strings.Contains(prompt, strings.Repeat("a", 101)) {
		t.Error("Expected passage to be clipped to 100 chars")
	}
	if !strings.Contains(prompt, strings.Repeat("a", 100)) {
		t.Error("Expected clipped passage to be present")
	}
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, c *Candidate)
	}{
		{
			name: "plain JSON",
			raw:  `{"fields": {"n_fatalities": "3"}, "evidence": [{"field": "n_fatalities", "quote": "Three climbers were killed"}], "confidence": 0.8}`,
			check: func(t *testing.T, c *Candidate) {
				if c.Fields["n_fatalities"] != "3" {
					t.Errorf("Expected n_fatalities 3, got %q", c.Fields["n_fatalities"])
				}
				if len(c.Evidence) != 1 || c.Evidence[0].Quote != "Three climbers were killed" {
					t.Errorf("Unexpected evidence: %+v", c.Evidence)
				}
				if c.Confidence != 0.8 {
					t.Errorf("Expected confidence 0.8, got %f", c.Confidence)
				}
			},
		},
		{
			name: "fenced JSON",
			raw:  "```json\n{\"fields\": {\"jurisdiction\": \"BC\"}, \"confidence\": 0.5}\n```",
			check: func(t *testing.T, c *Candidate) {
				if c.Fields["jurisdiction"] != "BC" {
					t.Errorf("Expected jurisdiction BC, got %q", c.Fields["jurisdiction"])
				}
			},
		},
		{
			name: "confidence clamped",
			raw:  `{"fields": {}, "confidence": 1.7}`,
			check: func(t *testing.T, c *Candidate) {
				if c.Confidence != 1.0 {
					t.Errorf("Expected confidence clamped to 1.0, got %f", c.Confidence)
				}
			},
		},
		{
			name: "missing fields map is initialized",
			raw:  `{"confidence": 0.2}`,
			check: func(t *testing.T, c *Candidate) {
				if c.Fields == nil {
					t.Error("Expected Fields map to be non-nil")
				}
			},
		},
		{
			name:    "not JSON",
			raw:     "I could not extract anything.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCandidate(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestSARSegment_ToModel(t *testing.T) {
	seg := SARSegment{
		Agency:    "  Squamish SAR ",
		OpType:    "Recovery",
		StartedAt: "2024-06-03",
		EndedAt:   "2024-06-04",
		Outcome:   "bodies recovered",
	}

	m := seg.ToModel()

	if m.Agency != "Squamish SAR" {
		t.Errorf("Expected trimmed agency, got %q", m.Agency)
	}
	if m.OpType != model.SAROpRecovery {
		t.Errorf("Expected recovery op type, got %q", m.OpType)
	}
	if m.StartedAt == nil || m.StartedAt.Format(model.DateLayout) != "2024-06-03" {
		t.Errorf("Unexpected start date: %v", m.StartedAt)
	}
	if m.EndedAt == nil || m.EndedAt.Format(model.DateLayout) != "2024-06-04" {
		t.Errorf("Unexpected end date: %v", m.EndedAt)
	}
}

func TestSARSegment_ToModel_BadDates(t *testing.T) {
	m := SARSegment{OpType: "search", StartedAt: "last Tuesday"}.ToModel()

	if m.OpType != model.SAROpSearch {
		t.Errorf("Expected search op type, got %q", m.OpType)
	}
	if m.StartedAt != nil {
		t.Errorf("Expected unparseable date to be dropped, got %v", m.StartedAt)
	}
}

func TestAnthropicProvider_Extract_Success(t *testing.T) {
	// Mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}

		resp := anthropicResponse{
			ID:   "msg_123",
			Type: "message",
			Role: "assistant",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{
					Type: "text",
					Text: `{"fields": {"cause_primary": "avalanche"}, "evidence": [{"field": "cause_primary", "quote": "swept by an avalanche"}], "confidence": 0.9}`,
				},
			},
			Model: "claude-3-5-sonnet-20241022",
			Usage: struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			}{
				InputTokens:  50,
				OutputTokens: 50,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	config := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "claude-3-5-sonnet-20241022",
		Timeout: 5,
	}
	provider, err := NewAnthropicProvider(config)
	if err != nil {
		t.Fatalf("NewAnthropicProvider failed: %v", err)
	}

	resp, err := provider.Extract(context.Background(), ExtractRequest{
		Text:    "Three climbers were swept by an avalanche.",
		Missing: []string{model.FieldCausePrimary},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if resp.Candidate.Fields[model.FieldCausePrimary] != "avalanche" {
		t.Errorf("Expected cause_primary avalanche, got %q", resp.Candidate.Fields[model.FieldCausePrimary])
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Expected 100 tokens used, got %d", resp.TokensUsed)
	}
}

func TestAnthropicProvider_Extract_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type": "error",
			"error": map[string]string{
				"type":    "authentication_error",
				"message": "invalid x-api-key",
			},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "bad-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("NewAnthropicProvider failed: %v", err)
	}

	_, err = provider.Extract(context.Background(), ExtractRequest{Text: "x", Missing: []string{model.FieldNFatalities}})
	if err == nil {
		t.Fatal("Expected error from 401 response")
	}
	if !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Errorf("Expected API error message, got: %v", err)
	}
}

func TestOllamaProvider_Extract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode request: %v", err)
		}
		if req.Format != "json" {
			t.Errorf("Expected format json, got %q", req.Format)
		}
		if req.Stream {
			t.Error("Expected stream false")
		}

		resp := ollamaResponse{
			Model:           req.Model,
			Response:        `{"fields": {"n_fatalities": "2"}, "confidence": 0.6}`,
			Done:            true,
			PromptEvalCount: 40,
			EvalCount:       20,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b", Timeout: 5})
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}

	resp, err := provider.Extract(context.Background(), ExtractRequest{
		Text:    "Two hikers died.",
		Missing: []string{model.FieldNFatalities},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if resp.Candidate.Fields[model.FieldNFatalities] != "2" {
		t.Errorf("Expected n_fatalities 2, got %q", resp.Candidate.Fields[model.FieldNFatalities])
	}
	if resp.TokensUsed != 60 {
		t.Errorf("Expected 60 tokens used, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_Extract_RequiresModel(t *testing.T) {
	provider, err := NewOllamaProvider(Config{BaseURL: "http://localhost:11434", Timeout: 5})
	if err != nil {
		t.Fatalf("NewOllamaProvider failed: %v", err)
	}

	_, err = provider.Extract(context.Background(), ExtractRequest{Text: "x", Missing: []string{model.FieldNFatalities}})
	if err == nil {
		t.Fatal("Expected error when model is unset")
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantNil  bool
		wantErr  bool
		wantName string
	}{
		{
			name:    "disabled when empty",
			config:  Config{Provider: ""},
			wantNil: true,
		},
		{
			name:     "openai",
			config:   Config{Provider: "openai", APIKey: "k"},
			wantName: "openai",
		},
		{
			name:     "anthropic",
			config:   Config{Provider: "anthropic", APIKey: "k"},
			wantName: "anthropic",
		},
		{
			name:     "claude alias",
			config:   Config{Provider: "claude", APIKey: "k"},
			wantName: "anthropic",
		},
		{
			name:     "ollama",
			config:   Config{Provider: "ollama", Model: "mistral"},
			wantName: "ollama",
		},
		{
			name:    "openai requires key",
			config:  Config{Provider: "openai"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			config:  Config{Provider: "bard"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantNil {
				if p != nil {
					t.Errorf("Expected nil provider, got %v", p)
				}
				return
			}
			if p == nil || p.Name() != tt.wantName {
				t.Errorf("Expected provider %q, got %v", tt.wantName, p)
			}
		})
	}
}
