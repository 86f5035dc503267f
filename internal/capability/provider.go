package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Vendor selects a completion backend.
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorOpenAI Vendor = "openai"
	VendorGoogle Vendor = "google"
)

// CompletionRequest is one prompt sent to a provider.
type CompletionRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
}

// Provider is a text-completion backend. All oracle capabilities are built
// on this single method so swapping vendors is a configuration change.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ModelInfo() string
}

// NewProvider constructs the provider for a vendor. stats may be nil.
func NewProvider(vendor Vendor, apiKey, model string, stats *LLMStats) (Provider, error) {
	switch vendor {
	case VendorClaude:
		return NewClaudeProvider(apiKey, model, stats), nil
	case VendorOpenAI:
		return NewOpenAIProvider(apiKey, model, stats), nil
	case VendorGoogle:
		return NewGoogleProvider(apiKey, model, stats), nil
	default:
		return nil, fmt.Errorf("unknown provider vendor: %s", vendor)
	}
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeBlock removes a markdown code fence wrapper if present. Models
// sometimes fence JSON despite instructions not to.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSONObject pulls the outermost JSON object out of a response that
// may carry prose around it.
func extractJSONObject(s string) string {
	s = stripCodeBlock(s)
	if strings.HasPrefix(s, "{") {
		return s
	}
	if m := jsonObjectRe.FindString(s); m != "" {
		return m
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
