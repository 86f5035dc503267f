package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// completeWithRetry runs one provider call with bounded retries on
// transient failures. Non-retryable errors return immediately.
func completeWithRetry(ctx context.Context, p Provider, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := range MaxRetries {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// ProposalNode is one node of the hierarchy proposal returned by the
// structure-classification capability. Spans index into the concatenated
// document text the prompt was built from.
type ProposalNode struct {
	Title     string          `json:"title"`
	Kind      string          `json:"kind"`
	Level     int             `json:"level"`
	SpanStart int             `json:"span_start"`
	SpanEnd   int             `json:"span_end"`
	Children  []*ProposalNode `json:"children"`
}

// StructureProposal is the candidate document hierarchy.
type StructureProposal struct {
	Title   string          `json:"title"`
	Author  string          `json:"author"`
	Outline []*ProposalNode `json:"outline"`
}

// maxStructureChars bounds the text sent for structure extraction.
const maxStructureChars = 60000

// StructureOracle proposes a document hierarchy from raw text.
type StructureOracle struct {
	provider Provider
}

func NewStructureOracle(p Provider) *StructureOracle {
	return &StructureOracle{provider: p}
}

// Propose asks for a hierarchy over text (page markers included).
func (o *StructureOracle) Propose(ctx context.Context, text, titleHint string) (*StructureProposal, error) {
	if len(text) > maxStructureChars {
		text = text[:maxStructureChars]
	}
	resp, err := completeWithRetry(ctx, o.provider, CompletionRequest{
		Prompt:      BuildStructurePrompt(text, titleHint),
		System:      structureSystemPrompt,
		MaxTokens:   16000,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var proposal StructureProposal
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &proposal); err != nil {
		return nil, fmt.Errorf("parse structure proposal: %w (raw: %s)", err, truncate(resp, 200))
	}
	if strings.EqualFold(proposal.Author, "null") {
		proposal.Author = ""
	}
	return &proposal, nil
}

// Segment is one proposed sub-division of a node's content.
type Segment struct {
	Title        string `json:"title"`
	AtomTypeHint string `json:"atom_type_hint"`
	Text         string `json:"text"`
}

// AtomicityVerdict is the oracle's answer for one node.
type AtomicityVerdict struct {
	IsAtomic bool      `json:"is_atomic"`
	AtomType string    `json:"atom_type"`
	Segments []Segment `json:"segments"`
	Reason   string    `json:"reason"`
}

// AtomicityOracle decides whether a node's content is a single atomic unit
// and, if not, how to divide it.
type AtomicityOracle struct {
	provider Provider
}

func NewAtomicityOracle(p Provider) *AtomicityOracle {
	return &AtomicityOracle{provider: p}
}

// Check classifies content. strict is set on the retry after a failed
// segmentation validation.
func (o *AtomicityOracle) Check(ctx context.Context, content string, strict bool) (*AtomicityVerdict, error) {
	resp, err := completeWithRetry(ctx, o.provider, CompletionRequest{
		Prompt:      BuildAtomicityPrompt(content, strict),
		System:      atomicitySystemPrompt,
		MaxTokens:   16000,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var verdict AtomicityVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &verdict); err != nil {
		return nil, fmt.Errorf("parse atomicity verdict: %w (raw: %s)", err, truncate(resp, 200))
	}
	return &verdict, nil
}

// maxSummaryChars bounds content sent for summarization.
const maxSummaryChars = 12000

// SummaryOracle produces the structured summary for an atomic node.
type SummaryOracle struct {
	provider Provider
}

func NewSummaryOracle(p Provider) *SummaryOracle {
	return &SummaryOracle{provider: p}
}

// SummaryResult mirrors AtomContent at the wire boundary; lemmas may arrive
// null rather than empty.
type SummaryResult struct {
	Description    string   `json:"description"`
	Statement      string   `json:"statement"`
	Proof          string   `json:"proof"`
	Lemmas         []string `json:"lemmas"`
	RelatedContent string   `json:"related_content"`
}

func (o *SummaryOracle) Summarize(ctx context.Context, title, atomTypeHint, content string) (*SummaryResult, error) {
	if len(content) > maxSummaryChars {
		content = content[:maxSummaryChars]
	}
	resp, err := completeWithRetry(ctx, o.provider, CompletionRequest{
		Prompt:      BuildSummaryPrompt(title, atomTypeHint, content),
		System:      summarySystemPrompt,
		MaxTokens:   4000,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	var result SummaryResult
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &result); err != nil {
		return nil, fmt.Errorf("parse summary: %w (raw: %s)", err, truncate(resp, 200))
	}
	if strings.EqualFold(result.Proof, "null") {
		result.Proof = ""
	}
	if strings.EqualFold(result.RelatedContent, "null") {
		result.RelatedContent = ""
	}
	return &result, nil
}

// Classifier answers knowledge/meta for ambiguous section titles.
type Classifier struct {
	provider Provider
}

func NewClassifier(p Provider) *Classifier {
	return &Classifier{provider: p}
}

// Classify returns true if the section is meta content.
func (c *Classifier) Classify(ctx context.Context, title, contentPreview string) (meta bool, err error) {
	resp, err := completeWithRetry(ctx, c.provider, CompletionRequest{
		Prompt:      BuildClassifyPrompt(title, contentPreview),
		System:      classifySystemPrompt,
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(resp), "meta"), nil
}
