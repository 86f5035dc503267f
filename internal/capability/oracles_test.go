package capability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStripCodeBlock(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  {\"a\":1}  ", "{\"a\":1}"},
	}
	for _, c := range cases {
		if got := stripCodeBlock(c.in); got != c.want {
			t.Errorf("stripCodeBlock(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"x": 2}`, `{"x": 2}`},
		{"Here is the result:\n{\"x\": 2}\nHope that helps!", `{"x": 2}`},
		{"```json\n{\"x\": 2}\n```", `{"x": 2}`},
	}
	for _, c := range cases {
		if got := extractJSONObject(c.in); got != c.want {
			t.Errorf("extractJSONObject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&RetryableError{StatusCode: 429, Message: "rate limited"}) {
		t.Error("RetryableError should be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	wrapped := errors.Join(errors.New("context"), &RetryableError{StatusCode: 503})
	if !IsRetryable(wrapped) {
		t.Error("wrapped RetryableError should be retryable")
	}
}

func TestBackoff_BoundedAndGrowing(t *testing.T) {
	prevBase := time.Duration(0)
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(attempt)) * time.Second
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d > base+base/2 {
			t.Errorf("Backoff(%d) = %v outside [%v, %v]", attempt, d, base, base+base/2)
		}
		if base < prevBase {
			t.Errorf("base shrank at attempt %d", attempt)
		}
		prevBase = base
	}
}

type scriptedProvider struct {
	resp string
	err  error
}

func (s scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return s.resp, s.err
}

func (s scriptedProvider) ModelInfo() string { return "scripted" }

func TestAtomicityOracle_ParsesFencedJSON(t *testing.T) {
	o := NewAtomicityOracle(scriptedProvider{
		resp: "```json\n{\"is_atomic\": false, \"segments\": [{\"title\": \"A\", \"atom_type_hint\": \"lemma\", \"text\": \"t\"}, {\"title\": \"B\", \"text\": \"u\"}]}\n```",
	})
	v, err := o.Check(context.Background(), "some content", false)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.IsAtomic {
		t.Error("expected non-atomic verdict")
	}
	if len(v.Segments) != 2 || v.Segments[0].AtomTypeHint != "lemma" {
		t.Errorf("segments = %+v", v.Segments)
	}
}

func TestAtomicityOracle_RejectsGarbage(t *testing.T) {
	o := NewAtomicityOracle(scriptedProvider{resp: "I am not JSON at all"})
	if _, err := o.Check(context.Background(), "content", false); err == nil {
		t.Error("expected parse error")
	}
}

func TestSummaryOracle_NormalizesNullStrings(t *testing.T) {
	o := NewSummaryOracle(scriptedProvider{
		resp: `{"description": "d", "statement": "s", "proof": "null", "lemmas": null, "related_content": "NULL"}`,
	})
	r, err := o.Summarize(context.Background(), "T", "theorem", "content")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if r.Proof != "" || r.RelatedContent != "" {
		t.Errorf("expected null strings cleared, got proof=%q related=%q", r.Proof, r.RelatedContent)
	}
	if len(r.Lemmas) != 0 {
		t.Errorf("lemmas = %v, want empty", r.Lemmas)
	}
}

func TestClassifier(t *testing.T) {
	meta, err := NewClassifier(scriptedProvider{resp: "meta"}).Classify(context.Background(), "Preface", "thanks")
	if err != nil || !meta {
		t.Errorf("expected meta verdict, got %v/%v", meta, err)
	}
	meta, err = NewClassifier(scriptedProvider{resp: "Knowledge."}).Classify(context.Background(), "X", "y")
	if err != nil || meta {
		t.Errorf("expected knowledge verdict, got %v/%v", meta, err)
	}
}

func TestCompleteWithRetry_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	p := funcProvider(func(req CompletionRequest) (string, error) {
		calls++
		return "", errors.New("bad request")
	})
	if _, err := completeWithRetry(context.Background(), p, CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

type funcProvider func(req CompletionRequest) (string, error)

func (f funcProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(req)
}

func (f funcProvider) ModelInfo() string { return "func" }
