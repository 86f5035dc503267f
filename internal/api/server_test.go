package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mathatom/internal/capability"
	"mathatom/internal/config"
	"mathatom/internal/doctree"
	"mathatom/internal/emit"
	"mathatom/internal/pipeline"
	"mathatom/internal/store"
)

const testKey = "test-api-key"

func newTestServer(t *testing.T) (*Server, *pipeline.Orchestrator, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		APIKey:         testKey,
		WorkerCount:    1,
		MaxQueueSize:   4,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
	}
	log := slog.New(slog.DiscardHandler)
	// Workers are never started; submitted jobs sit in the queue, which is
	// what the handler tests need.
	orch := pipeline.NewOrchestrator(cfg, pipeline.Oracles{}, db, log)
	return NewServer(orch, capability.NewLLMStats(time.Minute), log, cfg), orch, db
}

func doRequest(s *Server, req *http.Request, auth bool) *httptest.ResponseRecorder {
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fmt.Fprint(fw, content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth_NoAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest("GET", "/health", nil), false)
	if rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest("GET", "/api/jobs", nil), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("auth failure should be a json error, got %q", rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/jobs", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("non-bearer scheme: %d, want 401", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs", nil), true)
	if rec.Code != http.StatusOK {
		t.Errorf("good key: %d, want 200", rec.Code)
	}
}

func TestSubmit(t *testing.T) {
	s, orch, _ := newTestServer(t)
	body, ctype := multipartUpload(t, "analysis.md", "# Chapter 1\n\nSome content.")
	req := httptest.NewRequest("POST", "/api/documents", body)
	req.Header.Set("Content-Type", ctype)

	rec := doRequest(s, req, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		PollURL string `json:"poll_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID == "" || resp.Status != string(pipeline.StatusQueued) {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.HasSuffix(resp.PollURL, resp.JobID) {
		t.Errorf("poll_url = %q", resp.PollURL)
	}
	if orch.GetJob(resp.JobID) == nil {
		t.Error("job not registered with orchestrator")
	}
}

func TestSubmit_UnsupportedExtension(t *testing.T) {
	s, _, _ := newTestServer(t)
	body, ctype := multipartUpload(t, "image.png", "not a document")
	req := httptest.NewRequest("POST", "/api/documents", body)
	req.Header.Set("Content-Type", ctype)

	rec := doRequest(s, req, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("submit png = %d, want 400", rec.Code)
	}
}

func TestSubmit_TooLarge(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.cfg.MaxUploadBytes = 16
	body, ctype := multipartUpload(t, "big.md", strings.Repeat("x", 64))
	req := httptest.NewRequest("POST", "/api/documents", body)
	req.Header.Set("Content-Type", ctype)

	rec := doRequest(s, req, true)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized = %d, want 413", rec.Code)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest("GET", "/api/jobs/nope", nil), true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d, want 404", rec.Code)
	}
}

func TestJobStatus_StoreFallback(t *testing.T) {
	s, _, db := newTestServer(t)
	now := time.Now()
	if err := db.SaveJob(store.JobRecord{ID: "old-job", Filename: "a.md", Stage: "completed", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	rec := doRequest(s, httptest.NewRequest("GET", "/api/jobs/old-job", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("evicted job = %d, want 200 via store", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"completed"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCancelJob(t *testing.T) {
	s, orch, _ := newTestServer(t)
	job := &pipeline.Job{ID: "c1", Status: pipeline.StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := orch.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := doRequest(s, httptest.NewRequest("DELETE", "/api/jobs/c1", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d", rec.Code)
	}
	if got := job.Snapshot().Status; got != pipeline.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got)
	}

	rec = doRequest(s, httptest.NewRequest("DELETE", "/api/jobs/unknown", nil), true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown = %d, want 404", rec.Code)
	}
}

func TestJobTreeAndArtifacts(t *testing.T) {
	s, _, db := newTestServer(t)

	root := &doctree.Node{
		ID: "book", Title: "Book", Kind: doctree.KindBook,
		Category: doctree.CategoryKnowledge, Status: doctree.StatusPending,
		Children: []*doctree.Node{
			{
				ID: "thm", Title: "Theorem 1", Kind: doctree.KindContent, Level: 1,
				Category: doctree.CategoryKnowledge, Status: doctree.StatusFilled,
				AtomType: doctree.AtomTheorem,
				Atom:     &doctree.AtomContent{Description: "d", Statement: "s"},
			},
		},
	}
	tree, err := doctree.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := db.SaveSnapshot("j1", "linking", tree); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	arts := []emit.Artifact{
		{Path: "index.md", Content: "# Book"},
		{Path: "links.json", Content: `{"nodes":[]}`},
	}
	if err := db.SaveArtifacts("j1", arts); err != nil {
		t.Fatalf("SaveArtifacts: %v", err)
	}

	rec := doRequest(s, httptest.NewRequest("GET", "/api/jobs/j1/tree", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("tree = %d", rec.Code)
	}
	var treeResp struct {
		Stage    string         `json:"stage"`
		Nodes    int            `json:"nodes"`
		Statuses map[string]int `json:"statuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &treeResp); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if treeResp.Stage != "linking" || treeResp.Nodes != 2 || treeResp.Statuses["filled"] != 1 {
		t.Errorf("tree resp = %+v", treeResp)
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs/j1/artifacts", nil), true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "index.md") {
		t.Errorf("artifacts = %d, %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs/j1/artifacts/index.md", nil), true)
	if rec.Code != http.StatusOK || rec.Body.String() != "# Book" {
		t.Errorf("artifact body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("markdown content type = %q", ct)
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs/j1/artifacts/links.json", nil), true)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("links.json content type = %q", ct)
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs/j1/artifacts/nope.md", nil), true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing artifact = %d, want 404", rec.Code)
	}

	rec = doRequest(s, httptest.NewRequest("GET", "/api/jobs/empty/artifacts", nil), true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("no artifacts = %d, want 404", rec.Code)
	}
}

func TestLLMStatsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(s, httptest.NewRequest("GET", "/api/stats/llm", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "queue_depth") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"doc.pdf", "doc.pdf"},
		{"../../etc/passwd", "passwd"},
		{"dir/nested.md", "nested.md"},
		{"", "unnamed"},
		{".", "unnamed"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
