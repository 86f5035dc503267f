package store

import (
	"path/filepath"
	"testing"
	"time"

	"mathatom/internal/doctree"
	"mathatom/internal/emit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobRoundtrip(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().Truncate(time.Second)

	rec := JobRecord{ID: "j1", Filename: "a.pdf", Stage: "queued", CreatedAt: now, UpdatedAt: now}
	if err := s.SaveJob(rec); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	// Upsert updates the stage in place.
	rec.Stage = "atomizing"
	rec.UpdatedAt = now.Add(time.Minute)
	if err := s.SaveJob(rec); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Stage != "atomizing" || got.Filename != "a.pdf" {
		t.Errorf("got %+v", got)
	}

	jobs, err := s.ListJobs(10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}
}

func TestGetJob_Missing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetJob("nope"); err == nil {
		t.Error("expected error for missing job")
	}
}

func snapshotTree(t *testing.T) *doctree.Tree {
	t.Helper()
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
	return tree
}

func TestSnapshotVersioningAndRoundtrip(t *testing.T) {
	s := openTestStore(t)
	tree := snapshotTree(t)

	v1, err := s.SaveSnapshot("j1", "structuring", tree)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	v2, err := s.SaveSnapshot("j1", "atomizing", tree)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", v1, v2)
	}

	stage, got, err := s.LatestSnapshot("j1")
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if stage != "atomizing" {
		t.Errorf("stage = %q, want latest", stage)
	}
	if got.Len() != tree.Len() {
		t.Errorf("restored %d nodes, want %d", got.Len(), tree.Len())
	}
	thm := got.Lookup("thm")
	if thm == nil || thm.Status != doctree.StatusFilled || thm.Atom == nil {
		t.Errorf("restored node lost state: %+v", thm)
	}
	if err := got.Check(); err != nil {
		t.Errorf("restored tree invariants violated: %v", err)
	}
}

func TestLatestSnapshot_Missing(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.LatestSnapshot("nope"); err == nil {
		t.Error("expected error for missing snapshot")
	}
}

func TestArtifacts(t *testing.T) {
	s := openTestStore(t)
	arts := []emit.Artifact{
		{Path: "index.md", Content: "# Book"},
		{Path: "01-chapter-a/index.md", Content: "# A"},
	}
	if err := s.SaveArtifacts("j1", arts); err != nil {
		t.Fatalf("SaveArtifacts: %v", err)
	}

	got, err := s.ListArtifacts("j1")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(got))
	}

	one, err := s.GetArtifact("j1", "index.md")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if one.Content != "# Book" {
		t.Errorf("content = %q", one.Content)
	}

	// Re-saving replaces the whole set.
	if err := s.SaveArtifacts("j1", arts[:1]); err != nil {
		t.Fatalf("SaveArtifacts replace: %v", err)
	}
	got, _ = s.ListArtifacts("j1")
	if len(got) != 1 {
		t.Errorf("expected replacement to shrink set to 1, got %d", len(got))
	}
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	if err := s.SaveJob(JobRecord{ID: "j1", Filename: "f", Stage: "queued", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if _, err := s.SaveSnapshot("j1", "structuring", snapshotTree(t)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveArtifacts("j1", []emit.Artifact{{Path: "index.md", Content: "x"}}); err != nil {
		t.Fatalf("SaveArtifacts: %v", err)
	}

	if err := s.DeleteJob("j1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.GetJob("j1"); err == nil {
		t.Error("expected job gone")
	}
	if _, _, err := s.LatestSnapshot("j1"); err == nil {
		t.Error("expected snapshots gone")
	}
}
