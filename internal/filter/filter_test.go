package filter

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"mathatom/internal/capability"
	"mathatom/internal/doctree"
)

func TestClassifyTitle(t *testing.T) {
	cases := []struct {
		title   string
		want    doctree.Category
		certain bool
	}{
		{"Preface", doctree.CategoryMeta, true},
		{"Table of Contents", doctree.CategoryMeta, true},
		{"Bibliography", doctree.CategoryMeta, true},
		{"About the Author", doctree.CategoryMeta, true},
		{"Chapter 3: Integration", doctree.CategoryKnowledge, true},
		{"Theorem 2.1", doctree.CategoryKnowledge, true},
		{"Some Unmarked Heading", doctree.CategoryKnowledge, false},
	}
	for _, c := range cases {
		got, certain := ClassifyTitle(c.title)
		if got != c.want || certain != c.certain {
			t.Errorf("ClassifyTitle(%q) = (%q, %v), want (%q, %v)", c.title, got, certain, c.want, c.certain)
		}
	}
}

type fakeProvider struct {
	resp string
	err  error
}

func (f *fakeProvider) Complete(ctx context.Context, req capability.CompletionRequest) (string, error) {
	return f.resp, f.err
}

func (f *fakeProvider) ModelInfo() string { return "fake" }

func filterTree(t *testing.T) *doctree.Tree {
	t.Helper()
	root := &doctree.Node{
		ID: "book", Title: "Book", Kind: doctree.KindBook,
		Children: []*doctree.Node{
			{
				ID: "pref", Title: "Preface", Kind: doctree.KindSection, Level: 1,
				Children: []*doctree.Node{
					{ID: "pref-1", Title: "Theorem-looking heading", Kind: doctree.KindContent, Level: 2},
				},
			},
			{ID: "ch1", Title: "Chapter 1", Kind: doctree.KindChapter, Level: 1},
			{ID: "odd", Title: "Assorted Notes", Kind: doctree.KindContent, Level: 1, SourceText: "Misc text."},
		},
	}
	tree, err := doctree.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tree
}

func TestApply_KeywordsAndTransitivity(t *testing.T) {
	tree := filterTree(t)
	classifier := capability.NewClassifier(&fakeProvider{resp: "knowledge"})
	f := New(classifier, slog.New(slog.DiscardHandler))

	if err := f.Apply(context.Background(), tree); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if tree.Root.Category != doctree.CategoryKnowledge {
		t.Error("root must stay knowledge")
	}
	if tree.Lookup("pref").Category != doctree.CategoryMeta {
		t.Error("preface should be meta")
	}
	// Meta applies to the whole subtree even when the child title looks
	// like knowledge.
	if tree.Lookup("pref-1").Category != doctree.CategoryMeta {
		t.Error("preface child should inherit meta")
	}
	if tree.Lookup("ch1").Category != doctree.CategoryKnowledge {
		t.Error("chapter should be knowledge")
	}
	if tree.Lookup("odd").Category != doctree.CategoryKnowledge {
		t.Error("ambiguous node with knowledge verdict should be knowledge")
	}
}

func TestApply_ClassifierSaysMeta(t *testing.T) {
	tree := filterTree(t)
	classifier := capability.NewClassifier(&fakeProvider{resp: "meta"})
	f := New(classifier, slog.New(slog.DiscardHandler))

	if err := f.Apply(context.Background(), tree); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if tree.Lookup("odd").Category != doctree.CategoryMeta {
		t.Error("ambiguous node with meta verdict should be meta")
	}
}

func TestApply_ClassifierFailureDefaultsToKnowledge(t *testing.T) {
	tree := filterTree(t)
	classifier := capability.NewClassifier(&fakeProvider{err: errors.New("unavailable")})
	f := New(classifier, slog.New(slog.DiscardHandler))

	if err := f.Apply(context.Background(), tree); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	odd := tree.Lookup("odd")
	if odd.Category != doctree.CategoryKnowledge {
		t.Error("classifier failure must default to knowledge")
	}
	found := false
	for _, w := range odd.Warnings {
		if w.Kind == doctree.WarnClassificationUnavailable {
			found = true
		}
	}
	if !found {
		t.Error("expected classification_unavailable warning")
	}
}
