package parser

import (
	"strings"
	"testing"
)

func TestForFile(t *testing.T) {
	cases := []struct {
		filename string
		wantErr  bool
	}{
		{"notes.txt", false},
		{"paper.tex", false},
		{"book.md", false},
		{"scan.pdf", false},
		{"thesis.docx", false},
		{"page.html", false},
		{"page.htm", false},
		{"archive.zip", true},
		{"noextension", true},
	}
	for _, c := range cases {
		_, err := ForFile(c.filename)
		if (err != nil) != c.wantErr {
			t.Errorf("ForFile(%q) error = %v, wantErr %v", c.filename, err, c.wantErr)
		}
	}
}

func TestIsSupportedExtension(t *testing.T) {
	if !IsSupportedExtension("a.MD") {
		t.Error("extension match should be case-insensitive")
	}
	if IsSupportedExtension("a.exe") {
		t.Error("unexpected support for .exe")
	}
}

func TestTextParser_FormFeedPages(t *testing.T) {
	input := "page one text\n\fpage two text\n\fpage three"
	title, pages, err := (&TextParser{}).Parse(strings.NewReader(input), "doc.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if title != "doc" {
		t.Errorf("title = %q, want %q", title, "doc")
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[1].Index != 2 || !strings.Contains(pages[1].Text, "page two") {
		t.Errorf("page 2 = %+v", pages[1])
	}
}

func TestTextParser_GroupsParagraphs(t *testing.T) {
	var sb strings.Builder
	for range 10 {
		sb.WriteString(strings.Repeat("x", 300))
		sb.WriteString("\n\n")
	}
	_, pages, err := (&TextParser{}).Parse(strings.NewReader(sb.String()), "doc.txt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pages) != 1 {
		t.Errorf("3000 chars should fit one synthetic page, got %d", len(pages))
	}
}

func TestGroupIntoPages_SplitsAtTarget(t *testing.T) {
	paras := []string{
		strings.Repeat("a", 400),
		strings.Repeat("b", 400),
		strings.Repeat("c", 400),
	}
	pages := GroupIntoPages(paras, 500)
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Index != i+1 {
			t.Errorf("page %d index = %d", i, p.Index)
		}
	}
	// Paragraphs are never split.
	if pages[0].Text != strings.Repeat("a", 400) {
		t.Error("paragraph was split across pages")
	}
}

func TestMarkdownParser(t *testing.T) {
	input := `# Real Analysis

Opening remarks.

## Sequences

A sequence converges when it has a limit.

## Series

Partial sums.
`
	title, pages, err := (&MarkdownParser{}).Parse(strings.NewReader(input), "book.md")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if title != "Real Analysis" {
		t.Errorf("title = %q, want first h1", title)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages (title, two h2 sections), got %d", len(pages))
	}
	if !strings.Contains(pages[1].Text, "## Sequences") {
		t.Errorf("heading line missing from page text: %q", pages[1].Text)
	}
	if !strings.Contains(pages[1].Text, "A sequence converges") {
		t.Errorf("body missing from page text: %q", pages[1].Text)
	}
	if strings.Count(pages[1].Text, "A sequence converges") != 1 {
		t.Errorf("body text duplicated: %q", pages[1].Text)
	}
}

func TestHTMLParser(t *testing.T) {
	input := `<html><head><title>Algebra Notes</title></head><body>
<nav>skip this</nav>
<h1>Groups</h1>
<p>A group is a set with an operation.</p>
<h2>Subgroups</h2>
<p>A subset closed under the operation.</p>
<script>ignore()</script>
</body></html>`
	title, pages, err := (&HTMLParser{}).Parse(strings.NewReader(input), "notes.html")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if title != "Algebra Notes" {
		t.Errorf("title = %q", title)
	}
	all := ""
	for _, p := range pages {
		all += p.Text + "\n"
	}
	if !strings.Contains(all, "A group is a set") {
		t.Error("body paragraph missing")
	}
	if strings.Contains(all, "skip this") || strings.Contains(all, "ignore()") {
		t.Error("nav/script content must be excluded")
	}
	if !strings.Contains(all, "# Groups") {
		t.Error("headings should be preserved as markdown lines")
	}
}
