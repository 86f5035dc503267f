package parser

import (
	"bufio"
	"io"
	"strings"

	"mathatom/internal/doctree"
)

// targetPageChars is the approximate size of a synthetic page when the
// source format has no native page boundaries.
const targetPageChars = 6000

// TextParser handles plain text and LaTeX source files.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (string, []doctree.Page, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var paragraphs []string
	var current strings.Builder
	sawFormFeed := false

	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "\f") {
			sawFormFeed = true
		}
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if err := scanner.Err(); err != nil {
		return "", nil, err
	}

	title := titleFromFilename(filename)

	// Honor explicit form-feed page breaks; otherwise group paragraphs
	// into pages of roughly targetPageChars.
	if sawFormFeed {
		return title, pagesFromFormFeeds(paragraphs), nil
	}
	return title, GroupIntoPages(paragraphs, targetPageChars), nil
}

func pagesFromFormFeeds(paragraphs []string) []doctree.Page {
	full := strings.Join(paragraphs, "\n\n")
	var pages []doctree.Page
	for _, part := range strings.Split(full, "\f") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pages = append(pages, doctree.Page{Index: len(pages) + 1, Text: part})
	}
	return pages
}

// GroupIntoPages packs paragraphs into sequential pages of roughly
// targetChars each, never splitting inside a paragraph.
func GroupIntoPages(paragraphs []string, targetChars int) []doctree.Page {
	if targetChars <= 0 {
		targetChars = targetPageChars
	}
	var pages []doctree.Page
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		pages = append(pages, doctree.Page{Index: len(pages) + 1, Text: current.String()})
		current.Reset()
	}
	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para) > targetChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return pages
}
