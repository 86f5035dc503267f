package atomizer

import (
	"fmt"
	"strings"

	"mathatom/internal/capability"
)

// normalizeWhitespace collapses all runs of whitespace to single spaces.
// Segmentation is compared under this normalization: the oracle may reflow
// line breaks, but must not add, drop, or reorder content.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// balancedMathDelimiters reports whether every LaTeX math delimiter opened
// in s is closed in s. A segment boundary inside a math expression fails
// this check and rejects the segmentation.
func balancedMathDelimiters(s string) bool {
	dollars := 0
	inlineOpen := 0  // \( ... \)
	displayOpen := 0 // \[ ... \]
	envOpen := 0     // \begin{...} ... \end{...}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				switch s[i+1] {
				case '(':
					inlineOpen++
					i++
				case ')':
					inlineOpen--
					i++
				case '[':
					displayOpen++
					i++
				case ']':
					displayOpen--
					i++
				case '$', '\\':
					i++ // escaped dollar or backslash, not a delimiter
				default:
					if strings.HasPrefix(s[i:], `\begin{`) {
						envOpen++
					} else if strings.HasPrefix(s[i:], `\end{`) {
						envOpen--
					}
				}
			}
		case '$':
			dollars++
		}
		if inlineOpen < 0 || displayOpen < 0 || envOpen < 0 {
			return false
		}
	}
	return dollars%2 == 0 && inlineOpen == 0 && displayOpen == 0 && envOpen == 0
}

// validateSegments checks a proposed segmentation against the original
// content: whitespace-only segments are dropped (counted), every remaining
// segment must keep LaTeX delimiters balanced, and the in-order
// concatenation must reconstruct the content exactly up to whitespace
// normalization — no gap, no overlap.
func validateSegments(content string, segs []capability.Segment) (kept []capability.Segment, dropped int, err error) {
	for _, seg := range segs {
		if strings.TrimSpace(seg.Text) == "" {
			dropped++
			continue
		}
		kept = append(kept, seg)
	}

	for i, seg := range kept {
		if !balancedMathDelimiters(seg.Text) {
			return kept, dropped, fmt.Errorf("segment %d (%q) splits a math delimiter", i, seg.Title)
		}
	}

	var joined strings.Builder
	for _, seg := range kept {
		joined.WriteString(seg.Text)
		joined.WriteString(" ")
	}
	if normalizeWhitespace(joined.String()) != normalizeWhitespace(content) {
		return kept, dropped, fmt.Errorf("segments do not reconstruct the original content")
	}
	return kept, dropped, nil
}
