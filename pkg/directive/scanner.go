// Package directive locates ESI include directives in raw markup.
//
// Only the include directive is recognized, in its paired form
// (<esi:include src="X">...</esi:include>, body discarded) and its
// self-closing form (<esi:include src="X"/>). All other markup,
// including unrelated self-closing elements, is left untouched.
// Scanning is pure string work: no I/O, no blocking.
package directive

import (
	"regexp"
	"strings"
)

// Directive is one include instruction found in a document.
type Directive struct {
	// Raw is the full matched tag text, open through close.
	Raw string

	// Source is the src attribute value. Empty when the attribute is
	// absent; the orchestrator degrades such directives to an empty
	// substitution.
	Source string

	// Start and End are byte offsets of Raw within the scanned markup.
	Start int
	End   int

	// SelfClosing reports whether the directive used the <esi:include/> form.
	SelfClosing bool
}

var (
	openTagPattern = regexp.MustCompile(`<esi:include\b[^>]*>`)
	srcAttrPattern = regexp.MustCompile(`\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

const closeTag = "</esi:include>"

// Scan returns all include directives in markup, in source order.
// Spans never overlap. An open tag with no matching close tag is not
// treated as a directive and passes through unprocessed.
func Scan(markup string) []Directive {
	var directives []Directive

	pos := 0
	for pos < len(markup) {
		loc := openTagPattern.FindStringIndex(markup[pos:])
		if loc == nil {
			break
		}

		start := pos + loc[0]
		openEnd := pos + loc[1]
		open := markup[start:openEnd]

		selfClosing := strings.HasSuffix(open, "/>")
		end := openEnd
		if !selfClosing {
			rel := strings.Index(markup[openEnd:], closeTag)
			if rel < 0 {
				// Unclosed paired directive. Guessing a span here could
				// swallow arbitrary trailing content, so skip it.
				pos = openEnd
				continue
			}
			end = openEnd + rel + len(closeTag)
		}

		directives = append(directives, Directive{
			Raw:         markup[start:end],
			Source:      sourceAttr(open),
			Start:       start,
			End:         end,
			SelfClosing: selfClosing,
		})
		pos = end
	}

	return directives
}

// sourceAttr extracts the src attribute value from an open tag.
// Returns "" when the attribute is missing.
func sourceAttr(openTag string) string {
	m := srcAttrPattern.FindStringSubmatch(openTag)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
