// Package render turns raw note text (Markdown + fenced code + LaTeX math)
// into sanitized HTML. The pipeline is deliberately two-pass: fenced code is
// highlighted and swapped out before Markdown conversion so the converter
// never reinterprets code bodies, and everything is sanitized last so no
// user-authored markup reaches storage unescorted.
package render

import (
	"bytes"
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

var (
	// ```lang\n ... ``` — language tag optional, body non-greedy across lines.
	fenceRe = regexp.MustCompile("(?s)```(\\w+)?\\n(.*?)```")
	// $$ ... $$ — non-greedy, newlines allowed.
	mathRe = regexp.MustCompile(`(?s)\$\$(.*?)\$\$`)
)

type Renderer struct {
	md        goldmark.Markdown
	policy    *bluemonday.Policy
	formatter *html.Formatter
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table),
			goldmark.WithRendererOptions(
				// Single newlines become <br>, matching how people write notes.
				ghtml.WithHardWraps(),
				// Raw HTML (the swapped-in code containers) must pass through;
				// the sanitizer below is the security boundary, not goldmark.
				ghtml.WithUnsafe(),
			),
		),
		policy: newPolicy(),
		// Classes, not inline styles: the sanitizer allows class on pre/div/span.
		formatter: html.New(html.WithClasses(true)),
	}
}

// Render is deterministic and never fails: the worst case for malformed
// input is an unhighlighted code block or literal text.
func (r *Renderer) Render(raw string) string {
	// Pass 1: highlight fenced code and wrap it in a marker container before
	// Markdown ever sees the body.
	withCode := fenceRe.ReplaceAllStringFunc(raw, r.highlightFence)

	// Pass 2: Markdown conversion. goldmark keeps fenced-code handling as a
	// safety net for fences the scanner did not match.
	var buf bytes.Buffer
	converted := withCode
	if err := r.md.Convert([]byte(withCode), &buf); err == nil {
		converted = buf.String()
	}

	// Pass 3: tag math regions for client-side rendering. The delimiters are
	// kept — the presentation layer typesets them.
	withMath := mathRe.ReplaceAllStringFunc(converted, func(m string) string {
		return `<span class="latex-math">` + m + `</span>`
	})

	// Pass 4: allow-list sanitization. Anything outside the list is dropped,
	// not escaped.
	return r.policy.Sanitize(withMath)
}

func (r *Renderer) highlightFence(block string) string {
	m := fenceRe.FindStringSubmatch(block)
	lang, code := m[1], m[2]

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return plainBlock(code)
	}

	var sb strings.Builder
	sb.WriteString(`<div class="code-block">`)
	if err := r.formatter.Format(&sb, styles.Fallback, iterator); err != nil {
		return plainBlock(code)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

// plainBlock is the degraded path for lexer failures.
func plainBlock(code string) string {
	return `<div class="code-block"><pre><code>` + stdhtml.EscapeString(code) + `</code></pre></div>`
}

// newPolicy builds the allow-list: a bleach-style baseline of inline tags
// plus the structural set Markdown, tables, images and highlighted code need.
// Attributes are allow-listed per tag.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"a", "abbr", "acronym", "b", "blockquote", "code", "em", "i", "strong",
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "span",
		"pre", "hr", "br", "img",
		"table", "thead", "tbody", "tr", "th", "td",
		"ul", "ol", "li", "dl", "dt", "dd", "sup", "sub",
	)

	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("title").OnElements("abbr", "acronym")
	p.AllowAttrs("class").OnElements("code", "pre", "div")
	p.AllowAttrs("class", "style").OnElements("span")
	p.AllowStyles("color", "background-color", "font-weight", "font-style", "text-decoration").OnElements("span")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowStandardURLs()

	return p
}
