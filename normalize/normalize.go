// Package normalize turns fetched markup into the canonical text the change
// detector compares: main readable content only, one line, whitespace
// collapsed.
//
// Extraction pipeline: raw bytes → sanitize (bluemonday) → parse →
// select main content (selectors, landmarks, text density) → clean.
// PDF payloads take a separate path through pdfcpu.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the output of content extraction.
type Result struct {
	Text  string // canonical single-line text
	HTML  string // main-content subtree, sanitized; empty for PDFs
	Title string // page title if found
	Hash  string // SHA-256 of Text
}

// Options controls extraction.
type Options struct {
	// Selectors restrict extraction to matching regions (simple CSS:
	// tag, .class, #id, [attr=val], descendant combinator). When nothing
	// matches, landmark and density extraction run as usual.
	Selectors []string
	// MinTextLen is the shortest region accepted by landmark and density
	// scoring. Default: 50.
	MinTextLen int
}

func (o *Options) defaults() {
	if o.MinTextLen <= 0 {
		o.MinTextLen = 50
	}
}

// Text returns the canonical text of raw markup, or "" when nothing can be
// extracted. It never fails: an extraction error is indistinguishable from
// an empty page downstream.
func Text(raw []byte) string {
	res, err := Extract(raw, Options{})
	if err != nil {
		return ""
	}
	return res.Text
}

// Extract runs the extraction pipeline on raw markup or a PDF.
func Extract(raw []byte, opts Options) (*Result, error) {
	opts.defaults()

	if isPDF(raw) {
		text, err := extractPDF(raw)
		if err != nil {
			return nil, err
		}
		text = Clean(text)
		return &Result{Text: text, Hash: hashText(text)}, nil
	}

	orig, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("normalize: parse: %w", err)
	}
	title := Clean(findTitle(orig))

	doc, err := html.Parse(bytes.NewReader(sanitize(raw)))
	if err != nil {
		return nil, fmt.Errorf("normalize: parse sanitized: %w", err)
	}

	var res *Result
	if len(opts.Selectors) > 0 {
		res = extractSelectors(doc, opts.Selectors, opts.MinTextLen)
	}
	if res == nil {
		res = extractDensity(doc, opts.MinTextLen)
	}

	res.Title = title
	res.Text = Clean(res.Text)
	res.Hash = hashText(res.Text)
	return res, nil
}

// findTitle extracts the page <title> text.
func findTitle(doc *html.Node) string {
	var title string
	var f func(*html.Node) bool
	f = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if f(c) {
				return true
			}
		}
		return false
	}
	f(doc)
	return title
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}

// renderNode serialises an HTML node subtree back to a string.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// collectText extracts visible text from a subtree, one space between
// text nodes.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// isContentTag returns true for tags likely to contain main content.
func isContentTag(a atom.Atom) bool {
	switch a {
	case atom.Main, atom.Article, atom.Section, atom.Div, atom.P,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li,
		atom.Table, atom.Td, atom.Th, atom.Dl, atom.Dd, atom.Dt,
		atom.Figure, atom.Figcaption, atom.Details, atom.Summary:
		return true
	}
	return false
}

// isBoilerplate reports whether a node is navigation, chrome or a widget.
func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Header, atom.Aside, atom.Form:
		return true
	}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "class", "id":
			lower := strings.ToLower(attr.Val)
			for _, pattern := range boilerplatePatterns {
				if strings.Contains(lower, pattern) {
					return true
				}
			}
		case "role":
			switch attr.Val {
			case "navigation", "banner", "contentinfo", "complementary":
				return true
			}
		}
	}
	return false
}

var boilerplatePatterns = []string{
	"sidebar", "footer", "header", "nav", "menu", "breadcrumb",
	"cookie", "consent", "banner", "advert", "social", "share",
	"comment", "related", "widget", "popup", "modal", "newsletter",
}
