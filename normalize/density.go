package normalize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractDensity picks the main content: semantic landmarks first, then the
// subtree with the best text-to-markup ratio, then every non-boilerplate
// text node of the body. It always returns a Result; Text is empty when the
// page has no visible text.
func extractDensity(doc *html.Node, minLen int) *Result {
	var texts, htmls []string
	for _, n := range findLandmarks(doc) {
		if isBoilerplate(n) {
			continue
		}
		text := collectCleanText(n)
		if len(text) >= minLen {
			texts = append(texts, text)
			htmls = append(htmls, renderNode(n))
		}
	}
	if len(texts) > 0 {
		return &Result{Text: strings.Join(texts, "\n\n"), HTML: strings.Join(htmls, "\n")}
	}

	body := findBody(doc)
	if body == nil {
		body = doc
	}

	if best := findDensestNode(body, minLen); best != nil {
		return &Result{Text: collectCleanText(best), HTML: renderNode(best)}
	}

	// Short pages: whatever visible text is left, however little.
	text := collectCleanText(body)
	if text == "" {
		return &Result{}
	}
	return &Result{Text: text, HTML: renderNode(body)}
}

type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64
}

// findDensestNode scores content elements by density × log(length) ×
// (1 − link density). Elements that are mostly links are navigation.
func findDensestNode(root *html.Node, minLen int) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode || isBoilerplate(n) {
			return
		}
		if isContentTag(n.DataAtom) || n.DataAtom == atom.Body {
			text := collectCleanText(n)
			if len(text) >= minLen {
				markupLen := len(renderNode(n))
				if markupLen == 0 {
					markupLen = 1
				}
				candidates = append(candidates, nodeScore{
					node:     n,
					textLen:  len(text),
					density:  float64(len(text)) / float64(markupLen),
					linkDens: float64(len(collectLinkText(n))) / float64(len(text)),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var best *html.Node
	var bestScore float64
	for _, c := range candidates {
		if c.linkDens > 0.5 {
			continue
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c.node
		}
	}
	return best
}

// logScale grows by one for every doubling of n past 100.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale++
	}
	return scale
}

// collectLinkText extracts text only from <a> elements.
func collectLinkText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node, bool)
	f = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c, inLink)
		}
	}
	f(n, false)
	return sb.String()
}

// collectCleanText is collectText minus boilerplate subtrees.
func collectCleanText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isBoilerplate(n) {
				return
			}
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
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

func findBody(doc *html.Node) *html.Node {
	if nodes := findAllByTag(doc, atom.Body); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}
