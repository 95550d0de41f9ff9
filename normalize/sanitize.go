package normalize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// sanitizePolicy keeps the structural and inline elements the extractor
// scores on, plus the class/id/role attributes boilerplate detection reads.
// Scripts, styles, iframes and comments are dropped with their content.
func sanitizePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(
			"html", "head", "body",
			"main", "article", "section", "div", "header", "footer", "nav", "aside", "form",
			"p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "code",
			"ul", "ol", "li", "dl", "dt", "dd",
			"table", "thead", "tbody", "tfoot", "tr", "td", "th", "caption",
			"figure", "figcaption", "details", "summary",
			"span", "b", "strong", "em", "i", "u", "small", "sub", "sup", "mark", "time", "br", "hr",
		)
		p.SkipElementsContent("title", "noscript", "template", "svg")
		p.AllowAttrs("class", "id", "role").Globally()
		p.AllowStandardURLs()
		p.AllowAttrs("href").OnElements("a")
		policy = p
	})
	return policy
}

func sanitize(raw []byte) []byte {
	return sanitizePolicy().SanitizeBytes(raw)
}
