package normalize

import (
	"strings"
	"testing"
)

var termsPage = []byte(`<!DOCTYPE html>
<html>
<head><title>Acme Terms of Service</title>
<style>body { color: red; }</style>
<script>var tracking = "should never appear";</script>
</head>
<body>
<header><a href="/">Acme</a> <a href="/login">Log in</a></header>
<nav><a href="/pricing">Pricing</a> <a href="/docs">Docs</a></nav>
<main>
<h1>Terms of Service</h1>
<p>By using the Acme API you agree to these terms. We may suspend
accounts that send spam or distribute malware.</p>
<!-- internal revision 42 -->
<p>These terms apply to all customers   and   partners.</p>
</main>
<aside><div class="sidebar">Related articles</div></aside>
<footer>Copyright 2025 Acme Inc.</footer>
</body>
</html>`)

func TestText_MainContentOnly(t *testing.T) {
	got := Text(termsPage)

	for _, want := range []string{"Terms of Service", "suspend accounts", "all customers and partners"} {
		if !strings.Contains(got, want) {
			t.Errorf("text should contain %q, got %q", want, got)
		}
	}
	for _, bad := range []string{"tracking", "color: red", "Log in", "Pricing", "Related articles", "Copyright", "revision 42"} {
		if strings.Contains(got, bad) {
			t.Errorf("text should not contain %q, got %q", bad, got)
		}
	}
}

func TestText_SingleLineCollapsed(t *testing.T) {
	got := Text(termsPage)
	if strings.ContainsAny(got, "\n\t\r") {
		t.Errorf("text should be one line, got %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("whitespace runs should collapse, got %q", got)
	}
	if got != strings.TrimSpace(got) {
		t.Errorf("text should be trimmed, got %q", got)
	}
}

func TestText_UnicodeWhitespace(t *testing.T) {
	// WHAT: Non-ASCII whitespace inside content collapses like ASCII does.
	raw := "<html><body><main><p>Fees apply\u2003\u2003from\u3000now\u2028on for every " +
		"plan we sell, including the legacy ones.</p></main></body></html>"
	want := "Fees apply from now on for every plan we sell, including the legacy ones."
	if got := Text([]byte(raw)); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestText_Empty(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"only chrome":  `<html><body><nav><a href="/">Home</a></nav><footer>(c)</footer></body></html>`,
		"only scripts": `<html><head><script>alert(1)</script></head><body><style>p{}</style></body></html>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Text([]byte(raw)); got != "" {
				t.Errorf("got %q, want empty", got)
			}
		})
	}
}

func TestText_ShortPage(t *testing.T) {
	// Below MinTextLen the body text is still returned.
	got := Text([]byte(`<html><body><p>Our pricing is $10/month.</p></body></html>`))
	if got != "Our pricing is $10/month." {
		t.Errorf("got %q", got)
	}
}

func TestText_Deterministic(t *testing.T) {
	if Text(termsPage) != Text(termsPage) {
		t.Error("normalization should be deterministic")
	}
}

func TestExtract_TitleAndHash(t *testing.T) {
	res, err := Extract(termsPage, Options{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Title != "Acme Terms of Service" {
		t.Errorf("Title: got %q", res.Title)
	}
	if len(res.Hash) != 64 {
		t.Errorf("Hash should be hex sha256, got %q", res.Hash)
	}
	if strings.Contains(res.Text, "Acme Terms of Service") {
		t.Error("the <title> should not leak into the text")
	}
	if !strings.Contains(res.HTML, "<main>") {
		t.Errorf("HTML should hold the main subtree, got %q", res.HTML)
	}
}

func TestExtract_Selectors(t *testing.T) {
	page := []byte(`<html><body>
<div class="intro"><p>Welcome to the changelog page where we publish release notes for everyone.</p></div>
<div class="entries" id="log"><p>2025-02-01: the v1 endpoints are deprecated and will be removed.</p></div>
</body></html>`)

	res, err := Extract(page, Options{Selectors: []string{"div#log p"}, MinTextLen: 10})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(res.Text, "deprecated") {
		t.Errorf("selector region missing, got %q", res.Text)
	}
	if strings.Contains(res.Text, "Welcome") {
		t.Errorf("text outside the selector leaked, got %q", res.Text)
	}
}

func TestExtract_SelectorMissFallsBack(t *testing.T) {
	res, err := Extract(termsPage, Options{Selectors: []string{".does-not-exist"}})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(res.Text, "suspend accounts") {
		t.Errorf("fallback extraction failed, got %q", res.Text)
	}
}

func TestExtract_DensityWithoutLandmarks(t *testing.T) {
	page := []byte(`<html><body>
<div class="menu"><a href="/a">A</a> <a href="/b">B</a> <a href="/c">C</a></div>
<div class="content"><p>Requests are limited to 600 requests per minute per key. Exceeding the quota returns HTTP 429.</p></div>
</body></html>`)

	got := Text(page)
	if !strings.Contains(got, "600 requests per minute") {
		t.Errorf("density extraction missed content, got %q", got)
	}
	if strings.Contains(got, " A B C") {
		t.Errorf("menu links leaked, got %q", got)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"a\n\n b\t\tc", "a b c"},
		{"zero\u200bwidth", "zerowidth"},
		{"non\u00a0breaking", "non breaking"},
		{"\ufeffbom", "bom"},
		{"em\u2003\u2003space", "em space"},
		{"ideographic\u3000space", "ideographic space"},
		{"line\u2028separator\u2029paragraph", "line separator paragraph"},
		{"narrow\u202fnbsp\u0085next", "narrow nbsp next"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSimpleSelector(t *testing.T) {
	s := parseSimpleSelector(`div.terms[data-kind="legal"]`)
	if s.tag != "div" || s.class != "terms" || s.attrKey != "data-kind" || s.attrVal != "legal" {
		t.Errorf("unexpected parse: %+v", s)
	}
	s = parseSimpleSelector("#main")
	if s.tag != "" || s.id != "main" {
		t.Errorf("unexpected parse: %+v", s)
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, "plain"},
		{`a\(b\)`, "a(b)"},
		{`tab\there`, "tab\there"},
		{`oct\040al`, "oct al"},
	}
	for _, tt := range tests {
		if got := decodePDFString([]byte(tt.in)); got != tt.want {
			t.Errorf("decodePDFString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractTextFromStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 712 Td\n(Fees change on) Tj\n0 -14 Td\n[(March) -250 (1)] TJ\nET\n")
	got := Clean(extractTextFromStream(stream))
	if got != "Fees change on March1" {
		t.Errorf("got %q", got)
	}
}

func TestIsPDF(t *testing.T) {
	if !isPDF([]byte("%PDF-1.7\n...")) {
		t.Error("should detect PDF header")
	}
	if isPDF([]byte("<html>%PDF-</html>")) {
		t.Error("HTML is not a PDF")
	}
}

func TestText_UnreadablePDF(t *testing.T) {
	if got := Text([]byte("%PDF-1.4\ngarbage")); got != "" {
		t.Errorf("unreadable PDF should give empty text, got %q", got)
	}
}
