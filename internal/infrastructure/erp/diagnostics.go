package erp

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const maxDiagnosticBody = 512

// describeHTTPError builds the diagnostic for a non-2xx reply. Odoo and the
// proxies in front of it answer with HTML pages, whose title is the useful part.
func describeHTTPError(status int, contentType string, body []byte) error {
	if summary := htmlSummary(contentType, body); summary != "" {
		return fmt.Errorf("HTTP %d: %s", status, summary)
	}
	text := strings.TrimSpace(string(body))
	text = truncate(text, maxDiagnosticBody)
	if text == "" {
		return fmt.Errorf("HTTP %d", status)
	}
	return fmt.Errorf("HTTP %d: %s", status, text)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func htmlSummary(contentType string, body []byte) string {
	if !strings.Contains(contentType, "html") && !bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}
