package edupage

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TokenExtractor pulls a login token out of a portal HTML page. The portal
// moves the token around between releases, so extraction is a strategy list
// tried in order; the first hit wins. This is the most fragile boundary with
// the service and is covered by fixture tests.
type TokenExtractor interface {
	Name() string
	Extract(html string) (string, bool)
}

// formInputExtractor reads the hidden csrf input of the login form, falling
// back to the csrfauth meta tag.
type formInputExtractor struct{}

func (formInputExtractor) Name() string { return "form-input" }

func (formInputExtractor) Extract(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	if v, ok := doc.Find(`input[name="csrfauth"]`).First().Attr("value"); ok && v != "" {
		return v, true
	}
	if v, ok := doc.Find(`meta[name="csrfauth"]`).First().Attr("content"); ok && v != "" {
		return v, true
	}
	return "", false
}

// scriptAssignExtractor matches inline-script token assignments.
type scriptAssignExtractor struct {
	name string
	re   *regexp.Regexp
}

func (e scriptAssignExtractor) Name() string { return e.name }

func (e scriptAssignExtractor) Extract(html string) (string, bool) {
	m := e.re.FindStringSubmatch(html)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// defaultExtractors is ordered from the most to the least specific shape
// observed on real login pages.
var defaultExtractors = []TokenExtractor{
	formInputExtractor{},
	scriptAssignExtractor{
		name: "script-csrfauth",
		re:   regexp.MustCompile(`csrfauth["']?\s*[:=]\s*["']([^"']+)["']`),
	},
	scriptAssignExtractor{
		name: "script-gsechash",
		re:   regexp.MustCompile(`gsechash["']?\s*[:=]\s*["']([^"']+)["']`),
	},
	scriptAssignExtractor{
		name: "query-token",
		re:   regexp.MustCompile(`[?&]token=([A-Za-z0-9]{16,})`),
	},
}

// ExtractToken runs the default strategy list over a page.
func ExtractToken(html string) (token string, ok bool) {
	return extractToken(html, defaultExtractors)
}

func extractToken(html string, extractors []TokenExtractor) (string, bool) {
	for _, e := range extractors {
		if token, ok := e.Extract(html); ok {
			return token, true
		}
	}
	return "", false
}
