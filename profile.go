package edupage

import (
	http "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/tls-client/profiles"
)

const (
	chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	chromeSecChUa   = `"Google Chrome";v="133", "Chromium";v="133", "Not A(Brand";v="24"`
)

// BrowserProfile bundles a TLS client profile with the browser headers the
// portal expects to see alongside it.
type BrowserProfile struct {
	TLSProfile profiles.ClientProfile
	UserAgent  string
	SecChUa    string
	Platform   string
	Mobile     string
}

// DefaultProfile is the browser identity used for all portal traffic.
var DefaultProfile = &BrowserProfile{
	TLSProfile: profiles.Chrome_133,
	UserAgent:  chromeUserAgent,
	SecChUa:    chromeSecChUa,
	Platform:   `"Windows"`,
	Mobile:     "?0",
}

// PseudoHeaderOrder is the standard HTTP/2 pseudo-header order for all requests.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// NavigationHeader builds the header set for a browser-like page navigation.
// An empty referer omits the Referer header (first hop of a session).
func (p *BrowserProfile) NavigationHeader(referer string) http.Header {
	h := http.Header{
		"upgrade-insecure-requests": {"1"},
		"user-agent":                {p.UserAgent},
		"accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
		"sec-fetch-site":            {"same-origin"},
		"sec-fetch-mode":            {"navigate"},
		"sec-fetch-user":            {"?1"},
		"sec-fetch-dest":            {"document"},
		"sec-ch-ua":                 {p.SecChUa},
		"sec-ch-ua-mobile":          {p.Mobile},
		"sec-ch-ua-platform":        {p.Platform},
		"accept-encoding":           {"gzip, deflate, br, zstd"},
		"accept-language":           {"en-US,en;q=0.9"},
		http.HeaderOrderKey: {
			"upgrade-insecure-requests",
			"user-agent",
			"accept",
			"sec-fetch-site",
			"sec-fetch-mode",
			"sec-fetch-user",
			"sec-fetch-dest",
			"sec-ch-ua",
			"sec-ch-ua-mobile",
			"sec-ch-ua-platform",
			"accept-encoding",
			"accept-language",
			"cookie",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if referer == "" {
		h["sec-fetch-site"] = []string{"none"}
	} else {
		h.Set("referer", referer)
	}
	return h
}

// FormHeader builds the header set for a form-encoded XHR POST.
func (p *BrowserProfile) FormHeader(origin, referer string) http.Header {
	return http.Header{
		"sec-ch-ua-platform": {p.Platform},
		"sec-ch-ua":          {p.SecChUa},
		"sec-ch-ua-mobile":   {p.Mobile},
		"x-requested-with":   {"XMLHttpRequest"},
		"user-agent":         {p.UserAgent},
		"accept":             {"*/*"},
		"content-type":       {"application/x-www-form-urlencoded; charset=UTF-8"},
		"origin":             {origin},
		"sec-fetch-site":     {"same-origin"},
		"sec-fetch-mode":     {"cors"},
		"sec-fetch-dest":     {"empty"},
		"referer":            {referer},
		"accept-encoding":    {"gzip, deflate, br, zstd"},
		"accept-language":    {"en-US,en;q=0.9"},
		http.HeaderOrderKey: {
			"content-length",
			"sec-ch-ua-platform",
			"sec-ch-ua",
			"sec-ch-ua-mobile",
			"x-requested-with",
			"user-agent",
			"accept",
			"content-type",
			"origin",
			"sec-fetch-site",
			"sec-fetch-mode",
			"sec-fetch-dest",
			"referer",
			"accept-encoding",
			"accept-language",
			"cookie",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
}
