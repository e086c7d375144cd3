package edupage

import (
	"bytes"
	"context"
	"io"
	"net/url"

	http "github.com/bogdanfinn/fhttp"
)

// maxRedirectHops caps the number of redirects followed for one logical
// request.
const maxRedirectHops = 8

// httpDoer is the slice of tls_client.HttpClient the transport needs. Tests
// substitute a stub with an in-memory jar.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
	GetCookies(u *url.URL) []*http.Cookie
	SetCookies(u *url.URL, cookies []*http.Cookie)
}

// Response is the transport's view of a completed exchange after all
// redirects were followed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the URL of the last hop, used by callers that chain
	// referers across page fetches.
	FinalURL string
}

// CookieTransport issues requests with redirect following done by hand.
// The underlying client never follows redirects itself, so the jar sees the
// Set-Cookie headers of every intermediate hop before the next hop goes out.
// Jar mutation is the only persistent effect; nothing is retried here.
type CookieTransport struct {
	client httpDoer
	logger Logger
}

// NewCookieTransport wraps a no-redirect HTTP client.
func NewCookieTransport(client httpDoer, logger Logger) *CookieTransport {
	if logger == nil {
		logger = NopLogger()
	}
	return &CookieTransport{client: client, logger: logger}
}

// Request performs method on rawURL, following up to maxRedirectHops
// redirects. Verb conversion follows observed portal behavior: 303 always
// replays as GET without a body, 302 drops down to GET for non-GET methods,
// 301/307/308 keep method and body.
func (t *CookieTransport) Request(ctx context.Context, method, rawURL string, body []byte, header http.Header) (*Response, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	for hop := 0; ; hop++ {
		if hop > maxRedirectHops {
			return nil, &TooManyRedirectsError{URL: rawURL, Hops: hop}
		}

		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, current.String(), reader)
		if err != nil {
			return nil, err
		}
		if header != nil {
			req.Header = header.Clone()
		}

		resp, err := t.client.Do(req)
		if err != nil {
			t.logger.Log("%s %s -> error: %v", method, current.Path, err)
			return nil, &NetworkError{URL: current.String(), Err: err}
		}

		respBody, err := readResponseBody(resp)
		if err != nil {
			return nil, &NetworkError{URL: current.String(), Err: err}
		}
		t.logger.Log("%s %s -> %d", method, current.Path, resp.StatusCode)

		location := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || location == "" {
			return &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       respBody,
				FinalURL:   current.String(),
			}, nil
		}

		next, err := current.Parse(location)
		if err != nil {
			return nil, &NetworkError{URL: current.String(), Err: err}
		}

		switch resp.StatusCode {
		case http.StatusSeeOther:
			method = http.MethodGet
			body = nil
		case http.StatusFound:
			if method != http.MethodGet {
				method = http.MethodGet
				body = nil
			}
		}
		// 301/307/308 keep method and body.

		current = next
	}
}

// Get is a convenience wrapper for header-only fetches.
func (t *CookieTransport) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return t.Request(ctx, http.MethodGet, rawURL, nil, header)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// readResponseBody decompresses and reads the full response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	defer resp.Body.Close()
	return io.ReadAll(body)
}
