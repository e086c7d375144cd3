package edupage

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

// stubRequest is one request as seen by the stub client, cookies already
// applied.
type stubRequest struct {
	Method string
	URL    *url.URL
	Body   string
	Header http.Header
}

// stubClient implements the httpDoer slice of tls_client.HttpClient with an
// in-memory jar that honors parent-domain cookie scoping, so transport and
// warmup behavior can be tested without a network.
type stubClient struct {
	mu       sync.Mutex
	handler  func(call int, req *stubRequest) (*http.Response, error)
	requests []stubRequest
	cookies  []*http.Cookie
}

func newStubClient(handler func(call int, req *stubRequest) (*http.Response, error)) *stubClient {
	return &stubClient{handler: handler}
}

func (c *stubClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}

	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if cookieHeader := c.cookieHeader(req.URL.Hostname()); cookieHeader != "" {
		header.Set("Cookie", cookieHeader)
	}

	recorded := stubRequest{Method: req.Method, URL: req.URL, Body: body, Header: header}
	c.requests = append(c.requests, recorded)

	resp, err := c.handler(len(c.requests)-1, &recorded)
	if err != nil {
		return nil, err
	}

	for _, ck := range resp.Cookies() {
		c.storeCookie(req.URL.Hostname(), ck)
	}
	return resp, nil
}

func (c *stubClient) GetCookies(u *url.URL) []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*http.Cookie
	for _, ck := range c.cookies {
		if domainMatches(u.Hostname(), ck.Domain) {
			out = append(out, ck)
		}
	}
	return out
}

func (c *stubClient) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range cookies {
		c.storeCookie(u.Hostname(), ck)
	}
}

func (c *stubClient) storeCookie(host string, ck *http.Cookie) {
	stored := *ck
	if stored.Domain == "" {
		stored.Domain = host
	}
	for i, existing := range c.cookies {
		if existing.Name == stored.Name && existing.Domain == stored.Domain {
			c.cookies[i] = &stored
			return
		}
	}
	c.cookies = append(c.cookies, &stored)
}

func (c *stubClient) cookieHeader(host string) string {
	var parts []string
	for _, ck := range c.cookies {
		if domainMatches(host, ck.Domain) {
			parts = append(parts, ck.Name+"="+ck.Value)
		}
	}
	return strings.Join(parts, "; ")
}

func domainMatches(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// textResponse builds a one-shot response; extra headers come in pairs.
func textResponse(status int, body string, headerPairs ...string) (*http.Response, error) {
	header := make(http.Header)
	for i := 0; i+1 < len(headerPairs); i += 2 {
		header.Add(headerPairs[i], headerPairs[i+1])
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newTestSession(t *testing.T, stub *stubClient) *Session {
	t.Helper()
	cfg := DefaultConfig("school")
	cfg.BaseURL = "https://school.example"
	sess, err := newSessionWithClient(cfg, stub, NopLogger())
	if err != nil {
		t.Fatalf("failed to build session: %v", err)
	}
	return sess
}

// unexpectedCall fails handlers that receive more traffic than planned.
func unexpectedCall(call int, req *stubRequest) (*http.Response, error) {
	return nil, fmt.Errorf("unexpected request %d: %s %s", call, req.Method, req.URL)
}
