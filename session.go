package edupage

import (
	"net/url"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
)

// Session owns one cookie jar and one browser identity against one portal
// subdomain. A session is never patched in place: on suspected invalidity
// the whole value is discarded and a fresh one constructed.
//
// A session supports at most one in-flight authentication or protected-call
// sequence at a time; the mutex serializes them so a warmup can't interleave
// with another call's redirect hops.
type Session struct {
	ID        string
	Origin    *url.URL
	CreatedAt time.Time

	client    httpDoer
	transport *CookieTransport
	profile   *BrowserProfile

	mu sync.Mutex
}

// NewSession constructs a session for the given subdomain with a fresh
// cookie jar.
func NewSession(cfg *Config, logger Logger) (*Session, error) {
	client, err := NewHTTPClient(nil, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	return newSessionWithClient(cfg, client, logger)
}

func newSessionWithClient(cfg *Config, client httpDoer, logger Logger) (*Session, error) {
	origin, err := url.Parse(cfg.baseURL())
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        uuid.New().String()[:8],
		Origin:    origin,
		CreatedAt: time.Now(),
		client:    client,
		transport: NewCookieTransport(client, logger),
		profile:   DefaultProfile,
	}, nil
}

// Cookie looks the named cookie up in the jar, including cookies scoped to
// the parent domain rather than the exact request host.
func (s *Session) Cookie(name string) (string, bool) {
	for _, c := range s.client.GetCookies(s.Origin) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SetCookie plants a cookie scoped to the portal's parent domain.
func (s *Session) SetCookie(name, value string) {
	s.client.SetCookies(s.Origin, []*http.Cookie{{
		Name:   name,
		Value:  value,
		Domain: "." + parentDomain(s.Origin.Hostname()),
		Path:   "/",
	}})
}

// Expired reports whether the session has outlived maxAge. Expired sessions
// should be replaced, not reused.
func (s *Session) Expired(maxAge time.Duration) bool {
	return maxAge > 0 && time.Since(s.CreatedAt) > maxAge
}

// URL resolves a portal path against the session origin.
func (s *Session) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return s.Origin.String()
	}
	return s.Origin.ResolveReference(ref).String()
}

// parentDomain strips the subdomain label, so cookies on
// school.edupage.org land on .edupage.org.
func parentDomain(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] == '.' {
			return host[i+1:]
		}
	}
	return host
}
