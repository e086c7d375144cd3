package edupage

import (
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// hopTimeoutSeconds is the fixed per-hop network timeout. A timeout is a
// transient error, never an envelope version mismatch.
const hopTimeoutSeconds = 22

// NewHTTPClient builds the underlying TLS client for a session: cookie jar
// attached, redirect following disabled so every hop passes through
// CookieTransport, fixed per-hop timeout.
func NewHTTPClient(logger tls_client.Logger, proxyURL string) (tls_client.HttpClient, error) {
	return NewHTTPClientWithProfile(logger, proxyURL, DefaultProfile.TLSProfile)
}

func NewHTTPClientWithProfile(logger tls_client.Logger, proxyURL string, profile profiles.ClientProfile) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(hopTimeoutSeconds),
		tls_client.WithClientProfile(profile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}

	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	return tls_client.NewHttpClient(logger, options...)
}
