package main

import (
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// BrowserProfile bundles a TLS client profile with its corresponding browser headers.
type BrowserProfile struct {
	TLSProfile      profiles.ClientProfile
	UserAgent       string
	SecChUa         string
	FullVersionList string
	Platform        string
	Mobile          string
}

// DefaultProfile is the browser the booking subdomain traffic is pinned to.
// The tenant apps fingerprint the TLS handshake and silently drop SMS
// triggers from clients that don't present a real browser's JA3.
var DefaultProfile = Chrome120Profile

// NewSession creates a persistent HTTP session with a cookie jar and the
// default browser fingerprint. One session is created per tenant domain and
// reused for the life of the process.
func NewSession(logger tls_client.Logger, proxyURL string) (tls_client.HttpClient, error) {
	return NewSessionWithProfile(logger, proxyURL, DefaultProfile.TLSProfile)
}

func NewSessionWithProfile(logger tls_client.Logger, proxyURL string, profile profiles.ClientProfile) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(requestTimeoutSeconds),
		tls_client.WithClientProfile(profile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(jar),
	}

	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	return tls_client.NewHttpClient(logger, options...)
}
