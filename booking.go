package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	http "github.com/bogdanfinn/fhttp"
)

const (
	platformDomain = "yclients.com"
	apiHost        = "api." + platformDomain

	// bootstrapDomain is a known-live tenant used to recover a partner token
	// for shared-host calls when nothing is configured or cached yet.
	bootstrapDomain    = "n864017." + platformDomain
	bootstrapCompanyID = 806724

	requestTimeoutSeconds = 30
)

// appConfig is the application descriptor opportunistically extracted from a
// tenant's JS bundle alongside the partner token. It drives the vendor
// X-{brand}-Application-* identity headers.
type appConfig struct {
	BrandDomain string
	Name        string
	Version     string
}

// BookingClient drives the undocumented per-tenant booking subdomains
// (n{group_id}.yclients.com) with browser-equivalent sessions.
//
// Each domain gets its own persistent session (cookie jar, Chrome TLS
// fingerprint) plus a cached partner token, optional user token, and
// optional app config. Sessions are never shared between domains.
type BookingClient struct {
	globalToken string // configured at process start; wins over page scans
	profile     *BrowserProfile
	logger      Logger
	limiter     *HostLimiter
	scheme      string
	proxyURL    string
	proxies     *ProxyManager

	mu            sync.Mutex
	sessions      map[string]httpDoer
	partnerTokens map[string]string
	userTokens    map[string]string
	appConfigs    map[string]appConfig

	// newSession is swapped out by tests.
	newSession func(proxyURL string) (httpDoer, error)
}

func NewBookingClient(globalToken string, logger Logger) *BookingClient {
	if logger == nil {
		logger = noopLogger{}
	}
	return &BookingClient{
		globalToken:   globalToken,
		profile:       DefaultProfile,
		logger:        logger,
		limiter:       SharedAPILimiter(),
		scheme:        "https",
		sessions:      make(map[string]httpDoer),
		partnerTokens: make(map[string]string),
		userTokens:    make(map[string]string),
		appConfigs:    make(map[string]appConfig),
		newSession: func(proxyURL string) (httpDoer, error) {
			return NewSession(nil, proxyURL)
		},
	}
}

// SetProxy applies a proxy URL to sessions created from now on.
func (b *BookingClient) SetProxy(proxyURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proxyURL = proxyURL
}

// SetProxyPool installs a rotating proxy pool. New sessions use the pool's
// current proxy; a retryable transport failure rotates to the next one.
func (b *BookingClient) SetProxyPool(pm *ProxyManager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proxies = pm
	b.proxyURL = pm.Current()
}

// dropSession discards domain's session so the next request builds a fresh
// one, moving to the next pool proxy when a pool is configured.
func (b *BookingClient) dropSession(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, domain)
	if b.proxies != nil {
		b.proxyURL = b.proxies.Rotate()
		b.logger.Log("rotating proxy to %s", b.proxies.CurrentDisplay())
	}
}

func (b *BookingClient) session(domain string) (httpDoer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[domain]; ok {
		return s, nil
	}
	s, err := b.newSession(b.proxyURL)
	if err != nil {
		return nil, err
	}
	b.sessions[domain] = s
	return s, nil
}

func (b *BookingClient) endpoint(domain, path string) string {
	if len(path) >= 4 && path[:4] == "http" {
		return path
	}
	return b.scheme + "://" + domain + path
}

func (b *BookingClient) cachedPartnerToken(domain string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.partnerTokens[domain]
}

func (b *BookingClient) storePartnerToken(domain, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.partnerTokens[domain]; ok {
		// First discovery wins; a token is never silently replaced.
		return
	}
	b.partnerTokens[domain] = token
}

func (b *BookingClient) anyPartnerToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.partnerTokens {
		return t
	}
	return ""
}

// resolvePartnerToken returns the best available partner token for domain:
// the per-domain cached token first, then the globally configured one.
func (b *BookingClient) resolvePartnerToken(domain string) string {
	if t := b.cachedPartnerToken(domain); t != "" {
		return t
	}
	return b.globalToken
}

// authHeader builds the platform's multi-token Authorization value.
// Empty when no partner token is available: the header is then omitted
// entirely rather than sent empty.
func (b *BookingClient) authHeader(domain string) string {
	token := b.resolvePartnerToken(domain)
	if token == "" {
		return ""
	}
	b.mu.Lock()
	userToken := b.userTokens[domain]
	b.mu.Unlock()
	if userToken != "" {
		return "Bearer " + token + ", User " + userToken
	}
	return "Bearer " + token
}

// xhrHeaders assembles the same-origin XHR header set the real booking
// widget sends, including the vendor application-identity headers when an
// app config was recovered during discovery.
func (b *BookingClient) xhrHeaders(domain string, extra map[string]string) http.Header {
	origin := "https://" + domain
	h := http.Header{
		"Accept":                      {"application/json, text/plain, */*"},
		"Content-Type":                {"application/json"},
		"User-Agent":                  {b.profile.UserAgent},
		"sec-ch-ua":                   {b.profile.SecChUa},
		"sec-ch-ua-full-version-list": {b.profile.FullVersionList},
		"sec-ch-ua-mobile":            {b.profile.Mobile},
		"sec-ch-ua-platform":          {b.profile.Platform},
		"Origin":                      {origin},
		"Referer":                     {origin + "/"},
		"Sec-Fetch-Dest":              {"empty"},
		"Sec-Fetch-Mode":              {"cors"},
		"Sec-Fetch-Site":              {"same-origin"},
		"Accept-Encoding":             {"gzip, deflate, br, zstd"},
		"Accept-Language":             {"ru-RU,ru;q=0.9"},
	}

	order := []string{
		"Host",
		"Connection",
		"Content-Length",
		"sec-ch-ua",
		"sec-ch-ua-full-version-list",
		"sec-ch-ua-mobile",
		"sec-ch-ua-platform",
		"User-Agent",
		"Accept",
		"Content-Type",
		"Authorization",
	}

	if auth := b.authHeader(domain); auth != "" {
		h.Set("Authorization", auth)
	}

	b.mu.Lock()
	cfg, hasCfg := b.appConfigs[domain]
	b.mu.Unlock()
	if hasCfg {
		brand := cfg.BrandDomain
		if brand == "" {
			brand = "yclients"
		}
		name := cfg.Name
		if name == "" {
			name = "client.booking"
		}
		appHeaders := []string{
			"X-" + brand + "-Application-Name",
			"X-" + brand + "-Application-Platform",
			"X-" + brand + "-Application-Version",
		}
		h.Set(appHeaders[0], name)
		h.Set(appHeaders[1], "angular-18.2.13")
		h.Set(appHeaders[2], cfg.Version)
		// Empty placeholders; required by the booking/attendance endpoints.
		h.Set("X-App-Validation-Token", "")
		h.Set("X-App-Signature", "")
		order = append(order, appHeaders...)
		order = append(order, "X-App-Validation-Token", "X-App-Signature")
	}

	for k, v := range extra {
		h.Set(k, v)
		if k != "Referer" && k != "X-App-Validation-Token" {
			order = append(order, k)
		}
	}

	order = append(order,
		"Origin",
		"Sec-Fetch-Site",
		"Sec-Fetch-Mode",
		"Sec-Fetch-Dest",
		"Referer",
		"Accept-Encoding",
		"Accept-Language",
		"Cookie",
	)
	h[http.HeaderOrderKey] = order
	h[http.PHeaderOrderKey] = PseudoHeaderOrder
	return h
}

var companyHintRe = regexp.MustCompile(`/(\d{4,})`)

// companyIDHintFromPath pulls a company id out of an API path so discovery
// can try the company-scoped booking page first (the bare root commonly 403s).
func companyIDHintFromPath(path string) int {
	m := companyHintRe.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	id, _ := strconv.Atoi(m[1])
	return id
}

// request performs one tenant-scoped call: ensures a partner token exists for
// the domain, applies shared-host admission control, issues the request
// through the per-domain session and normalizes the outcome into a map.
func (b *BookingClient) request(ctx context.Context, domain, method, path string, query url.Values, body any, extra map[string]string) map[string]any {
	b.ensurePartnerToken(ctx, domain, companyIDHintFromPath(path))

	if domain == apiHost {
		if err := b.limiter.Acquire(ctx); err != nil {
			return transportErrorResult(err)
		}
	}

	sess, err := b.session(domain)
	if err != nil {
		return transportErrorResult(err)
	}

	target := b.endpoint(domain, path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rawBody []byte
	if body != nil {
		rawBody, err = json.Marshal(body)
		if err != nil {
			return errorResult("could not encode request body: " + err.Error())
		}
	}

	build := func() (*http.Request, error) {
		var bodyReader io.Reader
		if rawBody != nil {
			bodyReader = bytes.NewReader(rawBody)
		}
		req, err := http.NewRequest(method, target, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header = b.xhrHeaders(domain, extra)
		return req, nil
	}

	req, err := build()
	if err != nil {
		return errorResult(err.Error())
	}

	resp, err := sess.Do(req)
	if err != nil && IsRetryableError(err) {
		// A transient failure gets one fresh session (and the next pool
		// proxy, when one is configured) before giving up.
		b.logger.Log("%s %s -> retryable error: %v", method, path, err)
		b.dropSession(domain)
		if sess, err = b.session(domain); err != nil {
			return transportErrorResult(err)
		}
		if req, err = build(); err != nil {
			return errorResult(err.Error())
		}
		resp, err = sess.Do(req)
	}
	if err != nil {
		b.logger.Log("%s %s -> error: %v", method, path, err)
		return transportErrorResult(err)
	}
	defer resp.Body.Close()
	b.logger.Log("%s %s -> %d", method, path, resp.StatusCode)

	raw, err := readResponseBody(resp)
	if err != nil {
		return transportErrorResult(err)
	}

	data := decodeResult(raw)
	if resp.StatusCode >= 400 {
		data["_status_code"] = resp.StatusCode
	}

	// The security requirement on a 412 arrives in a response header.
	if sec := resp.Header.Get("X-App-Security-Level"); sec != "" {
		var level map[string]any
		if json.Unmarshal([]byte(sec), &level) == nil {
			data["_security_level"] = level
		}
	}

	return data
}

// Close drops all per-domain sessions. Cached tokens survive so a later
// session can reuse them without re-scanning.
func (b *BookingClient) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[string]httpDoer)
}
