package main

import (
	"context"
	"regexp"
	"strconv"

	http "github.com/bogdanfinn/fhttp"
)

// The partner token is compiled into the tenant's frontend bundle, and the
// build tooling chunks the bundle non-deterministically per tenant/release.
// Extraction is therefore a prioritized rule list applied at increasing
// depth: booking page HTML, main bundle, referenced chunks, then one hop of
// transitive chunk imports.

// tokenRule is one independently testable extractor. First matching rule
// wins; the token is capture group 1.
type tokenRule struct {
	name string
	re   *regexp.Regexp
}

var partnerTokenRules = []tokenRule{
	// Angular environment object embedded in a chunk.
	{"api-token", regexp.MustCompile(`apiToken\s*:\s*"Bearer\s+([a-zA-Z0-9_\-]{8,})"`)},
	// Generic quoted bearer token.
	{"bearer", regexp.MustCompile(`"Bearer\s+([a-zA-Z0-9_\-]{8,})"`)},
	// Classic partner_token key-value forms.
	{"partner-token-dq", regexp.MustCompile(`"partner_token"\s*:\s*"([a-zA-Z0-9_\-]{8,})"`)},
	{"partner-token-sq", regexp.MustCompile(`'partner_token'\s*:\s*'([a-zA-Z0-9_\-]{8,})'`)},
	{"partner-token-loose", regexp.MustCompile(`partnerToken["'\s:=]+([a-zA-Z0-9_\-]{8,})`)},
	{"partner-token-const", regexp.MustCompile(`PARTNER_TOKEN["'\s:=]+([a-zA-Z0-9_\-]{8,})`)},
}

// firstTokenMatch applies the rule list to text. Used unchanged at every
// traversal depth.
func firstTokenMatch(text string) (string, bool) {
	for _, rule := range partnerTokenRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var appConfigRules = struct {
	name        *regexp.Regexp
	version     *regexp.Regexp
	brandDomain *regexp.Regexp
}{
	name:        regexp.MustCompile(`(?:^|[,{])\s*name\s*:\s*"(client\.[a-z]+)"`),
	version:     regexp.MustCompile(`(?:^|[,{])\s*version\s*:\s*"([0-9a-f]+\.[0-9a-f]+)"`),
	brandDomain: regexp.MustCompile(`brandDomain\s*:\s*"([a-z]+)"`),
}

// extractAppConfig pulls the application descriptor out of the environment
// object that sits next to the token.
func extractAppConfig(js string) (appConfig, bool) {
	var cfg appConfig
	found := false
	if m := appConfigRules.name.FindStringSubmatch(js); m != nil {
		cfg.Name = m[1]
		found = true
	}
	if m := appConfigRules.version.FindStringSubmatch(js); m != nil {
		cfg.Version = m[1]
		found = true
	}
	if m := appConfigRules.brandDomain.FindStringSubmatch(js); m != nil {
		cfg.BrandDomain = m[1]
		found = true
	}
	return cfg, found
}

var (
	mainBundleRe = regexp.MustCompile(`src="(main-[^"]+\.js)"`)
	chunkHrefRe  = regexp.MustCompile(`href="(chunk-[^"]+\.js)"`)
	chunkNameRe  = regexp.MustCompile(`["'./]+(chunk-[A-Z0-9]+\.js)["']`)
)

// chunkScanDepth caps how many transitive import hops the scan follows
// beyond the directly referenced chunks. One hop has been sufficient for
// every bundle layout observed so far.
const chunkScanDepth = 1

// ensurePartnerToken makes sure a partner token is cached for domain,
// scanning the tenant's web bundle if needed. Discovery is best-effort: on
// failure nothing is cached and subsequent requests go out unauthenticated.
func (b *BookingClient) ensurePartnerToken(ctx context.Context, domain string, companyID int) {
	if b.cachedPartnerToken(domain) != "" {
		return
	}

	if domain == apiHost {
		// The shared host has no bundle to scan; reuse whatever exists.
		if b.globalToken != "" {
			b.storePartnerToken(domain, b.globalToken)
			return
		}
		if tok := b.anyPartnerToken(); tok != "" {
			b.storePartnerToken(domain, tok)
			return
		}
		b.ensurePartnerToken(ctx, bootstrapDomain, bootstrapCompanyID)
		if tok := b.cachedPartnerToken(bootstrapDomain); tok != "" {
			b.storePartnerToken(domain, tok)
		}
		return
	}

	if b.globalToken != "" {
		// A configured token always wins over a page scan.
		b.storePartnerToken(domain, b.globalToken)
		return
	}

	b.scanPartnerToken(ctx, domain, companyID)
}

// scanPartnerToken runs the layered fetch-and-scan protocol against a
// tenant's booking app.
func (b *BookingClient) scanPartnerToken(ctx context.Context, domain string, companyID int) {
	// Step 1: booking page HTML. The bare root commonly returns 403 for
	// widget tenants, so the company-scoped path goes first.
	paths := []string{}
	if companyID > 0 {
		paths = append(paths, "/company/"+strconv.Itoa(companyID))
	}
	paths = append(paths, "/")

	var html string
	for _, p := range paths {
		text, status, err := b.fetchText(ctx, domain, p, "text/html,application/xhtml+xml")
		if err != nil {
			b.logger.Log("discovery: could not fetch %s%s: %v", domain, p, err)
			continue
		}
		if status == 200 {
			html = text
			break
		}
	}
	if html == "" {
		b.logger.Log("discovery: no booking page reachable for %s", domain)
		return
	}

	// Step 2: older widget builds inline the token in the markup.
	if token, ok := firstTokenMatch(html); ok {
		b.storePartnerToken(domain, token)
		b.logger.Log("discovery: token found in HTML for %s (%s…)", domain, token[:8])
		return
	}

	// Step 3: main bundle.
	mainMatch := mainBundleRe.FindStringSubmatch(html)
	if mainMatch == nil {
		b.logger.Log("discovery: main bundle not referenced in HTML for %s", domain)
		return
	}
	mainJS, _, err := b.fetchText(ctx, domain, "/"+mainMatch[1], "*/*")
	if err != nil {
		b.logger.Log("discovery: could not fetch %s: %v", mainMatch[1], err)
		return
	}
	if token, ok := firstTokenMatch(mainJS); ok {
		b.storePartnerToken(domain, token)
		b.logger.Log("discovery: token found in main bundle for %s (%s…)", domain, token[:8])
		return
	}

	// Steps 4-5: chunk candidates from two sources, deduplicated with order
	// preserved, then up to chunkScanDepth hops of transitive imports.
	var frontier []string
	seen := make(map[string]bool)
	addChunk := func(name string) {
		if !seen[name] {
			seen[name] = true
			frontier = append(frontier, name)
		}
	}
	for _, m := range chunkHrefRe.FindAllStringSubmatch(html, -1) {
		addChunk(m[1])
	}
	for _, m := range chunkNameRe.FindAllStringSubmatch(mainJS, -1) {
		addChunk(m[1])
	}

	for hop := 0; hop <= chunkScanDepth; hop++ {
		if len(frontier) == 0 {
			return
		}
		b.logger.Log("discovery: scanning %d chunks for %s (hop %d)", len(frontier), domain, hop)
		var next []string
		for _, chunk := range frontier {
			js, _, err := b.fetchText(ctx, domain, "/"+chunk, "*/*")
			if err != nil {
				continue
			}
			if token, ok := firstTokenMatch(js); ok {
				if cfg, found := extractAppConfig(js); found {
					b.storeAppConfig(domain, cfg)
				}
				b.storePartnerToken(domain, token)
				b.logger.Log("discovery: token found in %s for %s (%s…)", chunk, domain, token[:8])
				return
			}
			for _, m := range chunkNameRe.FindAllStringSubmatch(js, -1) {
				if !seen[m[1]] {
					seen[m[1]] = true
					next = append(next, m[1])
				}
			}
		}
		frontier = next
	}

	b.logger.Log("discovery: no token found in any bundle for %s", domain)
}

func (b *BookingClient) storeAppConfig(domain string, cfg appConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.appConfigs[domain]; !ok {
		b.appConfigs[domain] = cfg
	}
}

// fetchText issues a plain navigation-style GET used only by discovery.
func (b *BookingClient) fetchText(ctx context.Context, domain, path, accept string) (string, int, error) {
	sess, err := b.session(domain)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequest(http.MethodGet, b.endpoint(domain, path), nil)
	if err != nil {
		return "", 0, err
	}
	req.Header = http.Header{
		"Accept":          {accept},
		"User-Agent":      {b.profile.UserAgent},
		"Accept-Language": {"ru-RU,ru;q=0.9"},
		http.HeaderOrderKey: {
			"Accept",
			"User-Agent",
			"Accept-Language",
			"Cookie",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}

	resp, err := sess.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := readResponseBody(resp)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(raw), resp.StatusCode, nil
}
