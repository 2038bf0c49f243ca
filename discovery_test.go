package main

import (
	"context"
	"strings"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstTokenMatchForms(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"api-token", `e={apiToken:"Bearer abcd1234efgh5678"}`, "abcd1234efgh5678"},
		{"bearer", `headers:{Authorization:"Bearer qrst1234uvwx5678"}`, "qrst1234uvwx5678"},
		{"partner-token-dq", `{"partner_token":"dqdq1234dqdq5678"}`, "dqdq1234dqdq5678"},
		{"partner-token-sq", `{'partner_token':'sqsq1234sqsq5678'}`, "sqsq1234sqsq5678"},
		{"partner-token-loose", `partnerToken="loose1234loose56"`, "loose1234loose56"},
		{"partner-token-const", `PARTNER_TOKEN: "const1234const56"`, "const1234const56"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := firstTokenMatch(tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := firstTokenMatch(`var x = "nothing to see";`)
	assert.False(t, ok)
}

func TestFirstTokenMatchPriority(t *testing.T) {
	// The environment-object form outranks the generic key-value forms when
	// both appear in the same chunk.
	text := `{"partner_token":"genericgeneric12"};e={apiToken:"Bearer specific12345678"}`
	got, ok := firstTokenMatch(text)
	require.True(t, ok)
	assert.Equal(t, "specific12345678", got)
}

func TestExtractAppConfig(t *testing.T) {
	js := `e={apiToken:"Bearer tok",name:"client.booking",version:"abc123.def456",brandDomain:"yclients"}`
	cfg, found := extractAppConfig(js)
	require.True(t, found)
	assert.Equal(t, "client.booking", cfg.Name)
	assert.Equal(t, "abc123.def456", cfg.Version)
	assert.Equal(t, "yclients", cfg.BrandDomain)

	_, found = extractAppConfig(`var unrelated = 1;`)
	assert.False(t, found)
}

func TestEnsurePartnerTokenGlobalWins(t *testing.T) {
	c, doer := newTestClient("globaltok1234", func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected when a global token is configured")
		return nil, nil
	})

	c.ensurePartnerToken(context.Background(), "n10.yclients.com", 1000000)
	assert.Equal(t, "globaltok1234", c.cachedPartnerToken("n10.yclients.com"))
	assert.Equal(t, 0, doer.callCount())
}

func TestScanFindsTokenInHTML(t *testing.T) {
	html := `<html><body data-cfg='{"partner_token":"htmltoken1234567"}'></body></html>`
	c, doer := newTestClient("", func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/company/999999" {
			return htmlResponse(200, html)
		}
		return htmlResponse(404, "not found")
	})

	c.ensurePartnerToken(context.Background(), "n11.yclients.com", 999999)
	assert.Equal(t, "htmltoken1234567", c.cachedPartnerToken("n11.yclients.com"))
	assert.Equal(t, 1, doer.callCount(), "HTML hit should stop the scan")
}

func TestScanFallsBackToRootWhenCompanyPageFails(t *testing.T) {
	html := `<html>{"partner_token":"roottoken1234567"}</html>`
	c, _ := newTestClient("", func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/" {
			return htmlResponse(200, html)
		}
		return htmlResponse(403, "forbidden")
	})

	c.ensurePartnerToken(context.Background(), "n12.yclients.com", 999999)
	assert.Equal(t, "roottoken1234567", c.cachedPartnerToken("n12.yclients.com"))
}

func TestScanFindsTokenInTransitiveChunk(t *testing.T) {
	pages := map[string]string{
		"/company/777777": `<html><script src="main-XYZ9.js"></script></html>`,
		"/main-XYZ9.js":   `import("./chunk-AAA1.js");`,
		"/chunk-AAA1.js":  `export * from "./chunk-BBB2.js";`,
		"/chunk-BBB2.js":  `e={apiToken:"Bearer deeptoken1234567",name:"client.booking",version:"abc123.def456",brandDomain:"yclients"}`,
	}
	c, doer := newTestClient("", func(req *http.Request) (*http.Response, error) {
		if body, ok := pages[req.URL.Path]; ok {
			return htmlResponse(200, body)
		}
		return htmlResponse(404, "not found")
	})

	domain := "n13.yclients.com"
	c.ensurePartnerToken(context.Background(), domain, 777777)
	assert.Equal(t, "deeptoken1234567", c.cachedPartnerToken(domain))

	// The app config travels with the token's chunk.
	c.mu.Lock()
	cfg, hasCfg := c.appConfigs[domain]
	c.mu.Unlock()
	require.True(t, hasCfg)
	assert.Equal(t, "client.booking", cfg.Name)
	assert.Equal(t, "abc123.def456", cfg.Version)

	// Scanning is one-shot: a second call must not refetch anything.
	fetched := doer.callCount()
	c.ensurePartnerToken(context.Background(), domain, 777777)
	assert.Equal(t, fetched, doer.callCount())
}

func TestScanChunkDedup(t *testing.T) {
	// The same chunk referenced from the HTML and the main bundle is fetched
	// at most once.
	html := `<html><link href="chunk-DUP1.js"><script src="main-M1.js"></script></html>`
	var chunkFetches int
	c, _ := newTestClient("", func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/company/555555", "/":
			return htmlResponse(200, html)
		case "/main-M1.js":
			return htmlResponse(200, `import("./chunk-DUP1.js");`)
		case "/chunk-DUP1.js":
			chunkFetches++
			return htmlResponse(200, `var nothing = true;`)
		}
		return htmlResponse(404, "not found")
	})

	c.ensurePartnerToken(context.Background(), "n14.yclients.com", 555555)
	assert.Equal(t, "", c.cachedPartnerToken("n14.yclients.com"))
	assert.Equal(t, 1, chunkFetches)
}

func TestScanFailureLeavesNothingCached(t *testing.T) {
	c, _ := newTestClient("", func(req *http.Request) (*http.Response, error) {
		return htmlResponse(403, "forbidden")
	})

	c.ensurePartnerToken(context.Background(), "n15.yclients.com", 444444)
	assert.Equal(t, "", c.cachedPartnerToken("n15.yclients.com"))
}

func TestSharedHostBorrowsTenantToken(t *testing.T) {
	c, doer := newTestClient("", nil)
	c.storePartnerToken("n16.yclients.com", "tenanttok1234567")

	c.ensurePartnerToken(context.Background(), apiHost, 0)
	assert.Equal(t, "tenanttok1234567", c.cachedPartnerToken(apiHost))
	assert.Equal(t, 0, doer.callCount())
}

func TestSharedHostBootstrapsWhenNothingCached(t *testing.T) {
	html := `<html>{"partner_token":"bootstrap1234567"}</html>`
	c, _ := newTestClient("", func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == bootstrapDomain && strings.HasPrefix(req.URL.Path, "/company/") {
			return htmlResponse(200, html)
		}
		return htmlResponse(404, "not found")
	})

	c.ensurePartnerToken(context.Background(), apiHost, 0)
	assert.Equal(t, "bootstrap1234567", c.cachedPartnerToken(apiHost))
	assert.Equal(t, "bootstrap1234567", c.cachedPartnerToken(bootstrapDomain))
}
