package main

import "os"

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X main.partnerToken=YOUR_TOKEN"
var (
	partnerToken  string // -X main.partnerToken=...
	captchaAPIKey string // -X main.captchaAPIKey=...
)

// GetPartnerToken returns the globally configured partner token
// (build-time or env fallback). May be empty: the booking client will then
// scan tenant bundles for an embedded token instead.
func GetPartnerToken() string {
	if partnerToken != "" {
		return partnerToken
	}
	return os.Getenv("YCLIENTS_PARTNER_TOKEN")
}

// GetUserToken returns a pre-obtained user token, if any.
func GetUserToken() string {
	return os.Getenv("YCLIENTS_USER_TOKEN")
}

// GetAPIBaseURL returns the shared REST host base URL.
func GetAPIBaseURL() string {
	if v := os.Getenv("YCLIENTS_BASE_URL"); v != "" {
		return v
	}
	return "https://" + apiHost
}

// GetCaptchaAPIKey returns the 2Captcha API key (build-time or env fallback).
func GetCaptchaAPIKey() string {
	if captchaAPIKey != "" {
		return captchaAPIKey
	}
	return os.Getenv("2CAP_KEY")
}

// GetCapSolverAPIKey returns the CapSolver API key.
func GetCapSolverAPIKey() string {
	return os.Getenv("CAPSOLVER_KEY")
}

// GetProxyURL returns an optional proxy applied to new tenant sessions.
func GetProxyURL() string {
	return os.Getenv("YCLIENTS_PROXY")
}

// GetProxyFile returns an optional proxy list file; when set, each run picks
// a random proxy from the pool instead of using YCLIENTS_PROXY.
func GetProxyFile() string {
	return os.Getenv("YCLIENTS_PROXY_FILE")
}
