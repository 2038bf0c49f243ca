package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// SendSMSCode requests an SMS confirmation code for phone. It mirrors the
// real widget's flow: a GET to the channel endpoint first (informational
// pre-flight, its outcome never blocks the send), then the POST that
// triggers the SMS.
func (b *BookingClient) SendSMSCode(ctx context.Context, domain string, companyID int, phone string) map[string]any {
	referer := fmt.Sprintf("https://%s/company/%d", domain, companyID)
	extra := map[string]string{"Referer": referer}

	channelPath := fmt.Sprintf("/api/v1/book_code/%d/channel", companyID)
	channel := b.request(ctx, domain, "GET", channelPath, url.Values{"phone": {phone}}, nil, extra)
	b.logger.Log("book_code channel response: %v", channel)

	return b.request(ctx, domain, "POST", "/api/v1/book_code/"+strconv.Itoa(companyID),
		nil, map[string]any{"phone": phone}, extra)
}

// VerifySMSCode submits the received code. On success the returned user
// token is cached for the domain; on failure prior cached state is left
// untouched.
func (b *BookingClient) VerifySMSCode(ctx context.Context, domain string, companyID int, phone, code string) map[string]any {
	result := b.request(ctx, domain, "POST", "/api/v1/user/auth", nil, map[string]any{
		"phone":      phone,
		"code":       code,
		"company_id": companyID,
	}, nil)

	userToken := asString(result["user_token"])
	if userToken == "" {
		userToken = asString(asMap(result["data"])["user_token"])
	}
	if userToken != "" {
		b.SetUserToken(domain, userToken)
		b.logger.Log("user token stored for %s", domain)
	}
	return result
}

// SetUserToken installs a user token obtained out of band, bypassing the
// SMS flow.
func (b *BookingClient) SetUserToken(domain, userToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userTokens[domain] = userToken
}

// GetUserToken returns the cached user token for domain, if any.
func (b *BookingClient) GetUserToken(domain string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userTokens[domain]
}
