package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	http "github.com/bogdanfinn/fhttp"
)

// The booking confirmation flow runs against the platform's shared host, not
// the tenant subdomain. Each call is independent and retry-idempotent: the
// platform owns the confirmation token's lifecycle, no state is kept here.
//
//	Started -> (CaptchaRequired -> CaptchaSubmitted)? -> CodeSubmitted -> Confirmed|Failed

// UserConfirmStartCheck triggers an SMS to the user tied to the pending
// booking's confirmation token. The response flags whether a CAPTCHA
// solution must be submitted before the code.
func (b *BookingClient) UserConfirmStartCheck(ctx context.Context, token string) map[string]any {
	return b.confirmRequest(ctx, token, "start_check", nil)
}

// UserConfirmCheckCaptcha submits a solved CAPTCHA for the pending booking.
// Only needed when start_check demanded one.
func (b *BookingClient) UserConfirmCheckCaptcha(ctx context.Context, token, captchaToken string) map[string]any {
	return b.confirmRequest(ctx, token, "check_captcha", map[string]any{"captcha_token": captchaToken})
}

// UserConfirmCheckCode submits the SMS code and finalizes the booking.
func (b *BookingClient) UserConfirmCheckCode(ctx context.Context, token, code string) map[string]any {
	return b.confirmRequest(ctx, token, "check_code", map[string]any{"code": code})
}

func (b *BookingClient) confirmRequest(ctx context.Context, token, action string, body any) map[string]any {
	partner := b.globalToken
	if partner == "" {
		partner = b.anyPartnerToken()
	}

	if err := b.limiter.Acquire(ctx); err != nil {
		return transportErrorResult(err)
	}

	sess, err := b.session(apiHost)
	if err != nil {
		return transportErrorResult(err)
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errorResult("could not encode request body: " + err.Error())
		}
		bodyReader = bytes.NewReader(raw)
	}

	target := b.endpoint(apiHost, "/api/v1/user/confirm/token/"+token+"/"+action)
	req, err := http.NewRequest(http.MethodPost, target, bodyReader)
	if err != nil {
		return errorResult(err.Error())
	}

	// The confirmation page lives on the platform's main site, so the
	// same-origin headers point there rather than at a tenant subdomain.
	req.Header = http.Header{
		"Accept":          {"application/json, text/plain, */*"},
		"Content-Type":    {"application/json"},
		"User-Agent":      {b.profile.UserAgent},
		"Origin":          {"https://" + platformDomain},
		"Referer":         {"https://" + platformDomain + "/user/confirm/" + token + "/"},
		"Accept-Encoding": {"gzip, deflate, br, zstd"},
		"Accept-Language": {"ru-RU,ru;q=0.9"},
		http.HeaderOrderKey: {
			"Content-Length",
			"User-Agent",
			"Accept",
			"Content-Type",
			"Authorization",
			"Origin",
			"Referer",
			"Accept-Encoding",
			"Accept-Language",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if partner != "" {
		req.Header.Set("Authorization", "Bearer "+partner)
	}

	resp, err := sess.Do(req)
	if err != nil {
		b.logger.Log("POST user/confirm/%s -> error: %v", action, err)
		return transportErrorResult(err)
	}
	defer resp.Body.Close()
	b.logger.Log("POST user/confirm/%s -> %d", action, resp.StatusCode)

	raw, err := readResponseBody(resp)
	if err != nil {
		return transportErrorResult(err)
	}

	data := decodeResult(raw)
	if resp.StatusCode >= 400 {
		data["_status_code"] = resp.StatusCode
	}
	return data
}
