package main

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSMSCodeFlow(t *testing.T) {
	c, doer := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"success":true}`)
	})

	result := c.SendSMSCode(context.Background(), "n30.yclients.com", 300001, "79001234567")
	require.Equal(t, true, result["success"])

	// Channel pre-flight first, then the POST that sends the SMS.
	require.Equal(t, 2, doer.callCount())
	doer.mu.Lock()
	first, second := doer.calls[0], doer.calls[1]
	doer.mu.Unlock()
	assert.Equal(t, "GET", first.Method)
	assert.Equal(t, "/api/v1/book_code/300001/channel", first.URL.Path)
	assert.Equal(t, "79001234567", first.URL.Query().Get("phone"))
	assert.Equal(t, "POST", second.Method)
	assert.Equal(t, "/api/v1/book_code/300001", second.URL.Path)
}

func TestSendSMSCodeChannelFailureDoesNotBlockSend(t *testing.T) {
	c, doer := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		if req.Method == "GET" {
			return jsonResponse(500, `{"success":false}`)
		}
		return jsonResponse(200, `{"success":true}`)
	})

	result := c.SendSMSCode(context.Background(), "n31.yclients.com", 300002, "79001234567")
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 2, doer.callCount())
}

func TestVerifySMSCodeCachesTokenOnSuccess(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"success":true,"data":{"user_token":"usertok99"}}`)
	})

	domain := "n32.yclients.com"
	result := c.VerifySMSCode(context.Background(), domain, 300003, "79001234567", "1234")
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "usertok99", c.GetUserToken(domain))
}

func TestVerifySMSCodeTopLevelToken(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"success":true,"user_token":"toplevel7"}`)
	})

	domain := "n33.yclients.com"
	c.VerifySMSCode(context.Background(), domain, 300004, "79001234567", "1234")
	assert.Equal(t, "toplevel7", c.GetUserToken(domain))
}

func TestVerifySMSCodeFailureLeavesCacheUntouched(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(422, `{"success":false,"meta":{"message":"wrong code"}}`)
	})

	domain := "n34.yclients.com"
	c.SetUserToken(domain, "existing1")
	result := c.VerifySMSCode(context.Background(), domain, 300005, "79001234567", "0000")
	status, _ := asInt(result["_status_code"])
	assert.Equal(t, 422, status)
	assert.Equal(t, "existing1", c.GetUserToken(domain))
}

func TestVerifySMSCodeSendsCompanyID(t *testing.T) {
	var captured map[string]any
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &captured)
		return jsonResponse(200, `{"success":true}`)
	})

	c.VerifySMSCode(context.Background(), "n35.yclients.com", 300006, "79001234567", "4321")
	assert.Equal(t, float64(300006), captured["company_id"])
	assert.Equal(t, "4321", captured["code"])
}
