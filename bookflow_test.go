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

const testConfirmToken = "0123456789abcdef0123456789abcdef01234567"

func TestListServicesFlattensCategories(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
		  "services": [
		    {"title": "Hair", "services": [
		      {"id": 1, "title": "Cut", "price_min": 1000, "price_max": 1500, "seance_length": 3600},
		      {"id": 2, "title": "Color", "price_min": 2000, "price_max": 2000, "seance_length": 5400}
		    ]},
		    {"id": 3, "title": "Standalone", "price_min": 500}
		  ]
		}`)
	})

	result := c.ListServices(context.Background(), "n20.yclients.com", 200001, 0)
	require.Equal(t, true, result["success"])
	services := asList(result["services"])
	require.Len(t, services, 3)

	cut := asMap(services[0])
	assert.Equal(t, "Cut", cut["title"])
	assert.Equal(t, "Hair", cut["category"])
	assert.Equal(t, 60, cut["duration_min"])
	assert.Equal(t, float64(1500), cut["price_max"], "differing max price kept")

	color := asMap(services[1])
	assert.Equal(t, 90, color["duration_min"])
	_, hasMax := color["price_max"]
	assert.False(t, hasMax, "max equal to min is dropped")

	standalone := asMap(services[2])
	assert.Equal(t, "Standalone", standalone["title"])
	_, hasCategory := standalone["category"]
	assert.False(t, hasCategory)
}

func TestListTimesCompaction(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"data":[
		  {"time":"10:00","datetime":"2026-09-01T10:00:00+03:00","seance_length":3600},
		  {"time":"11:00","datetime":"2026-09-01T11:00:00+03:00","seance_length":1800}
		]}`)
	})

	result := c.ListTimes(context.Background(), "n21.yclients.com", 200002, 12, "2026-09-01")
	slots := asList(result["slots"])
	require.Len(t, slots, 2)
	assert.Equal(t, "10:00", asMap(slots[0])["time"])
	assert.Equal(t, 60, asMap(slots[0])["duration_min"])
	assert.Equal(t, 30, asMap(slots[1])["duration_min"])
}

func TestBookRecordSuccess(t *testing.T) {
	var captured map[string]any
	c, doer := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &captured)
		return jsonResponse(201, `{"success":true,"data":[{"record_id":555}]}`)
	})

	result := c.BookRecord(context.Background(), "n22.yclients.com", 200003, BookRecordParams{
		StaffID:    12,
		ServiceIDs: []int{1, 2},
		Datetime:   "2026-09-01T10:00:00+03:00",
		Phone:      "79001234567",
		Fullname:   "Test Client",
	})
	require.Equal(t, true, result["success"])
	assert.Equal(t, 1, doer.callCount())

	appointments := asList(captured["appointments"])
	require.Len(t, appointments, 1)
	appt := asMap(appointments[0])
	assert.Equal(t, float64(12), appt["staff_id"])
	assert.Len(t, asList(appt["services"]), 2)
	assert.Equal(t, true, captured["is_personal_data_processing_allowed"])
}

func TestBookRecord412HeaderChallenge(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(412, `{"success":false}`)
		resp.Header.Set("X-App-Security-Level",
			`{"recaptcha_v3":{"key":"sitekey123"},"user_confirm":{"url":"https://yclients.com/user/confirm/`+testConfirmToken+`/"}}`)
		return resp, nil
	})

	result := c.BookRecord(context.Background(), "n23.yclients.com", 200004, BookRecordParams{
		StaffID: 1, Datetime: "2026-09-01T10:00:00", Phone: "79001234567", Fullname: "X",
	})

	assert.Equal(t, true, result["error"])
	assert.Equal(t, true, result["requires_captcha"])
	assert.Equal(t, "sitekey123", result["recaptcha_v3_key"])
	assert.Equal(t, testConfirmToken, result["user_confirm_token"], "token parsed out of the URL")
	assert.Contains(t, asString(result["message"]), testConfirmToken)
}

func TestBookRecord412BodyFallback(t *testing.T) {
	c, _ := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(412, `{
		  "success": false,
		  "errors": {"X-App-Security-Level": {"user_confirm": {"token": "`+testConfirmToken+`", "url": "https://yclients.com/confirm"}}}
		}`), nil
	})

	result := c.BookRecord(context.Background(), "n24.yclients.com", 200005, BookRecordParams{
		StaffID: 1, Datetime: "2026-09-01T10:00:00", Phone: "79001234567", Fullname: "X",
	})

	assert.Equal(t, true, result["requires_captcha"])
	assert.Equal(t, testConfirmToken, result["user_confirm_token"])
	_, hasKey := result["recaptcha_v3_key"]
	assert.False(t, hasKey)
}

func TestBookRecordCaptchaTokenHeader(t *testing.T) {
	c, doer := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		return jsonResponse(201, `{"success":true}`)
	})

	c.BookRecord(context.Background(), "n25.yclients.com", 200006, BookRecordParams{
		StaffID: 1, Datetime: "2026-09-01T10:00:00", Phone: "79001234567", Fullname: "X",
		CaptchaToken: "v3token",
	})
	assert.Equal(t, "v3token", doer.lastCall().Header.Get("X-App-Validation-Token"))
}

func TestBookActivityPayload(t *testing.T) {
	var captured map[string]any
	c, doer := newTestClient("tok123456", func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &captured)
		return jsonResponse(200, `{"success":true}`)
	})

	c.BookActivity(context.Background(), "n26.yclients.com", 200007, 33, BookActivityParams{
		Phone: "79001234567", Fullname: "Y",
	})
	assert.Equal(t, "/api/v1/activity/200007/33/book", doer.lastCall().URL.Path)
	assert.Equal(t, "79001234567", captured["phone"])
	assert.Equal(t, false, captured["abonement"])
}
