package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ListServices returns bookable services, flattening the API's
// category -> services nesting and tagging each service with its category.
func (b *BookingClient) ListServices(ctx context.Context, domain string, companyID int, staffID int) map[string]any {
	params := url.Values{}
	if staffID > 0 {
		params.Set("staff_id", strconv.Itoa(staffID))
	}
	raw := b.request(ctx, domain, "GET", "/api/v1/book_services/"+strconv.Itoa(companyID), params, nil, nil)

	items := asList(raw["services"])
	if items == nil {
		items = asList(raw["data"])
	}
	if items == nil {
		return raw // pass through errors
	}

	var flat []map[string]any
	for _, item := range items {
		entry := asMap(item)
		if entry == nil {
			continue
		}
		if nested := asList(entry["services"]); nested != nil {
			category := asString(entry["title"])
			for _, n := range nested {
				if svc := asMap(n); svc != nil {
					svc["category"] = category
					flat = append(flat, svc)
				}
			}
		} else {
			flat = append(flat, entry)
		}
	}

	compact := make([]any, 0, len(flat))
	for _, s := range flat {
		entry := map[string]any{
			"id":    s["id"],
			"title": asString(s["title"]),
		}
		if price, ok := s["price_min"]; ok && price != nil {
			entry["price_min"] = price
		}
		if priceMax, ok := s["price_max"]; ok && priceMax != nil && priceMax != s["price_min"] {
			entry["price_max"] = priceMax
		}
		if seconds, ok := asInt(s["seance_length"]); ok && seconds > 0 {
			entry["duration_min"] = seconds / 60
		}
		if category := asString(s["category"]); category != "" {
			entry["category"] = category
		}
		compact = append(compact, entry)
	}
	return map[string]any{"success": true, "count": len(compact), "services": compact}
}

// ListStaff returns bookable staff in compact form.
func (b *BookingClient) ListStaff(ctx context.Context, domain string, companyID int) map[string]any {
	raw := b.request(ctx, domain, "GET", "/api/v1/book_staff/"+strconv.Itoa(companyID), nil, nil, nil)
	staff := asList(raw["data"])
	if staff == nil {
		return raw
	}
	compact := make([]any, 0, len(staff))
	for _, item := range staff {
		s := asMap(item)
		if s == nil {
			continue
		}
		entry := map[string]any{
			"id":   s["id"],
			"name": asString(s["name"]),
		}
		if spec := asString(s["specialization"]); spec != "" {
			entry["specialization"] = spec
		}
		if rating, ok := s["rating"]; ok && rating != nil && rating != float64(0) {
			entry["rating"] = rating
		}
		compact = append(compact, entry)
	}
	return map[string]any{"success": true, "count": len(compact), "staff": compact}
}

// ListDates returns the dates open for booking.
func (b *BookingClient) ListDates(ctx context.Context, domain string, companyID, staffID int) map[string]any {
	params := url.Values{}
	if staffID > 0 {
		params.Set("staff_id", strconv.Itoa(staffID))
	}
	raw := b.request(ctx, domain, "GET", "/api/v1/book_dates/"+strconv.Itoa(companyID), params, nil, nil)
	if raw["error"] == true {
		return raw
	}
	workingDates := raw["working_dates"]
	if workingDates == nil {
		if data := asMap(raw["data"]); data != nil {
			workingDates = data["working_dates"]
		}
	}
	if workingDates == nil {
		workingDates = []any{}
	}
	return map[string]any{"success": true, "working_dates": workingDates}
}

// ListTimes returns available time slots for a staff member on a date.
func (b *BookingClient) ListTimes(ctx context.Context, domain string, companyID, staffID int, date string) map[string]any {
	path := fmt.Sprintf("/api/v1/book_times/%d/%d/%s", companyID, staffID, date)
	raw := b.request(ctx, domain, "GET", path, nil, nil, nil)
	slots := asList(raw["data"])
	if slots == nil {
		return raw
	}
	compact := make([]any, 0, len(slots))
	for _, item := range slots {
		s := asMap(item)
		if s == nil {
			continue
		}
		durationMin := 0
		if seconds, ok := asInt(s["seance_length"]); ok {
			durationMin = seconds / 60
		}
		compact = append(compact, map[string]any{
			"time":         asString(s["time"]),
			"datetime":     asString(s["datetime"]),
			"duration_min": durationMin,
		})
	}
	return map[string]any{"success": true, "count": len(compact), "slots": compact}
}

// BookRecordParams carries the appointment creation payload.
type BookRecordParams struct {
	StaffID       int
	ServiceIDs    []int
	Datetime      string // ISO datetime, e.g. "2026-02-28T14:30:00+03:00"
	Phone         string
	Fullname      string
	Email         string
	Comment       string
	NotifyBySMS   int
	NotifyByEmail int
	CaptchaToken  string // solved reCAPTCHA v3 token, when available
}

// BookRecord creates a regular appointment. An HTTP 412 is not an error: the
// platform is demanding CAPTCHA and/or phone re-verification, and the result
// describes how to enter the confirmation flow.
func (b *BookingClient) BookRecord(ctx context.Context, domain string, companyID int, p BookRecordParams) map[string]any {
	services := make([]map[string]any, 0, len(p.ServiceIDs))
	for _, id := range p.ServiceIDs {
		services = append(services, map[string]any{"id": id})
	}
	body := map[string]any{
		"phone":           p.Phone,
		"fullname":        p.Fullname,
		"email":           p.Email,
		"comment":         p.Comment,
		"notify_by_sms":   p.NotifyBySMS,
		"notify_by_email": p.NotifyByEmail,
		"appointments": []map[string]any{{
			"id":       1,
			"services": services,
			"staff_id": p.StaffID,
			"datetime": p.Datetime,
		}},
		"is_personal_data_processing_allowed":    true,
		"is_newsletter_allowed":                  false,
		"is_yc_newsletter_allowed":               false,
		"is_yc_personal_data_processing_allowed": false,
	}

	var extra map[string]string
	if p.CaptchaToken != "" {
		extra = map[string]string{"X-App-Validation-Token": p.CaptchaToken}
	}

	result := b.request(ctx, domain, "POST", "/api/v1/book_record/"+strconv.Itoa(companyID), nil, body, extra)

	if status, _ := asInt(result["_status_code"]); status == 412 {
		return confirmationChallenge(result)
	}
	return result
}

var confirmTokenRe = regexp.MustCompile(`/user/confirm/([a-f0-9]{40,})`)

// confirmationChallenge reinterprets a 412 booking response as a
// machine-actionable "confirmation required" result. The security payload
// comes from the dedicated response header when present, falling back to the
// JSON error body; the confirm token may have to be parsed out of a URL path
// segment.
func confirmationChallenge(result map[string]any) map[string]any {
	security := asMap(result["_security_level"])
	if security == nil {
		security = asMap(asMap(result["errors"])["X-App-Security-Level"])
	}

	recaptchaKey := asString(asMap(security["recaptcha_v3"])["key"])
	userConfirm := asMap(security["user_confirm"])
	confirmURL := asString(userConfirm["url"])
	confirmToken := asString(userConfirm["token"])
	if confirmToken == "" && confirmURL != "" {
		if m := confirmTokenRe.FindStringSubmatch(confirmURL); m != nil {
			confirmToken = m[1]
		}
	}

	var msg strings.Builder
	msg.WriteString("Phone verification is required to finish this booking.")
	if confirmToken != "" {
		msg.WriteString(" Start the confirmation flow with token: " + confirmToken)
	}
	if recaptchaKey != "" {
		msg.WriteString(" reCAPTCHA site key: " + recaptchaKey)
	}

	challenge := map[string]any{
		"error":            true,
		"requires_captcha": true,
		"message":          msg.String(),
	}
	if recaptchaKey != "" {
		challenge["recaptcha_v3_key"] = recaptchaKey
	}
	if confirmURL != "" {
		challenge["user_confirm_url"] = confirmURL
	}
	if confirmToken != "" {
		challenge["user_confirm_token"] = confirmToken
	}
	return challenge
}

// SearchActivities lists group activities for a date.
func (b *BookingClient) SearchActivities(ctx context.Context, domain string, companyID int, date string, staffID, serviceID int) map[string]any {
	q := url.Values{"date": {date}}
	if staffID > 0 {
		q.Set("staff_id", strconv.Itoa(staffID))
	}
	if serviceID > 0 {
		q.Set("service_id", strconv.Itoa(serviceID))
	}
	return b.request(ctx, domain, "GET", fmt.Sprintf("/api/v1/activity/%d/search", companyID), q, nil, nil)
}

// BookActivityParams carries the group-activity booking payload.
type BookActivityParams struct {
	Phone         string
	Fullname      string
	Email         string
	Comment       string
	Abonement     bool
	NotifyBySMS   int
	NotifyByEmail int
}

// BookActivity books a group activity. The group flow is a single call with
// no confirmation sub-flow.
func (b *BookingClient) BookActivity(ctx context.Context, domain string, companyID, activityID int, p BookActivityParams) map[string]any {
	path := fmt.Sprintf("/api/v1/activity/%d/%d/book", companyID, activityID)
	return b.request(ctx, domain, "POST", path, nil, map[string]any{
		"phone":           p.Phone,
		"fullname":        p.Fullname,
		"email":           p.Email,
		"comment":         p.Comment,
		"abonement":       p.Abonement,
		"notify_by_sms":   p.NotifyBySMS,
		"notify_by_email": p.NotifyByEmail,
		"is_personal_data_processing_allowed":    true,
		"is_newsletter_allowed":                  false,
		"is_yc_newsletter_allowed":               false,
		"is_yc_personal_data_processing_allowed": false,
	}, nil)
}
