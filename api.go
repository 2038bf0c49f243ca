package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
)

// APIClient talks to the documented REST API on the platform's shared host.
// All calls are admission-controlled by the process-wide host limiter; a 429
// gets exactly one delayed retry.
type APIClient struct {
	baseURL      string
	partnerToken string
	userToken    string
	limiter      *HostLimiter
	client       httpDoer
	logger       Logger
	retryDelay   time.Duration
}

func NewAPIClient(baseURL, partnerToken, userToken string, logger Logger) (*APIClient, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	session, err := NewSession(nil, "")
	if err != nil {
		return nil, err
	}
	return &APIClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		partnerToken: partnerToken,
		userToken:    userToken,
		limiter:      SharedAPILimiter(),
		client:       session,
		logger:       logger,
		retryDelay:   2 * time.Second,
	}, nil
}

// SetUserToken installs an end-user token for user-scoped operations.
func (c *APIClient) SetUserToken(token string) {
	c.userToken = token
}

func (c *APIClient) headers(needsUserToken bool) http.Header {
	h := http.Header{
		"Accept":       {"application/vnd.yclients.v2+json"},
		"Content-Type": {"application/json"},
		http.HeaderOrderKey: {
			"Content-Length",
			"Accept",
			"Content-Type",
			"Authorization",
		},
		http.PHeaderOrderKey: PseudoHeaderOrder,
	}
	if needsUserToken && c.userToken != "" {
		h.Set("Authorization", "Bearer "+c.partnerToken+", User "+c.userToken)
	} else if c.partnerToken != "" {
		h.Set("Authorization", "Bearer "+c.partnerToken)
	}
	return h
}

// Request performs one rate-limited call against the shared host and folds
// the outcome into a map: non-2xx responses carry the status and parsed
// detail, transport failures become structured error values.
func (c *APIClient) Request(ctx context.Context, method, path string, needsUserToken bool, query url.Values, body any) map[string]any {
	if err := c.limiter.Acquire(ctx); err != nil {
		return transportErrorResult(err)
	}

	result, status, err := c.do(method, path, needsUserToken, query, body)
	if err != nil {
		return transportErrorResult(err)
	}

	// Retry once on 429 (rate-limited upstream).
	if status == 429 {
		c.logger.Log("rate-limited (429), retrying %s %s in %v", method, path, c.retryDelay)
		select {
		case <-ctx.Done():
			return transportErrorResult(ctx.Err())
		case <-time.After(c.retryDelay):
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return transportErrorResult(err)
		}
		result, status, err = c.do(method, path, needsUserToken, query, body)
		if err != nil {
			return transportErrorResult(err)
		}
	}

	if status >= 400 {
		return map[string]any{"error": true, "status_code": status, "detail": result}
	}
	return result
}

func (c *APIClient) do(method, path string, needsUserToken bool, query url.Values, body any) (map[string]any, int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, bodyReader)
	if err != nil {
		return nil, 0, err
	}
	req.Header = c.headers(needsUserToken)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Log("%s %s -> error: %v", method, path, err)
		return nil, 0, err
	}
	defer resp.Body.Close()
	c.logger.Log("%s %s -> %d", method, path, resp.StatusCode)

	raw, err := readResponseBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return decodeResult(raw), resp.StatusCode, nil
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// BuildPath fills {placeholder} segments in template from params,
// URL-encoding values. A missing placeholder is a descriptive error naming
// the parameter.
func BuildPath(template string, params map[string]any) (string, error) {
	path := template
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		name := m[1]
		val, ok := params[name]
		if !ok || val == nil {
			return "", fmt.Errorf("missing required parameter: %s", name)
		}
		path = strings.ReplaceAll(path, m[0], url.QueryEscape(fmt.Sprint(val)))
	}
	return path, nil
}

// Operation describes one passthrough entry: method, path template, and
// whether the call needs an end-user token on top of the partner token.
type Operation struct {
	Method         string
	Path           string
	NeedsUserToken bool
}

// operations is the generic passthrough table, name -> REST call. A
// representative slice of the platform catalog; new entries are data, not
// code.
var operations = map[string]Operation{
	"auth":                   {"POST", "/api/v1/auth", false},
	"list_companies":         {"GET", "/api/v1/companies/", false},
	"get_company":            {"GET", "/api/v1/company/{company_id}", false},
	"list_records":           {"GET", "/api/v1/records/{company_id}", true},
	"create_records":         {"POST", "/api/v1/records/{company_id}", true},
	"get_record":             {"GET", "/api/v1/record/{company_id}/{record_id}", true},
	"update_record":          {"PUT", "/api/v1/record/{company_id}/{record_id}", true},
	"delete_record":          {"DELETE", "/api/v1/record/{company_id}/{record_id}", true},
	"list_clients":           {"GET", "/api/v1/clients/{company_id}", true},
	"search_clients":         {"POST", "/api/v1/company/{company_id}/clients/search", true},
	"get_client":             {"GET", "/api/v1/client/{company_id}/{id}", true},
	"list_company_staff":     {"GET", "/api/v1/company/{company_id}/staff/", true},
	"list_company_services":  {"GET", "/api/v1/company/{company_id}/services/", true},
	"get_schedule":           {"GET", "/api/v1/schedule/{company_id}/{staff_id}/{start_date}/{end_date}", true},
	"get_bookform":           {"GET", "/api/v1/bookform/{id}", false},
	"book_check":             {"GET", "/api/v1/book_check/{company_id}", false},
	"book_staff_seances":     {"GET", "/api/v1/book_staff_seances/{company_id}/{staff_id}/", false},
	"delete_user_record":     {"DELETE", "/api/v1/user/records/{record_id}/{record_hash}", false},
	"get_user_record":        {"GET", "/api/v1/user/records/{record_id}/{record_hash}", false},
	"get_timeslots_settings": {"GET", "/api/v1/company/{company_id}/settings/timeslots", false},
}

// Call dispatches one named passthrough operation. Path placeholders are
// filled from params; query and body pass through untouched.
func (c *APIClient) Call(ctx context.Context, operation string, params map[string]any, query url.Values, body any) map[string]any {
	op, ok := operations[operation]
	if !ok {
		names := make([]string, 0, len(operations))
		for name := range operations {
			names = append(names, name)
		}
		sort.Strings(names)
		return errorResult(fmt.Sprintf("unknown operation %q; available: %s", operation, strings.Join(names, ", ")))
	}

	path, err := BuildPath(op.Path, params)
	if err != nil {
		return errorResult(err.Error())
	}
	return c.Request(ctx, op.Method, path, op.NeedsUserToken, query, body)
}
