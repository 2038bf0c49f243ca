package main

import (
	"encoding/json"
	"io"

	http "github.com/bogdanfinn/fhttp"
)

// PseudoHeaderOrder is the standard HTTP/2 pseudo-header order for all requests.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// rawBodyLimit caps how much of a non-JSON response body is passed through.
const rawBodyLimit = 2000

// httpDoer is the slice of tls_client.HttpClient the request paths need.
// Tests inject fakes; production code passes the real session.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// readResponseBody decompresses and reads the full response body.
// Caller should defer resp.Body.Close() before calling this.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	return io.ReadAll(body)
}

// decodeResult parses a response body into a map. Non-JSON bodies degrade to
// a truncated raw-text payload; top-level JSON arrays are wrapped under "data"
// so every operation returns a map.
func decodeResult(body []byte) map[string]any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"data": truncate(string(body), rawBodyLimit)}
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		return map[string]any{"data": t}
	default:
		return map[string]any{"data": t}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Loose accessors for the map[string]any payloads every operation traffics in.
// JSON numbers decode as float64; ids sometimes arrive as strings.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}
