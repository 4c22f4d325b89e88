package fabricbridge

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// Normalize turns a raw response into a Result. It does not judge the
// status code; that is left to the caller.
func Normalize(resp *Response) *Result {
	if resp == nil {
		return nil
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		headers[k] = strings.Join(vals, ", ")
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(resp.Data),
		Headers:    headers,
	}
}

// decodeBody returns nil for empty content. Content that is not JSON is kept
// as text rather than discarded. Numbers decode to float64 unless that would
// lose precision, in which case they stay as json.Number.
func decodeBody(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(data)
	}
	if _, err := dec.Token(); err != io.EOF {
		return string(data)
	}
	return exactNumbers(v)
}

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

func exactNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = exactNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = exactNumbers(e)
		}
		return t
	case json.Number:
		if !strings.ContainsAny(string(t), ".eE") {
			i, err := strconv.ParseInt(string(t), 10, 64)
			if err != nil || i > maxExactInt || i < -maxExactInt {
				return t
			}
			return float64(i)
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}
