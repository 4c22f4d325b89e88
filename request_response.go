package fabricbridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultAudience is the token audience used when a request does not name one.
const DefaultAudience = "pbi"

var allowedMethods = []interface{}{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Request describes a single control plane call. It is not modified once
// handed to the client.
type Request struct {
	Method   string
	URL      string
	Payload  any
	Audience string
}

// Response is the raw outcome of one HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       []byte
}

// Result is what Invoke hands back to callers: the status code, the decoded
// body (nil when the response had no content) and a flat copy of the headers.
type Result struct {
	StatusCode int
	Body       any
	Headers    map[string]string
}

// normalized fills in defaults and checks the method and URL.
func (r Request) normalized() (Request, error) {
	out := r
	out.Method = strings.ToUpper(strings.TrimSpace(out.Method))
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	if out.Audience == "" {
		out.Audience = DefaultAudience
	}

	err := validation.ValidateStruct(&out,
		validation.Field(&out.Method, validation.In(allowedMethods...).Error("unsupported method")),
		validation.Field(&out.URL, validation.Required, validation.By(absoluteURL)),
	)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return out, nil
}

// body encodes the payload once so every attempt sends identical bytes.
func (r Request) body() ([]byte, error) {
	if r.Payload == nil {
		return nil, nil
	}
	if raw, ok := r.Payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %v", ErrInvalidRequest, err)
	}
	return data, nil
}

func absoluteURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}
