// config.go
// ---------
// Config is handed to NewClient once and copied; nothing reads global state
// after construction. RetryPolicy governs transport level retries only, and
// PollPolicy governs how long-running operations are tracked.
package fabricbridge

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultOperationsBaseURL = "https://api.fabric.microsoft.com/v1/operations"
	DefaultRequestTimeout    = 240 * time.Second
	DefaultUserAgent         = "fabric-bridge"

	// OperationIDHeader carries the id of an accepted long-running operation.
	OperationIDHeader = "x-ms-operation-id"

	// ClientRequestIDHeader tags each attempt so it can be traced on the
	// service side.
	ClientRequestIDHeader = "x-ms-client-request-id"
)

// RetryPolicy controls how the transport retries a single request.
type RetryPolicy struct {
	MaxAttempts           int           `mapstructure:"max_attempts"` // total attempts, including the first
	BackoffBase           time.Duration `mapstructure:"backoff_base"`
	BackoffMax            time.Duration `mapstructure:"backoff_max"`
	Multiplier            float64       `mapstructure:"multiplier"`
	RetryableStatusCodes  []int         `mapstructure:"retryable_status_codes"`
	RetryOnTransportError bool          `mapstructure:"retry_on_transport_error"`

	// RetryMethods limits status retries to these methods. Empty means any
	// method. Transport errors are retried regardless.
	RetryMethods []string `mapstructure:"retry_methods"`
}

// PollPolicy controls how an accepted operation is tracked to completion.
type PollPolicy struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaxWait         time.Duration `mapstructure:"max_wait"`
	HonorRetryAfter bool          `mapstructure:"honor_retry_after"`
}

// Config is the explicit, per-session configuration of a Client.
type Config struct {
	OperationsBaseURL string        `mapstructure:"operations_base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	Retry             RetryPolicy   `mapstructure:"retry"`
	Poll              PollPolicy    `mapstructure:"poll"`
}

// DefaultRetryPolicy mirrors the platform guidance: three attempts on
// gateway errors with a five second exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:           3,
		BackoffBase:           5 * time.Second,
		BackoffMax:            120 * time.Second,
		Multiplier:            2,
		RetryableStatusCodes:  []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		RetryMethods:          DefaultRetryMethods(),
		RetryOnTransportError: true,
	}
}

// DefaultRetryMethods are the idempotent methods whose retryable statuses
// are retried.
func DefaultRetryMethods() []string {
	return []string{
		http.MethodDelete, http.MethodGet, http.MethodHead,
		http.MethodOptions, http.MethodPut, http.MethodTrace,
	}
}

// DefaultPollPolicy polls every two seconds for at most thirty minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval: 2 * time.Second,
		MaxWait:  30 * time.Minute,
	}
}

// DefaultConfig returns the platform defaults used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		OperationsBaseURL: DefaultOperationsBaseURL,
		RequestTimeout:    DefaultRequestTimeout,
		UserAgent:         DefaultUserAgent,
		Retry:             DefaultRetryPolicy(),
		Poll:              DefaultPollPolicy(),
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.OperationsBaseURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.RequestTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Retry),
		validation.Field(&c.Poll),
	)
}

func (p RetryPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.BackoffBase, validation.Min(time.Duration(0))),
		validation.Field(&p.BackoffMax, validation.Min(p.BackoffBase).Error("must not be less than backoff_base")),
		validation.Field(&p.Multiplier, validation.Required, validation.Min(1.0)),
		validation.Field(&p.RetryableStatusCodes, validation.Each(validation.By(serverErrorCode))),
		validation.Field(&p.RetryMethods, validation.Each(validation.By(knownMethod))),
	)
}

func (p PollPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Interval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&p.MaxWait, validation.Required, validation.Min(p.Interval).Error("must not be less than interval")),
	)
}

func (p RetryPolicy) retryableStatus(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// retryableMethod reports whether a retryable status may be retried for
// method. POST and PATCH are not replayed by default since they may not be
// idempotent.
func (p RetryPolicy) retryableMethod(method string) bool {
	if len(p.RetryMethods) == 0 {
		return true
	}
	for _, m := range p.RetryMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (p RetryPolicy) clone() RetryPolicy {
	p.RetryableStatusCodes = append([]int(nil), p.RetryableStatusCodes...)
	p.RetryMethods = append([]string(nil), p.RetryMethods...)
	return p
}

func knownMethod(value interface{}) error {
	m, _ := value.(string)
	switch strings.ToUpper(m) {
	case http.MethodDelete, http.MethodGet, http.MethodHead, http.MethodOptions,
		http.MethodPatch, http.MethodPost, http.MethodPut, http.MethodTrace:
		return nil
	}
	return fmt.Errorf("%q is not an HTTP method", m)
}

// Client errors are definitional failures and are never retried.
func serverErrorCode(value interface{}) error {
	code, _ := value.(int)
	if code < 500 || code > 599 {
		return fmt.Errorf("%d is not a 5xx status code", code)
	}
	return nil
}
