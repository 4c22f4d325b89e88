package fabricbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/opengovern/fabric-bridge/internal"
	"github.com/opengovern/fabric-bridge/metrics"
)

type sleepFunc func(ctx context.Context, d time.Duration) error

// Transport sends one request with retry and backoff. It keeps no state
// between calls to Send.
type Transport struct {
	client    Doer
	tokens    TokenProvider
	policy    RetryPolicy
	timeout   time.Duration
	userAgent string
	logger    hclog.Logger

	sleep sleepFunc
	now   func() time.Time
}

// NewTransport builds the retrying transport. A nil client means
// http.DefaultClient.
func NewTransport(cfg Config, tokens TokenProvider, client Doer, logger hclog.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Transport{
		client:    client,
		tokens:    tokens,
		policy:    cfg.Retry,
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		logger:    logger,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Send issues req, retrying transport failures and retryable status codes
// until the policy's attempt budget is spent. A retryable status that
// survives the budget is returned as a normal response.
func (t *Transport) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := req.body()
	if err != nil {
		return nil, err
	}

	token, err := t.tokens.Token(ctx, req.Audience)
	if err == nil && token == "" {
		err = errors.New("token provider returned an empty token")
	}
	if err != nil {
		return nil, &AuthError{Audience: req.Audience, Err: err}
	}

	schedule := t.policy.newSchedule()
	var errs *multierror.Error
	var prev time.Duration

	for attempt := 1; ; attempt++ {
		t.logger.Trace("sending request", "method", req.Method, "url", req.URL, "attempt", attempt)
		resp, err := t.attempt(ctx, req, token, body)

		var reason string
		switch {
		case err != nil:
			metrics.RecordAttempt(req.Method, 0)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = multierror.Append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
			if !t.policy.RetryOnTransportError {
				return nil, &TransportError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: errs.ErrorOrNil()}
			}
			reason = "network"
			if isTimeout(err) {
				reason = "timeout"
			}
		case t.policy.retryableStatus(resp.StatusCode) && t.policy.retryableMethod(req.Method):
			metrics.RecordAttempt(req.Method, resp.StatusCode)
			reason = "http_5xx"
		default:
			metrics.RecordAttempt(req.Method, resp.StatusCode)
			if attempt > 1 {
				t.logger.Debug("request succeeded after retry", "method", req.Method, "url", req.URL, "attempts", attempt, "status", resp.StatusCode)
			}
			return resp, nil
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			if err != nil {
				t.logger.Debug("retry budget exhausted", "method", req.Method, "url", req.URL, "attempts", attempt, "error", err)
				return nil, &TransportError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: errs.ErrorOrNil()}
			}
			t.logger.Debug("retry budget exhausted", "method", req.Method, "url", req.URL, "attempts", attempt, "status", resp.StatusCode)
			return resp, nil
		}

		if resp != nil {
			if ra, ok := internal.ParseRetryAfter(resp.Header.Get("Retry-After"), t.now()); ok && ra > wait {
				wait = ra
			}
		}
		if limit := t.policy.maxBackoff(); wait > limit {
			wait = limit
		}
		if wait < prev {
			wait = prev
		}
		prev = wait

		metrics.RecordRetry(reason)
		t.logger.Debug("retrying request", "method", req.Method, "url", req.URL,
			"attempt", attempt, "max_attempts", t.policy.MaxAttempts, "reason", reason, "wait", wait)

		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) attempt(ctx context.Context, req *Request, token string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, rdr)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(ClientRequestIDHeader, uuid.NewString())
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Data:       data,
	}, nil
}

// newSchedule builds a jitter-free exponential schedule that yields at most
// MaxAttempts-1 waits.
func (p RetryPolicy) newSchedule() backoff.BackOff {
	if p.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BackoffBase
	exp.RandomizationFactor = 0
	exp.Multiplier = p.Multiplier
	if exp.Multiplier < 1 {
		exp.Multiplier = 1
	}
	exp.MaxInterval = p.maxBackoff()
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1))
}

func (p RetryPolicy) maxBackoff() time.Duration {
	if p.BackoffMax > 0 {
		return p.BackoffMax
	}
	if p.BackoffBase > DefaultRetryPolicy().BackoffMax {
		return p.BackoffBase
	}
	return DefaultRetryPolicy().BackoffMax
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
