package fabricbridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opengovern/fabric-bridge/internal"
	"github.com/opengovern/fabric-bridge/metrics"
)

// poller drives an accepted (202) request to a terminal state.
type poller struct {
	transport *Transport
	baseURL   string
	policy    PollPolicy
	logger    hclog.Logger

	sleep sleepFunc
	now   func() time.Time
}

// resolve returns the response the caller should see for an accepted
// request: the accepted response itself when it carries no operation id,
// otherwise the response of the result fetch once the operation succeeds.
func (p *poller) resolve(ctx context.Context, req *Request, accepted *Response) (*Response, error) {
	id := accepted.Header.Get(OperationIDHeader)
	if id == "" {
		metrics.RecordOperation("untracked", 0)
		return accepted, nil
	}

	handle := newOperationHandle(p.baseURL, id)
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("fabricbridge.operation_id", id))

	started := p.now()
	pollCtx, cancel := context.WithTimeout(ctx, p.policy.MaxWait)
	defer cancel()

	statusReq := &Request{Method: http.MethodGet, URL: handle.StatusURL(), Audience: req.Audience}
	last := OperationStatus{State: OperationNotStarted}

	for {
		metrics.RecordPoll()
		resp, err := p.transport.Send(pollCtx, statusReq)
		if err != nil {
			if pollExpired(ctx, pollCtx) {
				return nil, p.timedOut(handle, last, started)
			}
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.RecordOperation("failed", p.now().Sub(started))
			return nil, &OperationFailedError{
				OperationID: id,
				State:       OperationUnknown,
				StatusCode:  resp.StatusCode,
				Body:        decodeBody(resp.Data),
				LastStatus:  last,
			}
		}

		status := decodeOperationStatus(resp.Data)
		last = status
		span.AddEvent("operation.status", trace.WithAttributes(statusAttributes(status)...))

		switch {
		case status.State.InProgress():
			wait := p.policy.Interval
			if p.policy.HonorRetryAfter {
				if ra, ok := internal.ParseRetryAfter(resp.Header.Get("Retry-After"), p.now()); ok && ra > 0 {
					wait = ra
				}
			}
			p.logger.Trace("operation in progress", "operation_id", id, "state", status.State,
				"percent_complete", percentComplete(status), "last_updated", status.LastUpdatedTime, "wait", wait)
			if err := p.sleep(pollCtx, wait); err != nil {
				if pollExpired(ctx, pollCtx) {
					return nil, p.timedOut(handle, last, started)
				}
				return nil, err
			}

		case status.State == OperationSucceeded:
			p.logger.Debug("operation succeeded, fetching result", "operation_id", id)
			result, err := p.transport.Send(ctx, &Request{Method: http.MethodGet, URL: handle.ResultURL(), Audience: req.Audience})
			if err != nil {
				return nil, err
			}
			metrics.RecordOperation("succeeded", p.now().Sub(started))
			return result, nil

		case status.State == OperationFailed:
			p.logger.Debug("operation failed", "operation_id", id, "error", status.Error)
			metrics.RecordOperation("failed", p.now().Sub(started))
			return nil, &OperationFailedError{
				OperationID: id,
				State:       OperationFailed,
				StatusCode:  resp.StatusCode,
				Diagnostics: status.Error,
				Body:        decodeBody(resp.Data),
				LastStatus:  status,
			}

		default:
			p.logger.Debug("operation reported unrecognized status", "operation_id", id, "status", status.Status)
			metrics.RecordOperation("unexpected_status", p.now().Sub(started))
			return nil, &UnexpectedStatusError{OperationID: id, Status: status.Status}
		}
	}
}

func (p *poller) timedOut(handle OperationHandle, last OperationStatus, started time.Time) error {
	waited := p.now().Sub(started)
	metrics.RecordOperation("timed_out", waited)
	return &OperationTimedOutError{
		OperationID: handle.OperationID,
		LastState:   last.State,
		Waited:      waited,
		LastStatus:  last,
	}
}

func statusAttributes(status OperationStatus) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("state", string(status.State))}
	if status.PercentComplete != nil {
		attrs = append(attrs, attribute.Float64("percent_complete", *status.PercentComplete))
	}
	if !status.LastUpdatedTime.IsZero() {
		attrs = append(attrs, attribute.String("last_updated", status.LastUpdatedTime.Format(time.RFC3339)))
	}
	return attrs
}

// percentComplete is -1 when the service did not report progress.
func percentComplete(status OperationStatus) float64 {
	if status.PercentComplete == nil {
		return -1
	}
	return *status.PercentComplete
}

// pollExpired is true when the poll budget ran out while the caller's own
// context is still live.
func pollExpired(ctx, pollCtx context.Context) bool {
	return ctx.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded)
}
